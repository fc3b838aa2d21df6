package repository

import (
	"context"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// AuditRepository appends and reads the order audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
	ListByOrder(ctx context.Context, orderID string) ([]model.AuditEntry, error)
}

// DirectoryRepository reads reference data owned by the user service.
type DirectoryRepository interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	ListProfiles(ctx context.Context, role model.Role) ([]model.Profile, error)
	ServiceTypes(ctx context.Context) ([]model.ServiceType, error)
	Districts(ctx context.Context) ([]model.District, error)
}
