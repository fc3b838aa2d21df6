package usecase

import (
	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

func requireRole(actor model.Actor, roles ...model.Role) error {
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return domainErrors.Guard(domainErrors.ReasonRoleNotAllowed)
}

// requireSelfOr lets a worker act on its own ledger and staff with the given roles on any.
func requireSelfOr(actor model.Actor, workerID string, roles ...model.Role) error {
	if actor.Role == model.RoleMaster && actor.ID == workerID {
		return nil
	}
	return requireRole(actor, roles...)
}
