package repository

import (
	"context"
	"time"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// OrderRepository describes persistence operations with orders.
// Every write is a conditional update; a miss is reported as errors.ErrConflict.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) (*model.Order, error)
	Get(ctx context.Context, id string) (*model.Order, error)
	// CompareAndSwap stores next iff the row still has prev's version and status.
	CompareAndSwap(ctx context.Context, prev, next *model.Order) (*model.Order, error)
	// ClaimUnheld stores next iff the row is placed or reopened and has no master.
	ClaimUnheld(ctx context.Context, next *model.Order) (*model.Order, error)
	WorkerLoad(ctx context.Context, workerID string, now time.Time) (model.WorkerLoad, error)
	ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error)
	// QueryQueue computes page, counts and attention from one snapshot.
	QueryQueue(ctx context.Context, q QueueQuery) (*model.QueuePage, error)
	ListScope(ctx context.Context, scope model.QueueScope) ([]model.Order, error)
	Stats(ctx context.Context, q StatsQuery) (*model.StatsSummary, error)
}

// QueueQuery bundles the inputs of one aggregation pass.
type QueueQuery struct {
	Scope   model.QueueScope
	Filter  model.QueueFilter
	Windows model.AttentionWindows
	Now     time.Time
}

// StatsQuery bounds a stats summary by creation time.
type StatsQuery struct {
	Scope   model.QueueScope
	From    *time.Time
	To      *time.Time
	Windows model.AttentionWindows
	Now     time.Time
}
