package usecase

import (
	"context"
	"log/slog"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
	"github.com/polkiloo/dispatchdesk/internal/queue"
)

// ViewMine asks for the orders a worker holds instead of the open pool.
const ViewMine = "mine"

// QueueRequest is the input of a queue read.
type QueueRequest struct {
	View   string
	Filter model.QueueFilter
}

// StatsRequest bounds a stats summary by creation time.
type StatsRequest struct {
	From *time.Time
	To   *time.Time
}

// QueueUseCase serves triage pages and stats.
type QueueUseCase struct {
	orders   repository.OrderRepository
	settings Settings
	retry    retrier
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueueUseCase constructs QueueUseCase.
func NewQueueUseCase(orders repository.OrderRepository, settings Settings, logger *slog.Logger) *QueueUseCase {
	return &QueueUseCase{
		orders:   orders,
		settings: settings,
		retry:    newRetrier(settings, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Page returns one page, the per-group counts and the attention set of the actor's scope.
// An empty page over a scope that reports matching rows is recomputed in memory.
func (u *QueueUseCase) Page(ctx context.Context, actor model.Actor, req QueueRequest) (*model.QueuePage, error) {
	scope, err := scopeFor(actor, req.View)
	if err != nil {
		return nil, err
	}
	if err := validateFilter(req.Filter); err != nil {
		return nil, err
	}
	filter := queue.Normalize(req.Filter)
	q := repository.QueueQuery{Scope: scope, Filter: filter, Windows: u.settings.Windows, Now: u.now()}

	page, err := readWithRetry(ctx, u.retry, "queue page", func(ctx context.Context) (*model.QueuePage, error) {
		return u.orders.QueryQueue(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	if len(page.Orders) > 0 || filter.Offset() >= page.Matched {
		return page, nil
	}

	u.logger.Warn("queue page drifted from counts, recomputing",
		slog.String("scope", string(scope.Kind)),
		slog.Int("matched", page.Matched),
		slog.Int("page", filter.Page),
	)
	orders, err := readWithRetry(ctx, u.retry, "queue fallback", func(ctx context.Context) ([]model.Order, error) {
		return u.orders.ListScope(ctx, scope)
	})
	if err != nil {
		return nil, err
	}
	return queue.Compute(orders, scope, filter, q.Windows, q.Now), nil
}

// Stats summarizes the actor's scope.
func (u *QueueUseCase) Stats(ctx context.Context, actor model.Actor, req StatsRequest) (*model.StatsSummary, error) {
	if err := requireRole(actor, model.RoleDispatcher, model.RoleAdmin); err != nil {
		return nil, err
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return nil, domainErrors.Validation(domainErrors.ReasonInvalidFilter)
	}
	scope, err := scopeFor(actor, "")
	if err != nil {
		return nil, err
	}
	q := repository.StatsQuery{Scope: scope, From: req.From, To: req.To, Windows: u.settings.Windows, Now: u.now()}
	return readWithRetry(ctx, u.retry, "stats", func(ctx context.Context) (*model.StatsSummary, error) {
		return u.orders.Stats(ctx, q)
	})
}

func scopeFor(actor model.Actor, view string) (model.QueueScope, error) {
	scope := model.QueueScope{ActorID: actor.ID}
	switch actor.Role {
	case model.RoleAdmin:
		scope.Kind = model.ScopeAdmin
	case model.RoleDispatcher:
		scope.Kind = model.ScopeDispatcher
	case model.RoleMaster:
		scope.Kind = model.ScopePool
		if view == ViewMine {
			scope.Kind = model.ScopeWorker
		}
	default:
		return scope, domainErrors.Guard(domainErrors.ReasonRoleNotAllowed)
	}
	return scope, nil
}

func validateFilter(f model.QueueFilter) error {
	switch {
	case !f.Group.Valid():
	case f.Urgency != "" && !f.Urgency.Valid():
	case f.Sort != "" && f.Sort != model.SortNewest && f.Sort != model.SortOldest:
	default:
		return nil
	}
	return domainErrors.Validation(domainErrors.ReasonInvalidFilter)
}
