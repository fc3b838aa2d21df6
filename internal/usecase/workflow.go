package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/lifecycle"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

// ClaimOptions tunes a claim attempt.
type ClaimOptions struct {
	AcknowledgeWarnings bool
}

// Workflow is the order orchestrator: it runs the state machine, the claim resolver and the
// ledger for each public operation and appends an audit entry for every mutation.
type Workflow struct {
	tx        repository.Transactor
	orders    repository.OrderRepository
	audit     repository.AuditRepository
	directory repository.DirectoryRepository
	claims    *ClaimResolver
	ledger    *LedgerUseCase
	settings  Settings
	retry     retrier
	events    publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewWorkflow constructs Workflow.
func NewWorkflow(store repository.Factory, claims *ClaimResolver, ledger *LedgerUseCase, settings Settings, notifier Notifier, logger *slog.Logger) *Workflow {
	return &Workflow{
		tx:        store,
		orders:    store.Orders(),
		audit:     store.Audit(),
		directory: store.Directory(),
		claims:    claims,
		ledger:    ledger,
		settings:  settings,
		retry:     newRetrier(settings, logger),
		events:    publisher{notifier: notifier, logger: logger},
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// transition derives the next state of a loaded order.
type transition func(ctx context.Context, current *model.Order, now time.Time) (*model.Order, error)

// effect runs inside the mutation's transaction after the conditional update succeeded.
type effect func(ctx context.Context, prev, next *model.Order) error

// CreateOrder places a new order on behalf of a dispatcher.
func (w *Workflow) CreateOrder(ctx context.Context, actor model.Actor, in NewOrder) (*model.Order, error) {
	if err := requireRole(actor, model.RoleDispatcher, model.RoleAdmin); err != nil {
		return nil, err
	}
	order, err := in.build(w.newID(), actor, w.now())
	if err != nil {
		return nil, err
	}

	var stored *model.Order
	err = w.retry.write(ctx, string(lifecycle.ActionCreate), func(ctx context.Context) error {
		created, err := w.orders.Create(ctx, order)
		if err != nil {
			return err
		}
		stored = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.record(ctx, lifecycle.ActionCreate, actor, nil, stored, "")
	return stored, nil
}

// CheckEligibility runs the advisory claim pre-check against one order.
func (w *Workflow) CheckEligibility(ctx context.Context, actor model.Actor, orderID string) (*Eligibility, error) {
	if err := requireRole(actor, model.RoleMaster); err != nil {
		return nil, err
	}
	return readWithRetry(ctx, w.retry, "eligibility", func(ctx context.Context) (*Eligibility, error) {
		o, err := w.orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		fresh, err := w.claims.Refresh(ctx, actor)
		if err != nil {
			return nil, err
		}
		result, err := w.claims.Check(ctx, fresh, w.now())
		if err != nil {
			return nil, err
		}
		if o.MasterID != nil || !lifecycle.Allows(lifecycle.ActionClaim, o.Status, actor.Role) {
			result.Reasons = append(result.Reasons, domainErrors.ReasonOrderNotAvailable)
			result.Eligible = false
		}
		return result, nil
	})
}

// ClaimOrder lets a worker take an unclaimed order. Every loser of a race gets
// ORDER_NOT_AVAILABLE.
func (w *Workflow) ClaimOrder(ctx context.Context, actor model.Actor, orderID string, opts ClaimOptions) (*model.Order, error) {
	if err := requireRole(actor, model.RoleMaster); err != nil {
		return nil, err
	}
	fresh, err := readWithRetry(ctx, w.retry, "claim pre-check", func(ctx context.Context) (model.Actor, error) {
		return w.claims.Refresh(ctx, actor)
	})
	if err != nil {
		return nil, err
	}
	eligibility, err := readWithRetry(ctx, w.retry, "claim pre-check", func(ctx context.Context) (*Eligibility, error) {
		return w.claims.Check(ctx, fresh, w.now())
	})
	if err != nil {
		return nil, err
	}
	if err := eligibility.Gate(opts.AcknowledgeWarnings); err != nil {
		return nil, err
	}

	return w.hold(ctx, lifecycle.ActionClaim, fresh, orderID, "", func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Claim(o, fresh, now)
	})
}

// ForceAssignMaster gives an unclaimed order to a worker chosen by staff.
// Job-count limits are advisory for staff and skipped; the conditional update still decides.
func (w *Workflow) ForceAssignMaster(ctx context.Context, actor model.Actor, orderID, workerID string) (*model.Order, error) {
	if err := requireRole(actor, model.RoleDispatcher, model.RoleAdmin); err != nil {
		return nil, err
	}
	worker, err := readWithRetry(ctx, w.retry, "assign pre-check", func(ctx context.Context) (*model.Profile, error) {
		return w.claims.checkAssignable(ctx, workerID)
	})
	if err != nil {
		return nil, err
	}
	return w.hold(ctx, lifecycle.ActionAssign, actor, orderID, "assigned to "+worker.ID, func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Assign(o, actor, *worker, now)
	})
}

// hold persists a claim or an assignment through the single conditional update on
// unclaimed orders. The worker's ledger is re-checked in the same transaction and a
// failed check rolls the update back.
func (w *Workflow) hold(ctx context.Context, action lifecycle.Action, actor model.Actor, orderID, note string, next transition) (*model.Order, error) {
	var prev, stored *model.Order
	err := w.retry.write(ctx, string(action), func(ctx context.Context) error {
		return w.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			current, err := w.orders.Get(ctx, orderID)
			if err != nil {
				return err
			}
			candidate, err := next(ctx, current, w.now())
			if err != nil {
				return err
			}
			claimed, err := w.orders.ClaimUnheld(ctx, candidate)
			if errors.Is(err, domainErrors.ErrConflict) {
				return domainErrors.NotAvailable()
			}
			if err != nil {
				return err
			}
			if err := w.ledger.admit(ctx, *claimed.MasterID, action == lifecycle.ActionClaim); err != nil {
				return err
			}
			prev, stored = current, claimed
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	w.record(ctx, action, actor, prev, stored, note)
	return stored, nil
}

// StartJob records that the claim holder began working.
func (w *Workflow) StartJob(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionStart, actor, orderID, "", func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Start(o, actor, now)
	}, nil)
}

// CompleteJob records the final price and flags large price deviations for review.
func (w *Workflow) CompleteJob(ctx context.Context, actor model.Actor, orderID string, in lifecycle.Completion) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionComplete, actor, orderID, in.PriceChangeReason, func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Complete(o, actor, in, w.settings.PriceDeviationThreshold, now)
	}, w.recountPrevious(false))
}

// RefuseJob returns a started job with a mandatory reason.
func (w *Workflow) RefuseJob(ctx context.Context, actor model.Actor, orderID, reason string) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionRefuse, actor, orderID, reason, func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Refuse(o, actor, reason, now)
	}, w.recountPrevious(true))
}

// ConfirmPayment confirms a completed order and books the commission in the same transaction.
func (w *Workflow) ConfirmPayment(ctx context.Context, actor model.Actor, orderID string, p lifecycle.Payment) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionConfirm, actor, orderID, string(p.Method), func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Confirm(o, actor, p, now)
	}, func(ctx context.Context, _, next *model.Order) error {
		return w.ledger.postCommission(ctx, next)
	})
}

// CancelByClient closes an order on the client's behalf.
func (w *Workflow) CancelByClient(ctx context.Context, actor model.Actor, orderID, reason string) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionCancel, actor, orderID, reason, func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.CancelByClient(o, actor, reason, now)
	}, w.recountPrevious(false))
}

// ReopenOrder returns a canceled or expired order to the pool.
func (w *Workflow) ReopenOrder(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionReopen, actor, orderID, "", func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Reopen(o, actor, now)
	}, nil)
}

// UnassignMaster takes a held job away from its worker.
func (w *Workflow) UnassignMaster(ctx context.Context, actor model.Actor, orderID, note string) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionUnassign, actor, orderID, note, func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Unassign(o, actor, now)
	}, w.recountPrevious(false))
}

// TransferToDispatcher hands the order to another active dispatcher.
func (w *Workflow) TransferToDispatcher(ctx context.Context, actor model.Actor, orderID, dispatcherID string) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionTransfer, actor, orderID, "transferred to "+dispatcherID, func(ctx context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		target, err := w.directory.GetProfile(ctx, dispatcherID)
		if errors.Is(err, domainErrors.ErrNotFound) {
			return nil, domainErrors.Guard(domainErrors.ReasonTargetNotDispatcher)
		}
		if err != nil {
			return nil, err
		}
		return lifecycle.Transfer(o, actor, *target, now)
	}, nil)
}

// SetDispute raises or clears the dispute flag without touching the status.
func (w *Workflow) SetDispute(ctx context.Context, actor model.Actor, orderID string, disputed bool, note string) (*model.Order, error) {
	return w.mutate(ctx, lifecycle.ActionDispute, actor, orderID, note, func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.SetDispute(o, actor, disputed, now)
	}, nil)
}

// ExpireStaleOrders expires unclaimed placed orders older than the expiry window.
// Candidates claimed or changed in the meantime are skipped.
func (w *Workflow) ExpireStaleOrders(ctx context.Context, limit int) ([]model.Order, error) {
	candidates, err := w.ExpirableOrders(ctx, limit)
	if err != nil {
		return nil, err
	}

	var expired []model.Order
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		o, err := w.ExpireOrder(ctx, candidate.ID)
		if _, ok := domainErrors.AsFailure(err); ok {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, *o)
	}
	return expired, nil
}

// RunExpiry lets an admin expire stale orders without waiting for the next sweep.
func (w *Workflow) RunExpiry(ctx context.Context, actor model.Actor, limit int) ([]model.Order, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	return w.ExpireStaleOrders(ctx, limit)
}

// ExpirableOrders lists unclaimed placed orders older than the expiry window, oldest first.
func (w *Workflow) ExpirableOrders(ctx context.Context, limit int) ([]model.Order, error) {
	cutoff := w.now().Add(-w.settings.OrderExpiry)
	return readWithRetry(ctx, w.retry, "list expirable", func(ctx context.Context) ([]model.Order, error) {
		return w.orders.ListExpirable(ctx, cutoff, limit)
	})
}

// ExpireOrder expires one candidate as the system actor. A candidate that was claimed
// or reopened in the meantime yields a Failure and stays untouched.
func (w *Workflow) ExpireOrder(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := w.mutate(ctx, lifecycle.ActionExpire, model.SystemActor, orderID, "", func(_ context.Context, o *model.Order, now time.Time) (*model.Order, error) {
		return lifecycle.Expire(o, model.SystemActor, w.settings.OrderExpiry, now)
	}, nil)
	if _, ok := domainErrors.AsFailure(err); ok {
		w.logger.Debug("expiry skipped", slog.String("order_id", orderID), slog.Any("reason", err))
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("expire order %s: %w", orderID, err)
	}
	return o, nil
}

// GetOrder returns one order if the actor may see it.
func (w *Workflow) GetOrder(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	o, err := readWithRetry(ctx, w.retry, "get order", func(ctx context.Context) (*model.Order, error) {
		return w.orders.Get(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	if !visibleTo(o, actor) {
		return nil, domainErrors.ErrNotFound
	}
	return o, nil
}

// AuditTrail lists the audit entries of an order for staff.
func (w *Workflow) AuditTrail(ctx context.Context, actor model.Actor, orderID string) ([]model.AuditEntry, error) {
	if err := requireRole(actor, model.RoleDispatcher, model.RoleAdmin); err != nil {
		return nil, err
	}
	return readWithRetry(ctx, w.retry, "audit trail", func(ctx context.Context) ([]model.AuditEntry, error) {
		if _, err := w.orders.Get(ctx, orderID); err != nil {
			return nil, err
		}
		return w.audit.ListByOrder(ctx, orderID)
	})
}

// mutate loads the order, derives its next state and stores it with a compare-and-swap.
// A concurrent change between the read and the write surfaces as ORDER_NOT_AVAILABLE.
func (w *Workflow) mutate(ctx context.Context, action lifecycle.Action, actor model.Actor, orderID, note string, next transition, after effect) (*model.Order, error) {
	var prev, stored *model.Order
	err := w.retry.write(ctx, string(action), func(ctx context.Context) error {
		return w.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			current, err := w.orders.Get(ctx, orderID)
			if err != nil {
				return err
			}
			candidate, err := next(ctx, current, w.now())
			if err != nil {
				return err
			}
			swapped, err := w.orders.CompareAndSwap(ctx, current, candidate)
			if errors.Is(err, domainErrors.ErrConflict) {
				return domainErrors.NotAvailable()
			}
			if err != nil {
				return err
			}
			if after != nil {
				if err := after(ctx, current, swapped); err != nil {
					return err
				}
			}
			prev, stored = current, swapped
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	w.record(ctx, action, actor, prev, stored, note)
	return stored, nil
}

func (w *Workflow) recountPrevious(refused bool) effect {
	return func(ctx context.Context, prev, _ *model.Order) error {
		if prev.MasterID == nil {
			return nil
		}
		return w.ledger.recount(ctx, *prev.MasterID, refused)
	}
}

// record appends the audit entry after the mutation committed and notifies the parties.
// Neither step can fail the operation.
func (w *Workflow) record(ctx context.Context, action lifecycle.Action, actor model.Actor, prev, next *model.Order, note string) {
	ctx = context.WithoutCancel(ctx)
	now := w.now()

	w.logger.Info("order transition",
		slog.String("order_id", next.ID),
		slog.String("action", string(action)),
		slog.String("actor", actor.ID),
		slog.String("status", string(next.Status)),
	)

	entry := &model.AuditEntry{
		OrderID:     next.ID,
		Action:      string(action),
		OldSnapshot: prev,
		NewSnapshot: next,
		PerformedBy: actor.ID,
		Note:        note,
		CreatedAt:   now,
	}
	auditCtx, cancel := w.auditContext(ctx)
	defer cancel()
	if err := w.audit.Append(auditCtx, entry); err != nil {
		w.logger.Warn("audit write failed",
			slog.String("order_id", next.ID),
			slog.String("action", string(action)),
			slog.Any("error", err),
		)
	}

	kind := model.EventOrderChanged
	switch action {
	case lifecycle.ActionCreate:
		kind = model.EventOrderCreated
	case lifecycle.ActionExpire:
		kind = model.EventOrderExpired
	}
	w.events.publish(ctx, model.Event{
		Kind:       kind,
		OrderID:    next.ID,
		Action:     string(action),
		Status:     next.Status,
		Recipients: recipients(prev, next),
		At:         now,
	})
}

func (w *Workflow) auditContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.settings.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, w.settings.RequestTimeout)
}

// recipients are the dispatchers and workers involved before or after the change.
func recipients(prev, next *model.Order) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, o := range []*model.Order{next, prev} {
		if o == nil {
			continue
		}
		add(o.DispatcherID)
		add(o.AssignedDispatcherID)
		if o.MasterID != nil {
			add(*o.MasterID)
		}
	}
	return ids
}

func visibleTo(o *model.Order, actor model.Actor) bool {
	switch actor.Role {
	case model.RoleAdmin, model.RoleDispatcher:
		return true
	case model.RoleMaster:
		if o.HeldBy(actor.ID) {
			return true
		}
		return o.MasterID == nil && (o.Status == model.OrderStatusPlaced || o.Status == model.OrderStatusReopened)
	case model.RoleClient:
		return o.ClientID != nil && *o.ClientID == actor.ID
	}
	return false
}
