package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

// PayoutDecision is an admin's answer to a payout request.
type PayoutDecision struct {
	Approve bool
	// Amount overrides the requested amount on approval.
	Amount *float64
	Note   string
}

// PayoutUseCase runs the two-phase withdrawal flow.
type PayoutUseCase struct {
	tx      repository.Transactor
	payouts repository.PayoutRepository
	ledgers repository.LedgerRepository
	ledger  *LedgerUseCase
	retry   retrier
	events  publisher
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewPayoutUseCase constructs PayoutUseCase.
func NewPayoutUseCase(store repository.Factory, ledger *LedgerUseCase, settings Settings, notifier Notifier, logger *slog.Logger) *PayoutUseCase {
	return &PayoutUseCase{
		tx:      store,
		payouts: store.Payouts(),
		ledgers: store.Ledgers(),
		ledger:  ledger,
		retry:   newRetrier(settings, logger),
		events:  publisher{notifier: notifier, logger: logger},
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Request records a worker's intent to withdraw. Nothing is reserved until approval.
func (u *PayoutUseCase) Request(ctx context.Context, actor model.Actor, amount *float64) (*model.PayoutRequest, error) {
	if err := requireRole(actor, model.RoleMaster); err != nil {
		return nil, err
	}
	value, err := positiveAmount(amount)
	if err != nil {
		return nil, err
	}

	req := &model.PayoutRequest{
		ID:              u.newID(),
		WorkerID:        actor.ID,
		Status:          model.PayoutRequested,
		RequestedAmount: value,
		RequestedAt:     u.now(),
	}
	err = u.retry.write(ctx, "request payout", func(ctx context.Context) error {
		l, err := u.ledgers.Get(ctx, actor.ID)
		if errors.Is(err, domainErrors.ErrNotFound) {
			return domainErrors.Guard(domainErrors.ReasonNoLedger)
		}
		if err != nil {
			return err
		}
		if value > l.PrepaidBalance {
			return domainErrors.Guard(domainErrors.ReasonInsufficientBalance)
		}
		return u.payouts.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	u.logger.Info("payout requested", slog.String("payout_id", req.ID), slog.String("worker_id", req.WorkerID))
	return req, nil
}

// Process approves or rejects a pending request. Approval debits the balance and posts
// a payout_paid transaction atomically with the status change.
func (u *PayoutUseCase) Process(ctx context.Context, actor model.Actor, id string, d PayoutDecision) (*model.PayoutRequest, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}

	var (
		result  *model.PayoutRequest
		blocked *model.WorkerLedger
	)
	err := u.retry.write(ctx, "process payout", func(ctx context.Context) error {
		return u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			req, err := u.payouts.Get(ctx, id)
			if err != nil {
				return err
			}
			if req.Status != model.PayoutRequested {
				return domainErrors.Guard(domainErrors.ReasonPayoutNotPending)
			}

			now := u.now()
			next := *req
			next.AdminNote = strings.TrimSpace(d.Note)
			next.DecidedBy = &actor.ID
			next.DecidedAt = &now
			next.Status = model.PayoutRejected

			if d.Approve {
				amount := req.RequestedAmount
				if d.Amount != nil {
					if amount, err = positiveAmount(d.Amount); err != nil {
						return err
					}
				}
				next.Status = model.PayoutApproved
				next.ApprovedAmount = &amount

				l, wasBlocked, err := u.ledger.apply(ctx, req.WorkerID, func(_ context.Context, l *model.WorkerLedger, now time.Time) (*model.BalanceTransaction, error) {
					if amount > l.PrepaidBalance {
						return nil, domainErrors.Guard(domainErrors.ReasonInsufficientBalance)
					}
					before := l.PrepaidBalance
					debit(l, amount, now)
					payoutID := req.ID
					return &model.BalanceTransaction{
						WorkerID:        l.WorkerID,
						Type:            model.TransactionPayoutPaid,
						Amount:          amount,
						BalanceBefore:   before,
						BalanceAfter:    l.PrepaidBalance,
						PayoutRequestID: &payoutID,
						Note:            next.AdminNote,
						CreatedAt:       now,
					}, nil
				})
				if errors.Is(err, domainErrors.ErrNotFound) {
					return domainErrors.Guard(domainErrors.ReasonNoLedger)
				}
				if err != nil {
					return err
				}
				if !wasBlocked && l.Blocked() {
					blocked = l
				}
			}

			if err := u.payouts.UpdateStatus(ctx, &next, model.PayoutRequested); err != nil {
				if errors.Is(err, domainErrors.ErrConflict) {
					return &domainErrors.Failure{Kind: domainErrors.KindConflict, Reasons: []domainErrors.ReasonCode{domainErrors.ReasonPayoutNotPending}}
				}
				return err
			}
			result = &next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("payout decided",
		slog.String("payout_id", result.ID),
		slog.String("status", string(result.Status)),
		slog.String("actor", actor.ID),
	)
	if blocked != nil {
		u.ledger.announceBlock(ctx, blocked)
	}
	u.announce(ctx, result)
	return result, nil
}

// MarkPaid records that an approved payout left the platform. The ledger is not touched.
func (u *PayoutUseCase) MarkPaid(ctx context.Context, actor model.Actor, id string) (*model.PayoutRequest, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	var result *model.PayoutRequest
	err := u.retry.write(ctx, "mark payout paid", func(ctx context.Context) error {
		req, err := u.payouts.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != model.PayoutApproved {
			return domainErrors.Guard(domainErrors.ReasonPayoutNotApproved)
		}
		now := u.now()
		next := *req
		next.Status = model.PayoutPaid
		next.PaidAt = &now
		if err := u.payouts.UpdateStatus(ctx, &next, model.PayoutApproved); err != nil {
			if errors.Is(err, domainErrors.ErrConflict) {
				return domainErrors.Guard(domainErrors.ReasonPayoutNotApproved)
			}
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.announce(ctx, result)
	return result, nil
}

// List returns a worker's own requests, or any requests for admins.
func (u *PayoutUseCase) List(ctx context.Context, actor model.Actor, status model.PayoutStatus, limit int) ([]model.PayoutRequest, error) {
	q := repository.PayoutQuery{Status: status, Limit: limit}
	switch actor.Role {
	case model.RoleMaster:
		q.WorkerID = actor.ID
	case model.RoleAdmin:
	default:
		return nil, domainErrors.Guard(domainErrors.ReasonRoleNotAllowed)
	}
	if q.Limit <= 0 || q.Limit > defaultHistoryLimit {
		q.Limit = defaultHistoryLimit
	}
	return readWithRetry(ctx, u.retry, "list payouts", func(ctx context.Context) ([]model.PayoutRequest, error) {
		return u.payouts.List(ctx, q)
	})
}

func (u *PayoutUseCase) announce(ctx context.Context, req *model.PayoutRequest) {
	u.events.publish(ctx, model.Event{
		Kind:       model.EventPayoutUpdated,
		WorkerID:   req.WorkerID,
		PayoutID:   req.ID,
		Recipients: []string{req.WorkerID},
		At:         u.now(),
	})
}
