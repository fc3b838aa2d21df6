package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

const defaultHistoryLimit = 100

// LedgerOpening describes a worker ledger created at onboarding.
type LedgerOpening struct {
	WorkerID         string
	MaxActiveJobs    int
	BalanceThreshold *float64
	InitialBalance   *float64
}

// CommissionPayment pays down owed commission.
type CommissionPayment struct {
	Amount *float64
	Source model.PaymentSource
	Note   string
}

// Adjustment is a manual change of the prepaid balance.
type Adjustment struct {
	Amount    *float64
	Deduction bool
	Note      string
}

// LedgerUseCase owns every mutation of worker ledgers.
type LedgerUseCase struct {
	tx        repository.Transactor
	ledgers   repository.LedgerRepository
	orders    repository.OrderRepository
	directory repository.DirectoryRepository
	settings  Settings
	retry     retrier
	events    publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewLedgerUseCase constructs LedgerUseCase.
func NewLedgerUseCase(store repository.Factory, settings Settings, notifier Notifier, logger *slog.Logger) *LedgerUseCase {
	return &LedgerUseCase{
		tx:        store,
		ledgers:   store.Ledgers(),
		orders:    store.Orders(),
		directory: store.Directory(),
		settings:  settings,
		retry:     newRetrier(settings, logger),
		events:    publisher{notifier: notifier, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// OpenLedger creates the ledger of a worker. Missing limits fall back to configuration.
func (u *LedgerUseCase) OpenLedger(ctx context.Context, actor model.Actor, in LedgerOpening) (*model.WorkerLedger, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	workerID := strings.TrimSpace(in.WorkerID)
	if workerID == "" {
		return nil, domainErrors.Validation(domainErrors.ReasonTargetNotMaster)
	}

	ledger := &model.WorkerLedger{
		WorkerID:         workerID,
		MaxActiveJobs:    in.MaxActiveJobs,
		BalanceThreshold: u.settings.DefaultBalanceThreshold,
		UpdatedAt:        u.now(),
	}
	if ledger.MaxActiveJobs <= 0 {
		ledger.MaxActiveJobs = u.settings.DefaultMaxActiveJobs
	}
	if in.BalanceThreshold != nil {
		ledger.BalanceThreshold = model.RoundMoney(*in.BalanceThreshold)
	}
	if in.InitialBalance != nil {
		amount := model.NormalizeMoney(*in.InitialBalance)
		if amount == nil {
			return nil, domainErrors.Validation(domainErrors.ReasonInvalidAmount)
		}
		ledger.PrepaidBalance = *amount
	}
	if ledger.BelowThreshold() {
		blockedAt := ledger.UpdatedAt
		ledger.BalanceBlockedAt = &blockedAt
	}

	err := u.retry.write(ctx, "open ledger", func(ctx context.Context) error {
		profile, err := u.directory.GetProfile(ctx, workerID)
		if err != nil && !errors.Is(err, domainErrors.ErrNotFound) {
			return err
		}
		if profile != nil && profile.Role != model.RoleMaster {
			return domainErrors.Validation(domainErrors.ReasonTargetNotMaster)
		}
		return u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := u.ledgers.Create(ctx, ledger); err != nil {
				return err
			}
			if ledger.PrepaidBalance == 0 {
				return nil
			}
			_, err := u.ledgers.AppendTransaction(ctx, &model.BalanceTransaction{
				WorkerID:     workerID,
				Type:         model.TransactionAdminAdjustment,
				Amount:       ledger.PrepaidBalance,
				BalanceAfter: ledger.PrepaidBalance,
				Note:         "opening balance",
				CreatedAt:    ledger.UpdatedAt,
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	u.logger.Info("ledger opened", slog.String("worker_id", workerID), slog.String("actor", actor.ID))
	if ledger.Blocked() {
		u.announceBlock(ctx, ledger)
	}
	return ledger, nil
}

// Summary returns the ledger of a worker to the worker itself or to staff.
func (u *LedgerUseCase) Summary(ctx context.Context, actor model.Actor, workerID string) (*model.WorkerLedger, error) {
	if err := requireSelfOr(actor, workerID, model.RoleAdmin, model.RoleDispatcher); err != nil {
		return nil, err
	}
	return readWithRetry(ctx, u.retry, "ledger summary", func(ctx context.Context) (*model.WorkerLedger, error) {
		return u.ledgers.Get(ctx, workerID)
	})
}

// History lists the newest balance transactions of a worker.
func (u *LedgerUseCase) History(ctx context.Context, actor model.Actor, workerID string, limit int) ([]model.BalanceTransaction, error) {
	if err := requireSelfOr(actor, workerID, model.RoleAdmin, model.RoleDispatcher); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return readWithRetry(ctx, u.retry, "ledger history", func(ctx context.Context) ([]model.BalanceTransaction, error) {
		return u.ledgers.ListTransactions(ctx, workerID, limit)
	})
}

// RecordPayment relabels owed commission as paid. It never creates commission.
// Staff record cash and transfer payments; a worker may only pay from its own balance.
func (u *LedgerUseCase) RecordPayment(ctx context.Context, actor model.Actor, workerID string, in CommissionPayment) (*model.WorkerLedger, error) {
	if actor.Role == model.RoleMaster {
		if actor.ID != workerID || in.Source != model.PaymentSourceBalance {
			return nil, domainErrors.Guard(domainErrors.ReasonRoleNotAllowed)
		}
	} else if err := requireRole(actor, model.RoleAdmin, model.RoleDispatcher); err != nil {
		return nil, err
	}
	if !in.Source.Valid() {
		return nil, domainErrors.Validation(domainErrors.ReasonInvalidPaymentSource)
	}
	amount, err := positiveAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	return u.mutate(ctx, "record commission payment", workerID, func(_ context.Context, l *model.WorkerLedger, now time.Time) (*model.BalanceTransaction, error) {
		if amount > l.OutstandingCommission() {
			return nil, domainErrors.Guard(domainErrors.ReasonExceedsOutstanding)
		}
		before := l.PrepaidBalance
		if in.Source == model.PaymentSourceBalance {
			if amount > l.PrepaidBalance {
				return nil, domainErrors.Guard(domainErrors.ReasonInsufficientBalance)
			}
			debit(l, amount, now)
		}
		l.TotalCommissionPaid = model.RoundMoney(l.TotalCommissionPaid + amount)
		l.UpdatedAt = now
		return &model.BalanceTransaction{
			WorkerID:      l.WorkerID,
			Type:          model.TransactionPayment,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  l.PrepaidBalance,
			Note:          noteOr(in.Note, string(in.Source)),
			CreatedAt:     now,
		}, nil
	})
}

// AdjustBalance tops up or deducts the prepaid balance. A top-up never clears a block.
func (u *LedgerUseCase) AdjustBalance(ctx context.Context, actor model.Actor, workerID string, in Adjustment) (*model.WorkerLedger, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	amount, err := positiveAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	return u.mutate(ctx, "adjust balance", workerID, func(_ context.Context, l *model.WorkerLedger, now time.Time) (*model.BalanceTransaction, error) {
		entry := &model.BalanceTransaction{
			WorkerID:      l.WorkerID,
			Type:          model.TransactionAdminAdjustment,
			Amount:        amount,
			BalanceBefore: l.PrepaidBalance,
			Note:          strings.TrimSpace(in.Note),
			CreatedAt:     now,
		}
		if in.Deduction {
			entry.Type = model.TransactionManualDeduction
			debit(l, amount, now)
		} else {
			l.PrepaidBalance = model.RoundMoney(l.PrepaidBalance + amount)
			l.UpdatedAt = now
		}
		entry.BalanceAfter = l.PrepaidBalance
		return entry, nil
	})
}

// ClearBlock lifts a balance block once the balance is above the threshold again.
func (u *LedgerUseCase) ClearBlock(ctx context.Context, actor model.Actor, workerID string) (*model.WorkerLedger, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	return u.mutate(ctx, "clear balance block", workerID, func(_ context.Context, l *model.WorkerLedger, now time.Time) (*model.BalanceTransaction, error) {
		if !l.Blocked() {
			return nil, domainErrors.Guard(domainErrors.ReasonNotBlocked)
		}
		if l.BelowThreshold() {
			return nil, domainErrors.Guard(domainErrors.ReasonBalanceStillLow)
		}
		l.BalanceBlockedAt = nil
		l.UpdatedAt = now
		return nil, nil
	})
}

type ledgerChange func(ctx context.Context, l *model.WorkerLedger, now time.Time) (*model.BalanceTransaction, error)

// mutate applies change to the locked ledger and appends its transaction in one store transaction.
func (u *LedgerUseCase) mutate(ctx context.Context, op, workerID string, change ledgerChange) (*model.WorkerLedger, error) {
	var (
		result  *model.WorkerLedger
		blocked bool
	)
	err := u.retry.write(ctx, op, func(ctx context.Context) error {
		return u.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			l, wasBlocked, err := u.apply(ctx, workerID, change)
			if err != nil {
				return err
			}
			result, blocked = l, !wasBlocked && l.Blocked()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if blocked {
		u.announceBlock(ctx, result)
	}
	return result, nil
}

// apply must run inside a transaction.
func (u *LedgerUseCase) apply(ctx context.Context, workerID string, change ledgerChange) (*model.WorkerLedger, bool, error) {
	l, err := u.ledgers.GetForUpdate(ctx, workerID)
	if err != nil {
		return nil, false, err
	}
	wasBlocked := l.Blocked()
	entry, err := change(ctx, l, u.now())
	if err != nil {
		return nil, false, err
	}
	if entry != nil {
		if _, err := u.ledgers.AppendTransaction(ctx, entry); err != nil {
			return nil, false, fmt.Errorf("append %s transaction: %w", entry.Type, err)
		}
	}
	if err := u.ledgers.Update(ctx, l); err != nil {
		return nil, false, fmt.Errorf("update ledger: %w", err)
	}
	return l, wasBlocked, nil
}

func (u *LedgerUseCase) announceBlock(ctx context.Context, l *model.WorkerLedger) {
	u.logger.Info("worker balance blocked",
		slog.String("worker_id", l.WorkerID),
		slog.Float64("prepaid_balance", l.PrepaidBalance),
		slog.Float64("threshold", l.BalanceThreshold),
	)
	u.events.publish(ctx, model.Event{
		Kind:       model.EventLedgerBlocked,
		WorkerID:   l.WorkerID,
		Recipients: []string{l.WorkerID},
		At:         u.now(),
	})
}

// postCommission books the commission of a confirmed order. It joins the caller's transaction.
func (u *LedgerUseCase) postCommission(ctx context.Context, o *model.Order) error {
	if o.MasterID == nil || o.FinalPrice == nil {
		return fmt.Errorf("post commission for order %s: no master or final price", o.ID)
	}
	commission := u.settings.Commission(o)
	load, err := u.orders.WorkerLoad(ctx, *o.MasterID, u.now())
	if err != nil {
		return err
	}
	_, _, err = u.apply(ctx, *o.MasterID, func(_ context.Context, l *model.WorkerLedger, now time.Time) (*model.BalanceTransaction, error) {
		l.TotalEarnings = model.RoundMoney(l.TotalEarnings + *o.FinalPrice)
		l.TotalCommissionOwed = model.RoundMoney(l.TotalCommissionOwed + commission)
		l.CompletedJobsCount++
		l.ActiveJobs = load.Active
		l.UpdatedAt = now
		orderID := o.ID
		return &model.BalanceTransaction{
			WorkerID:      l.WorkerID,
			Type:          model.TransactionCommissionEarned,
			Amount:        commission,
			BalanceBefore: l.PrepaidBalance,
			BalanceAfter:  l.PrepaidBalance,
			OrderID:       &orderID,
			CreatedAt:     now,
		}, nil
	})
	if errors.Is(err, domainErrors.ErrNotFound) {
		return domainErrors.Guard(domainErrors.ReasonNoLedger)
	}
	return err
}

// recount refreshes the derived active-job count. Workers without a ledger are skipped.
func (u *LedgerUseCase) recount(ctx context.Context, workerID string, refused bool) error {
	load, err := u.orders.WorkerLoad(ctx, workerID, u.now())
	if err != nil {
		return err
	}
	_, _, err = u.apply(ctx, workerID, func(_ context.Context, l *model.WorkerLedger, now time.Time) (*model.BalanceTransaction, error) {
		l.ActiveJobs = load.Active
		if refused {
			l.RefusalCount++
		}
		l.UpdatedAt = now
		return nil, nil
	})
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil
	}
	return err
}

// admit takes a new job onto the worker's ledger inside the claim transaction.
// The ledger row is locked before the load is counted, so concurrent claims of one
// worker see each other. enforceLimit is false for staff assignments.
func (u *LedgerUseCase) admit(ctx context.Context, workerID string, enforceLimit bool) error {
	l, err := u.ledgers.GetForUpdate(ctx, workerID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return domainErrors.Guard(domainErrors.ReasonNoLedger)
	}
	if err != nil {
		return err
	}
	if l.ClaimsBlocked() {
		return domainErrors.Guard(domainErrors.ReasonBalanceBlocked)
	}
	load, err := u.orders.WorkerLoad(ctx, workerID, u.now())
	if err != nil {
		return err
	}
	if enforceLimit && load.Active > l.MaxActiveJobs {
		return domainErrors.Guard(domainErrors.ReasonMaxJobsReached)
	}
	l.ActiveJobs = load.Active
	l.UpdatedAt = u.now()
	if err := u.ledgers.Update(ctx, l); err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	return nil
}

// debit lowers the prepaid balance and blocks the worker when it falls to the threshold.
func debit(l *model.WorkerLedger, amount float64, now time.Time) {
	l.PrepaidBalance = model.RoundMoney(l.PrepaidBalance - amount)
	l.UpdatedAt = now
	if !l.Blocked() && l.BelowThreshold() {
		blockedAt := now
		l.BalanceBlockedAt = &blockedAt
	}
}

func positiveAmount(raw *float64) (float64, error) {
	if raw == nil {
		return 0, domainErrors.Validation(domainErrors.ReasonInvalidAmount)
	}
	amount := model.NormalizeMoney(*raw)
	if amount == nil || *amount <= 0 {
		return 0, domainErrors.Validation(domainErrors.ReasonInvalidAmount)
	}
	return *amount, nil
}

func noteOr(note, fallback string) string {
	if note = strings.TrimSpace(note); note != "" {
		return note
	}
	return fallback
}
