package repository

import (
	"context"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// LedgerRepository manages worker ledgers and their append-only transaction log.
type LedgerRepository interface {
	Create(ctx context.Context, ledger *model.WorkerLedger) error
	Get(ctx context.Context, workerID string) (*model.WorkerLedger, error)
	// GetForUpdate locks the ledger row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, workerID string) (*model.WorkerLedger, error)
	Update(ctx context.Context, ledger *model.WorkerLedger) error
	AppendTransaction(ctx context.Context, tx *model.BalanceTransaction) (*model.BalanceTransaction, error)
	ListTransactions(ctx context.Context, workerID string, limit int) ([]model.BalanceTransaction, error)
}

// PayoutRepository stores payout requests.
type PayoutRepository interface {
	Create(ctx context.Context, req *model.PayoutRequest) error
	Get(ctx context.Context, id string) (*model.PayoutRequest, error)
	// UpdateStatus stores req iff the stored status still equals from.
	UpdateStatus(ctx context.Context, req *model.PayoutRequest, from model.PayoutStatus) error
	List(ctx context.Context, q PayoutQuery) ([]model.PayoutRequest, error)
}

// PayoutQuery filters payout listings. Empty fields match everything.
type PayoutQuery struct {
	WorkerID string
	Status   model.PayoutStatus
	Limit    int
}
