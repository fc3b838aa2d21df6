package dto

import (
	"time"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// OpenLedgerRequest describes POST /api/ledgers.
type OpenLedgerRequest struct {
	WorkerID         string `json:"worker_id"`
	MaxActiveJobs    int    `json:"max_active_jobs"`
	BalanceThreshold Money  `json:"balance_threshold"`
	InitialBalance   Money  `json:"initial_balance"`
}

// PaymentRequest describes POST /api/ledgers/:workerID/payments.
type PaymentRequest struct {
	Amount Money  `json:"amount"`
	Source string `json:"source"`
	Note   string `json:"note"`
}

// AdjustmentRequest describes POST /api/ledgers/:workerID/adjustments.
type AdjustmentRequest struct {
	Amount    Money  `json:"amount"`
	Deduction bool   `json:"deduction"`
	Note      string `json:"note"`
}

// LedgerResponse is the wire form of a worker ledger.
type LedgerResponse struct {
	WorkerID              string     `json:"worker_id"`
	TotalEarnings         float64    `json:"total_earnings"`
	TotalCommissionOwed   float64    `json:"total_commission_owed"`
	TotalCommissionPaid   float64    `json:"total_commission_paid"`
	OutstandingCommission float64    `json:"outstanding_commission"`
	PrepaidBalance        float64    `json:"prepaid_balance"`
	BalanceThreshold      float64    `json:"balance_threshold"`
	BalanceBlocked        bool       `json:"balance_blocked"`
	BalanceBlockedAt      *time.Time `json:"balance_blocked_at,omitempty"`
	MaxActiveJobs         int        `json:"max_active_jobs"`
	ActiveJobs            int        `json:"active_jobs"`
	RefusalCount          int        `json:"refusal_count"`
	CompletedJobsCount    int        `json:"completed_jobs_count"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// NewLedgerResponse converts a ledger.
func NewLedgerResponse(l *model.WorkerLedger) LedgerResponse {
	return LedgerResponse{
		WorkerID:              l.WorkerID,
		TotalEarnings:         l.TotalEarnings,
		TotalCommissionOwed:   l.TotalCommissionOwed,
		TotalCommissionPaid:   l.TotalCommissionPaid,
		OutstandingCommission: l.OutstandingCommission(),
		PrepaidBalance:        l.PrepaidBalance,
		BalanceThreshold:      l.BalanceThreshold,
		BalanceBlocked:        l.Blocked(),
		BalanceBlockedAt:      l.BalanceBlockedAt,
		MaxActiveJobs:         l.MaxActiveJobs,
		ActiveJobs:            l.ActiveJobs,
		RefusalCount:          l.RefusalCount,
		CompletedJobsCount:    l.CompletedJobsCount,
		UpdatedAt:             l.UpdatedAt,
	}
}

// TransactionResponse is one ledger transaction.
type TransactionResponse struct {
	ID              int64     `json:"id"`
	Type            string    `json:"type"`
	Amount          float64   `json:"amount"`
	BalanceBefore   float64   `json:"balance_before"`
	BalanceAfter    float64   `json:"balance_after"`
	OrderID         *string   `json:"order_id,omitempty"`
	PayoutRequestID *string   `json:"payout_request_id,omitempty"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewTransactionList converts ledger transactions.
func NewTransactionList(items []model.BalanceTransaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, TransactionResponse{
			ID:              t.ID,
			Type:            string(t.Type),
			Amount:          t.Amount,
			BalanceBefore:   t.BalanceBefore,
			BalanceAfter:    t.BalanceAfter,
			OrderID:         t.OrderID,
			PayoutRequestID: t.PayoutRequestID,
			Note:            t.Note,
			CreatedAt:       t.CreatedAt,
		})
	}
	return out
}
