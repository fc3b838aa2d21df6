package model

import "time"

// WorkerLedger is the materialized running total of a worker's balance transactions.
type WorkerLedger struct {
	WorkerID            string
	TotalEarnings       float64
	TotalCommissionOwed float64
	TotalCommissionPaid float64
	PrepaidBalance      float64
	BalanceThreshold    float64
	BalanceBlockedAt    *time.Time
	MaxActiveJobs       int
	ActiveJobs          int
	RefusalCount        int
	CompletedJobsCount  int
	UpdatedAt           time.Time
}

// OutstandingCommission returns commission owed but not yet paid.
func (l *WorkerLedger) OutstandingCommission() float64 {
	return RoundMoney(l.TotalCommissionOwed - l.TotalCommissionPaid)
}

// BelowThreshold reports whether prepaid balance is at or under the block threshold.
func (l *WorkerLedger) BelowThreshold() bool {
	return l.PrepaidBalance <= l.BalanceThreshold
}

// Blocked reports whether the worker is balance blocked.
func (l *WorkerLedger) Blocked() bool {
	return l.BalanceBlockedAt != nil
}

// ClaimsBlocked reports whether the balance keeps the worker from taking jobs.
// A balance at or under the threshold blocks even before the flag is recorded.
func (l *WorkerLedger) ClaimsBlocked() bool {
	return l.Blocked() || l.BelowThreshold()
}

// TransactionType classifies ledger mutations.
type TransactionType string

const (
	TransactionCommissionEarned TransactionType = "commission_earned"
	TransactionPayment          TransactionType = "payment"
	TransactionPayoutPaid       TransactionType = "payout_paid"
	TransactionAdminAdjustment  TransactionType = "admin_adjustment"
	TransactionManualDeduction  TransactionType = "manual_deduction"
)

// BalanceTransaction is an immutable ledger record. Balance fields track prepaid balance.
type BalanceTransaction struct {
	ID              int64
	WorkerID        string
	Type            TransactionType
	Amount          float64
	BalanceBefore   float64
	BalanceAfter    float64
	OrderID         *string
	PayoutRequestID *string
	Note            string
	CreatedAt       time.Time
}

// PaymentSource tells where a commission payment came from.
type PaymentSource string

const (
	PaymentSourceCash     PaymentSource = "cash"
	PaymentSourceTransfer PaymentSource = "transfer"
	PaymentSourceBalance  PaymentSource = "balance"
)

// Valid reports whether source is known.
func (s PaymentSource) Valid() bool {
	return s == PaymentSourceCash || s == PaymentSourceTransfer || s == PaymentSourceBalance
}
