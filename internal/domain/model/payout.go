package model

import "time"

// PayoutStatus describes the withdrawal request flow.
type PayoutStatus string

const (
	PayoutRequested PayoutStatus = "requested"
	PayoutApproved  PayoutStatus = "approved"
	PayoutRejected  PayoutStatus = "rejected"
	PayoutPaid      PayoutStatus = "paid"
)

// PayoutRequest is a worker-initiated withdrawal against positive balance.
type PayoutRequest struct {
	ID              string
	WorkerID        string
	Status          PayoutStatus
	RequestedAmount float64
	ApprovedAmount  *float64
	AdminNote       string
	DecidedBy       *string
	RequestedAt     time.Time
	DecidedAt       *time.Time
	PaidAt          *time.Time
}
