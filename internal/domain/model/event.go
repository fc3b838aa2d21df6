package model

import "time"

// EventKind names a notification delivered to interested actors.
type EventKind string

const (
	EventOrderCreated  EventKind = "order.created"
	EventOrderChanged  EventKind = "order.changed"
	EventOrderExpired  EventKind = "order.expired"
	EventLedgerBlocked EventKind = "ledger.blocked"
	EventPayoutUpdated EventKind = "payout.updated"
)

// Event is a fire-and-forget notification. Recipients are actor ids.
type Event struct {
	Kind       EventKind   `json:"kind"`
	OrderID    string      `json:"order_id,omitempty"`
	Action     string      `json:"action,omitempty"`
	Status     OrderStatus `json:"status,omitempty"`
	WorkerID   string      `json:"worker_id,omitempty"`
	PayoutID   string      `json:"payout_id,omitempty"`
	Recipients []string    `json:"-"`
	At         time.Time   `json:"at"`
}
