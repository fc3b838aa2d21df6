package model

import "time"

// OrderStatus describes the order lifecycle state.
type OrderStatus string

const (
	OrderStatusPlaced           OrderStatus = "placed"
	OrderStatusReopened         OrderStatus = "reopened"
	OrderStatusClaimed          OrderStatus = "claimed"
	OrderStatusStarted          OrderStatus = "started"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusConfirmed        OrderStatus = "confirmed"
	OrderStatusCanceledByMaster OrderStatus = "canceled_by_master"
	OrderStatusCanceledByClient OrderStatus = "canceled_by_client"
	OrderStatusExpired          OrderStatus = "expired"
)

// AllOrderStatuses lists every lifecycle state.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusReopened,
	OrderStatusClaimed,
	OrderStatusStarted,
	OrderStatusCompleted,
	OrderStatusConfirmed,
	OrderStatusCanceledByMaster,
	OrderStatusCanceledByClient,
	OrderStatusExpired,
}

// Valid reports whether status is a known lifecycle state.
func (s OrderStatus) Valid() bool {
	for _, known := range AllOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// HoldsMaster reports whether orders in this state must carry a master.
func (s OrderStatus) HoldsMaster() bool {
	switch s {
	case OrderStatusClaimed, OrderStatusStarted, OrderStatusCompleted, OrderStatusConfirmed:
		return true
	}
	return false
}

// Urgency classifies how soon the job must be done.
type Urgency string

const (
	UrgencyPlanned   Urgency = "planned"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Valid reports whether urgency is known.
func (u Urgency) Valid() bool {
	return u == UrgencyPlanned || u == UrgencyUrgent || u == UrgencyEmergency
}

// PricingType tells whether the price was agreed upfront.
type PricingType string

const (
	PricingFixed   PricingType = "fixed"
	PricingUnknown PricingType = "unknown"
)

// Valid reports whether pricing type is known.
func (p PricingType) Valid() bool {
	return p == PricingFixed || p == PricingUnknown
}

// PaymentMethod is recorded on confirmation as metadata only.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid reports whether method is known.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentTransfer
}

// Order is the central entity of the marketplace.
type Order struct {
	ID      string
	Version int64

	ClientID             *string
	ClientName           string
	ClientPhone          string
	MasterID             *string
	DispatcherID         string
	AssignedDispatcherID string

	ServiceType        string
	Urgency            Urgency
	ProblemDescription string
	Area               string
	FullAddress        string
	PreferredAt        *time.Time
	DispatcherNote     string

	PricingType       PricingType
	InitialPrice      *float64
	CalloutFee        float64
	FinalPrice        *float64
	PriceChangeReason string
	WorkPerformed     string

	PaymentMethod   PaymentMethod
	PaymentProofURL string
	CancelReason    string
	RefusalReason   string

	Status         OrderStatus
	IsDisputed     bool
	RequiresReview bool

	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClaimedAt          *time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	ConfirmedAt        *time.Time
	CanceledAt         *time.Time
	PaymentConfirmedAt *time.Time
}

// Clone returns a deep copy so callers can derive a next state without aliasing.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.ClientID = cloneString(o.ClientID)
	c.MasterID = cloneString(o.MasterID)
	c.PreferredAt = cloneTime(o.PreferredAt)
	c.InitialPrice = cloneFloat(o.InitialPrice)
	c.FinalPrice = cloneFloat(o.FinalPrice)
	c.ClaimedAt = cloneTime(o.ClaimedAt)
	c.StartedAt = cloneTime(o.StartedAt)
	c.CompletedAt = cloneTime(o.CompletedAt)
	c.ConfirmedAt = cloneTime(o.ConfirmedAt)
	c.CanceledAt = cloneTime(o.CanceledAt)
	c.PaymentConfirmedAt = cloneTime(o.PaymentConfirmedAt)
	return &c
}

// HeldBy reports whether the given worker currently holds the order.
func (o *Order) HeldBy(workerID string) bool {
	return o.MasterID != nil && *o.MasterID == workerID
}

// OwnedBy reports whether the dispatcher created or currently handles the order.
func (o *Order) OwnedBy(dispatcherID string) bool {
	return o.DispatcherID == dispatcherID || o.AssignedDispatcherID == dispatcherID
}

// WorkerLoad summarizes the jobs a worker currently holds.
type WorkerLoad struct {
	Active              int
	PendingConfirmation int
	NextPlannedAt       *time.Time
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
