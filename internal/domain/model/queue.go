package model

import "time"

// ScopeKind selects which orders a queue read can see.
type ScopeKind string

const (
	ScopeDispatcher ScopeKind = "dispatcher"
	ScopeAdmin      ScopeKind = "admin"
	ScopePool       ScopeKind = "pool"
	ScopeWorker     ScopeKind = "worker"
)

// QueueScope binds a scope kind to the actor it is computed for.
type QueueScope struct {
	Kind    ScopeKind
	ActorID string
}

// StatusGroup buckets statuses for triage tabs.
type StatusGroup string

const (
	GroupAll       StatusGroup = ""
	GroupActive    StatusGroup = "active"
	GroupPayment   StatusGroup = "payment"
	GroupConfirmed StatusGroup = "confirmed"
	GroupCanceled  StatusGroup = "canceled"
)

// Valid reports whether group is known.
func (g StatusGroup) Valid() bool {
	switch g {
	case GroupAll, GroupActive, GroupPayment, GroupConfirmed, GroupCanceled:
		return true
	}
	return false
}

// Statuses returns the states included in the group; nil for GroupAll.
func (g StatusGroup) Statuses() []OrderStatus {
	switch g {
	case GroupActive:
		return []OrderStatus{OrderStatusPlaced, OrderStatusReopened, OrderStatusClaimed, OrderStatusStarted}
	case GroupPayment:
		return []OrderStatus{OrderStatusCompleted}
	case GroupConfirmed:
		return []OrderStatus{OrderStatusConfirmed}
	case GroupCanceled:
		return []OrderStatus{OrderStatusCanceledByMaster, OrderStatusCanceledByClient}
	}
	return nil
}

// GroupOf returns the group a status belongs to; expired orders belong to none.
func GroupOf(s OrderStatus) StatusGroup {
	for _, g := range []StatusGroup{GroupActive, GroupPayment, GroupConfirmed, GroupCanceled} {
		for _, member := range g.Statuses() {
			if member == s {
				return g
			}
		}
	}
	return GroupAll
}

// SortOrder controls creation-time ordering.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// QueueFilter narrows a queue page.
type QueueFilter struct {
	Group       StatusGroup
	Search      string
	Urgency     Urgency
	ServiceType string
	Sort        SortOrder
	Page        int
	PageSize    int
}

// Offset returns the zero-based row offset of the page.
func (f QueueFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// AttentionWindows configures staleness thresholds.
type AttentionWindows struct {
	StalePlaced  time.Duration
	StaleClaimed time.Duration
}

// GroupCounts counts orders per status group over a whole scope.
type GroupCounts struct {
	Active    int
	Payment   int
	Confirmed int
	Canceled  int
	Expired   int
	Total     int
}

// Of returns the count of a group; GroupAll yields the total.
func (c GroupCounts) Of(g StatusGroup) int {
	switch g {
	case GroupActive:
		return c.Active
	case GroupPayment:
		return c.Payment
	case GroupConfirmed:
		return c.Confirmed
	case GroupCanceled:
		return c.Canceled
	}
	return c.Total
}

// QueuePage is the result of one aggregation pass.
type QueuePage struct {
	Orders    []Order
	Matched   int
	Counts    GroupCounts
	Attention []Order
	Page      int
	PageSize  int
}

// StatsSummary aggregates scope-wide figures.
type StatsSummary struct {
	Counts           GroupCounts
	ByStatus         map[OrderStatus]int
	ConfirmedRevenue float64
	AverageCheck     float64
	AttentionCount   int
	DisputedCount    int
	From             *time.Time
	To               *time.Time
}
