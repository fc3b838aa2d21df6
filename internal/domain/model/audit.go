package model

import "time"

// AuditEntry records one state-changing operation on an order.
type AuditEntry struct {
	ID          int64
	OrderID     string
	Action      string
	OldSnapshot *Order
	NewSnapshot *Order
	PerformedBy string
	Note        string
	CreatedAt   time.Time
}

// ServiceType is reference data for order categorisation.
type ServiceType struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// District is reference data for order areas.
type District struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}
