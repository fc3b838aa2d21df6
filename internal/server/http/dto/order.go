package dto

import (
	"time"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// CreateOrderRequest describes POST /api/orders.
type CreateOrderRequest struct {
	ClientID           *string    `json:"client_id"`
	ClientName         string     `json:"client_name"`
	ClientPhone        string     `json:"client_phone"`
	ServiceType        string     `json:"service_type"`
	Urgency            string     `json:"urgency"`
	ProblemDescription string     `json:"problem_description"`
	Area               string     `json:"area"`
	FullAddress        string     `json:"full_address"`
	PreferredAt        *time.Time `json:"preferred_at"`
	DispatcherNote     string     `json:"dispatcher_note"`
	PricingType        string     `json:"pricing_type"`
	InitialPrice       Money      `json:"initial_price"`
	CalloutFee         Money      `json:"callout_fee"`
}

// ClaimRequest describes POST /api/orders/:id/claim.
type ClaimRequest struct {
	AcknowledgeWarnings bool `json:"acknowledge_warnings"`
}

// CompleteRequest describes POST /api/orders/:id/complete.
type CompleteRequest struct {
	FinalPrice        Money  `json:"final_price"`
	WorkPerformed     string `json:"work_performed"`
	PriceChangeReason string `json:"price_change_reason"`
}

// ReasonRequest carries a free-text reason or note.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ConfirmRequest describes POST /api/orders/:id/confirm.
type ConfirmRequest struct {
	PaymentMethod   string `json:"payment_method"`
	PaymentProofURL string `json:"payment_proof_url"`
}

// TransferRequest describes POST /api/orders/:id/transfer.
type TransferRequest struct {
	DispatcherID string `json:"dispatcher_id"`
}

// AssignRequest describes POST /api/orders/:id/assign.
type AssignRequest struct {
	MasterID string `json:"master_id"`
}

// DisputeRequest describes POST /api/orders/:id/dispute.
type DisputeRequest struct {
	Disputed bool   `json:"disputed"`
	Note     string `json:"note"`
}

// OrderResponse is the wire form of an order.
type OrderResponse struct {
	ID                   string     `json:"id"`
	Version              int64      `json:"version"`
	ClientID             *string    `json:"client_id,omitempty"`
	ClientName           string     `json:"client_name,omitempty"`
	ClientPhone          string     `json:"client_phone,omitempty"`
	MasterID             *string    `json:"master_id,omitempty"`
	DispatcherID         string     `json:"dispatcher_id"`
	AssignedDispatcherID string     `json:"assigned_dispatcher_id"`
	ServiceType          string     `json:"service_type"`
	Urgency              string     `json:"urgency"`
	ProblemDescription   string     `json:"problem_description,omitempty"`
	Area                 string     `json:"area,omitempty"`
	FullAddress          string     `json:"full_address,omitempty"`
	PreferredAt          *time.Time `json:"preferred_at,omitempty"`
	DispatcherNote       string     `json:"dispatcher_note,omitempty"`
	PricingType          string     `json:"pricing_type"`
	InitialPrice         *float64   `json:"initial_price"`
	CalloutFee           float64    `json:"callout_fee"`
	FinalPrice           *float64   `json:"final_price"`
	PriceChangeReason    string     `json:"price_change_reason,omitempty"`
	WorkPerformed        string     `json:"work_performed,omitempty"`
	PaymentMethod        string     `json:"payment_method,omitempty"`
	PaymentProofURL      string     `json:"payment_proof_url,omitempty"`
	CancelReason         string     `json:"cancel_reason,omitempty"`
	RefusalReason        string     `json:"refusal_reason,omitempty"`
	Status               string     `json:"status"`
	IsDisputed           bool       `json:"is_disputed"`
	RequiresReview       bool       `json:"requires_review"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ClaimedAt            *time.Time `json:"claimed_at,omitempty"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
	PaymentConfirmedAt   *time.Time `json:"payment_confirmed_at,omitempty"`
}

// NewOrderResponse converts an order to its wire form.
func NewOrderResponse(o model.Order) OrderResponse {
	return OrderResponse{
		ID:                   o.ID,
		Version:              o.Version,
		ClientID:             o.ClientID,
		ClientName:           o.ClientName,
		ClientPhone:          o.ClientPhone,
		MasterID:             o.MasterID,
		DispatcherID:         o.DispatcherID,
		AssignedDispatcherID: o.AssignedDispatcherID,
		ServiceType:          o.ServiceType,
		Urgency:              string(o.Urgency),
		ProblemDescription:   o.ProblemDescription,
		Area:                 o.Area,
		FullAddress:          o.FullAddress,
		PreferredAt:          o.PreferredAt,
		DispatcherNote:       o.DispatcherNote,
		PricingType:          string(o.PricingType),
		InitialPrice:         o.InitialPrice,
		CalloutFee:           o.CalloutFee,
		FinalPrice:           o.FinalPrice,
		PriceChangeReason:    o.PriceChangeReason,
		WorkPerformed:        o.WorkPerformed,
		PaymentMethod:        string(o.PaymentMethod),
		PaymentProofURL:      o.PaymentProofURL,
		CancelReason:         o.CancelReason,
		RefusalReason:        o.RefusalReason,
		Status:               string(o.Status),
		IsDisputed:           o.IsDisputed,
		RequiresReview:       o.RequiresReview,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
		ClaimedAt:            o.ClaimedAt,
		StartedAt:            o.StartedAt,
		CompletedAt:          o.CompletedAt,
		ConfirmedAt:          o.ConfirmedAt,
		CanceledAt:           o.CanceledAt,
		PaymentConfirmedAt:   o.PaymentConfirmedAt,
	}
}

// NewOrderList converts a slice of orders, never returning nil.
func NewOrderList(orders []model.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderResponse(o))
	}
	return out
}

// AuditEntryResponse is one audit trail row.
type AuditEntryResponse struct {
	ID          int64          `json:"id"`
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"`
	Note        string         `json:"note,omitempty"`
	OldSnapshot *OrderResponse `json:"old_snapshot,omitempty"`
	NewSnapshot *OrderResponse `json:"new_snapshot,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewAuditTrail converts audit entries.
func NewAuditTrail(entries []model.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:          e.ID,
			Action:      e.Action,
			PerformedBy: e.PerformedBy,
			Note:        e.Note,
			OldSnapshot: snapshot(e.OldSnapshot),
			NewSnapshot: snapshot(e.NewSnapshot),
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

func snapshot(o *model.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	r := NewOrderResponse(*o)
	return &r
}
