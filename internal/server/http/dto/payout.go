package dto

import (
	"time"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// PayoutRequestBody describes POST /api/payouts.
type PayoutRequestBody struct {
	Amount Money `json:"amount"`
}

// PayoutDecisionRequest describes POST /api/payouts/:id/decision.
type PayoutDecisionRequest struct {
	Approve bool   `json:"approve"`
	Amount  Money  `json:"amount"`
	Note    string `json:"note"`
}

// PayoutResponse is the wire form of a payout request.
type PayoutResponse struct {
	ID              string     `json:"id"`
	WorkerID        string     `json:"worker_id"`
	Status          string     `json:"status"`
	RequestedAmount float64    `json:"requested_amount"`
	ApprovedAmount  *float64   `json:"approved_amount,omitempty"`
	AdminNote       string     `json:"admin_note,omitempty"`
	DecidedBy       *string    `json:"decided_by,omitempty"`
	RequestedAt     time.Time  `json:"requested_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

// NewPayoutResponse converts a payout request.
func NewPayoutResponse(p model.PayoutRequest) PayoutResponse {
	return PayoutResponse{
		ID:              p.ID,
		WorkerID:        p.WorkerID,
		Status:          string(p.Status),
		RequestedAmount: p.RequestedAmount,
		ApprovedAmount:  p.ApprovedAmount,
		AdminNote:       p.AdminNote,
		DecidedBy:       p.DecidedBy,
		RequestedAt:     p.RequestedAt,
		DecidedAt:       p.DecidedAt,
		PaidAt:          p.PaidAt,
	}
}

// NewPayoutList converts payout requests.
func NewPayoutList(items []model.PayoutRequest) []PayoutResponse {
	out := make([]PayoutResponse, 0, len(items))
	for _, p := range items {
		out = append(out, NewPayoutResponse(p))
	}
	return out
}
