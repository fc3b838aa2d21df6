package lifecycle

import (
	"math"
	"strings"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// Completion carries the worker's report for a finished job.
type Completion struct {
	FinalPrice        *float64
	WorkPerformed     string
	PriceChangeReason string
}

// Payment is the metadata recorded on confirmation.
type Payment struct {
	Method   model.PaymentMethod
	ProofURL string
}

// Claim moves an unclaimed order to the worker.
func Claim(o *model.Order, actor model.Actor, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionClaim, o, actor); err != nil {
		return nil, err
	}
	if o.MasterID != nil {
		return nil, domainErrors.NotAvailable()
	}
	return hold(o, actor.ID, now), nil
}

// Assign gives an unclaimed order to a worker chosen by staff.
func Assign(o *model.Order, actor model.Actor, worker model.Profile, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionAssign, o, actor); err != nil {
		return nil, err
	}
	if worker.Role != model.RoleMaster {
		return nil, domainErrors.Guard(domainErrors.ReasonTargetNotMaster)
	}
	if !worker.IsVerified {
		return nil, domainErrors.Guard(domainErrors.ReasonNotVerified)
	}
	if !worker.IsActive {
		return nil, domainErrors.Guard(domainErrors.ReasonNotActive)
	}
	if o.MasterID != nil {
		return nil, domainErrors.NotAvailable()
	}
	return hold(o, worker.ID, now), nil
}

func hold(o *model.Order, workerID string, now time.Time) *model.Order {
	next := o.Clone()
	next.MasterID = &workerID
	next.Status = model.OrderStatusClaimed
	next.ClaimedAt = &now
	next.StartedAt = nil
	next.CanceledAt = nil
	next.CancelReason = ""
	next.RefusalReason = ""
	next.UpdatedAt = now
	return next
}

// Start records that the holder began the job.
func Start(o *model.Order, actor model.Actor, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionStart, o, actor); err != nil {
		return nil, err
	}
	next := o.Clone()
	next.Status = model.OrderStatusStarted
	next.StartedAt = &now
	next.UpdatedAt = now
	return next, nil
}

// Complete validates the final price before any other precondition, so a price below
// the callout fee is rejected whoever asks and whatever the order state.
// Deviation above threshold relative to the initial price flags the order for review.
func Complete(o *model.Order, actor model.Actor, in Completion, threshold float64, now time.Time) (*model.Order, error) {
	if in.FinalPrice == nil {
		return nil, domainErrors.Validation(domainErrors.ReasonFinalPriceRequired)
	}
	price := model.RoundMoney(*in.FinalPrice)
	if price < o.CalloutFee {
		return nil, domainErrors.Validation(domainErrors.ReasonFinalPriceBelowCallout)
	}
	if err := Authorize(ActionComplete, o, actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.PriceChangeReason)
	changed := o.InitialPrice != nil && price != *o.InitialPrice
	if changed && o.PricingType == model.PricingFixed && reason == "" {
		return nil, domainErrors.Validation(domainErrors.ReasonPriceChangeReason)
	}

	next := o.Clone()
	next.Status = model.OrderStatusCompleted
	next.FinalPrice = &price
	next.WorkPerformed = strings.TrimSpace(in.WorkPerformed)
	next.PriceChangeReason = reason
	next.CompletedAt = &now
	next.UpdatedAt = now
	if Deviates(o.InitialPrice, price, threshold) {
		next.RequiresReview = true
	}
	return next, nil
}

// Deviates reports whether final differs from initial by more than threshold, relatively.
func Deviates(initial *float64, final, threshold float64) bool {
	if initial == nil || *initial <= 0 || threshold <= 0 {
		return false
	}
	return math.Abs(final-*initial)/(*initial) > threshold
}

// Refuse returns a started job. The master is released so the order can be reopened.
func Refuse(o *model.Order, actor model.Actor, reason string, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionRefuse, o, actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domainErrors.Guard(domainErrors.ReasonRefusalReasonRequired)
	}
	next := o.Clone()
	next.Status = model.OrderStatusCanceledByMaster
	next.MasterID = nil
	next.RefusalReason = reason
	next.CanceledAt = &now
	next.UpdatedAt = now
	return next, nil
}

// Confirm records payment on a completed order.
func Confirm(o *model.Order, actor model.Actor, p Payment, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionConfirm, o, actor); err != nil {
		return nil, err
	}
	if o.IsDisputed && actor.Role != model.RoleAdmin {
		return nil, domainErrors.Guard(domainErrors.ReasonDisputedRequiresAdmin)
	}
	if !p.Method.Valid() {
		return nil, domainErrors.Guard(domainErrors.ReasonPaymentMethodRequired)
	}
	proof := strings.TrimSpace(p.ProofURL)
	if p.Method == model.PaymentTransfer && proof == "" {
		return nil, domainErrors.Guard(domainErrors.ReasonPaymentProofRequired)
	}
	next := o.Clone()
	next.Status = model.OrderStatusConfirmed
	next.PaymentMethod = p.Method
	next.PaymentProofURL = proof
	next.ConfirmedAt = &now
	next.PaymentConfirmedAt = &now
	next.UpdatedAt = now
	return next, nil
}

// CancelByClient closes an order on the client's behalf.
func CancelByClient(o *model.Order, actor model.Actor, reason string, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionCancel, o, actor); err != nil {
		return nil, err
	}
	next := o.Clone()
	next.Status = model.OrderStatusCanceledByClient
	next.MasterID = nil
	next.CancelReason = strings.TrimSpace(reason)
	next.CanceledAt = &now
	next.UpdatedAt = now
	return next, nil
}

// Reopen puts a canceled or expired order back into the pool.
func Reopen(o *model.Order, actor model.Actor, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionReopen, o, actor); err != nil {
		return nil, err
	}
	return release(o, now), nil
}

// Unassign takes a held job away from its worker and returns it to the pool.
func Unassign(o *model.Order, actor model.Actor, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionUnassign, o, actor); err != nil {
		return nil, err
	}
	return release(o, now), nil
}

func release(o *model.Order, now time.Time) *model.Order {
	next := o.Clone()
	next.Status = model.OrderStatusReopened
	next.MasterID = nil
	next.ClaimedAt = nil
	next.StartedAt = nil
	next.CanceledAt = nil
	next.UpdatedAt = now
	return next
}

// Transfer hands the order to another dispatcher without touching its status.
func Transfer(o *model.Order, actor model.Actor, target model.Profile, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionTransfer, o, actor); err != nil {
		return nil, err
	}
	if target.Role != model.RoleDispatcher || !target.IsActive {
		return nil, domainErrors.Guard(domainErrors.ReasonTargetNotDispatcher)
	}
	if target.ID == o.AssignedDispatcherID {
		return nil, domainErrors.Guard(domainErrors.ReasonSameDispatcher)
	}
	next := o.Clone()
	next.AssignedDispatcherID = target.ID
	next.UpdatedAt = now
	return next, nil
}

// Expire closes an unclaimed order that outlived the expiry window.
func Expire(o *model.Order, actor model.Actor, expiry time.Duration, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionExpire, o, actor); err != nil {
		return nil, err
	}
	if o.MasterID != nil {
		return nil, domainErrors.NotAvailable()
	}
	if !now.After(o.CreatedAt.Add(expiry)) {
		return nil, domainErrors.Guard(domainErrors.ReasonNotExpired)
	}
	next := o.Clone()
	next.Status = model.OrderStatusExpired
	next.CanceledAt = &now
	next.UpdatedAt = now
	return next, nil
}

// SetDispute raises or clears the dispute flag.
func SetDispute(o *model.Order, actor model.Actor, disputed bool, now time.Time) (*model.Order, error) {
	if err := Authorize(ActionDispute, o, actor); err != nil {
		return nil, err
	}
	next := o.Clone()
	next.IsDisputed = disputed
	next.UpdatedAt = now
	return next, nil
}

// CheckMasterInvariant reports whether master presence matches the status.
func CheckMasterInvariant(o *model.Order) bool {
	return (o.MasterID != nil) == o.Status.HoldsMaster()
}
