package errors

import (
	"errors"
	"strings"
)

var (
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conditional update matched no rows")
	ErrUnauthenticated = errors.New("no authenticated actor")
	ErrOutcomeUnknown  = errors.New("operation outcome unknown, re-query before retrying")
	ErrUnavailable     = errors.New("service temporarily unavailable, try again")
)

// ReasonCode is a stable, machine-readable explanation of a rejected action.
type ReasonCode string

const (
	ReasonNotVerified              ReasonCode = "NOT_VERIFIED"
	ReasonNotActive                ReasonCode = "NOT_ACTIVE"
	ReasonBalanceBlocked           ReasonCode = "BALANCE_BLOCKED"
	ReasonMaxJobsReached           ReasonCode = "MAX_JOBS_REACHED"
	ReasonPendingConfirmations     ReasonCode = "PENDING_CONFIRMATION_LIMIT"
	ReasonPlannedJobSoon           ReasonCode = "PLANNED_JOB_SOON"
	ReasonOrderNotAvailable        ReasonCode = "ORDER_NOT_AVAILABLE"
	ReasonNoLedger                 ReasonCode = "LEDGER_NOT_FOUND"
	ReasonRoleNotAllowed           ReasonCode = "ROLE_NOT_ALLOWED"
	ReasonInvalidStatus            ReasonCode = "INVALID_STATUS"
	ReasonNotOrderOwner            ReasonCode = "NOT_ORDER_OWNER"
	ReasonNotClaimHolder           ReasonCode = "NOT_CLAIM_HOLDER"
	ReasonDisputedRequiresAdmin    ReasonCode = "DISPUTED_REQUIRES_ADMIN"
	ReasonPaymentMethodRequired    ReasonCode = "PAYMENT_METHOD_REQUIRED"
	ReasonPaymentProofRequired     ReasonCode = "PAYMENT_PROOF_REQUIRED"
	ReasonRefusalReasonRequired    ReasonCode = "REFUSAL_REASON_REQUIRED"
	ReasonSameDispatcher           ReasonCode = "SAME_DISPATCHER"
	ReasonTargetNotDispatcher      ReasonCode = "TARGET_NOT_DISPATCHER"
	ReasonTargetNotMaster          ReasonCode = "TARGET_NOT_MASTER"
	ReasonNotExpired               ReasonCode = "NOT_PAST_EXPIRY"
	ReasonFinalPriceRequired       ReasonCode = "FINAL_PRICE_REQUIRED"
	ReasonFinalPriceBelowCallout   ReasonCode = "FINAL_PRICE_BELOW_CALLOUT_FEE"
	ReasonInitialPriceBelowCallout ReasonCode = "INITIAL_PRICE_BELOW_CALLOUT_FEE"
	ReasonPriceChangeReason        ReasonCode = "PRICE_CHANGE_REASON_REQUIRED"
	ReasonServiceTypeRequired      ReasonCode = "SERVICE_TYPE_REQUIRED"
	ReasonClientRequired           ReasonCode = "CLIENT_REQUIRED"
	ReasonAddressRequired          ReasonCode = "ADDRESS_REQUIRED"
	ReasonInvalidUrgency           ReasonCode = "INVALID_URGENCY"
	ReasonInvalidPricingType       ReasonCode = "INVALID_PRICING_TYPE"
	ReasonInvalidAmount            ReasonCode = "INVALID_AMOUNT"
	ReasonExceedsOutstanding       ReasonCode = "EXCEEDS_OUTSTANDING_COMMISSION"
	ReasonInvalidPaymentSource     ReasonCode = "INVALID_PAYMENT_SOURCE"
	ReasonInsufficientBalance      ReasonCode = "INSUFFICIENT_BALANCE"
	ReasonBalanceStillLow          ReasonCode = "BALANCE_STILL_LOW"
	ReasonNotBlocked               ReasonCode = "NOT_BLOCKED"
	ReasonPayoutNotPending         ReasonCode = "PAYOUT_NOT_PENDING"
	ReasonPayoutNotApproved        ReasonCode = "PAYOUT_NOT_APPROVED"
	ReasonInvalidFilter            ReasonCode = "INVALID_FILTER"
)

// Kind classifies domain failures. Every kind is an expected result, not a system error.
type Kind string

const (
	KindGuard      Kind = "guard"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
)

// Failure is a structured domain result carrying stable reason codes.
type Failure struct {
	Kind    Kind
	Reasons []ReasonCode
}

// Guard builds a guard violation.
func Guard(reasons ...ReasonCode) *Failure {
	return &Failure{Kind: KindGuard, Reasons: reasons}
}

// Validation builds an input validation failure.
func Validation(reasons ...ReasonCode) *Failure {
	return &Failure{Kind: KindValidation, Reasons: reasons}
}

// NotAvailable is the conflict returned to every loser of a claim race.
func NotAvailable() *Failure {
	return &Failure{Kind: KindConflict, Reasons: []ReasonCode{ReasonOrderNotAvailable}}
}

func (f *Failure) Error() string {
	codes := make([]string, 0, len(f.Reasons))
	for _, r := range f.Reasons {
		codes = append(codes, string(r))
	}
	return string(f.Kind) + ": " + strings.Join(codes, ",")
}

// Has reports whether the failure carries the reason.
func (f *Failure) Has(code ReasonCode) bool {
	for _, r := range f.Reasons {
		if r == code {
			return true
		}
	}
	return false
}

// AsFailure unwraps a Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// HasReason reports whether err is a Failure carrying code.
func HasReason(err error, code ReasonCode) bool {
	f, ok := AsFailure(err)
	return ok && f.Has(code)
}
