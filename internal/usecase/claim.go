package usecase

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

// Eligibility is the advisory outcome of a claim pre-check.
// Reasons block the claim; Warnings block it unless the worker acknowledges them.
type Eligibility struct {
	Eligible bool                      `json:"eligible"`
	Reasons  []domainErrors.ReasonCode `json:"reasons"`
	Warnings []domainErrors.ReasonCode `json:"warnings"`
}

// ClaimResolver checks whether a worker may take another job.
// The check is advisory: the conditional update performed by the workflow decides.
type ClaimResolver struct {
	orders    repository.OrderRepository
	ledgers   repository.LedgerRepository
	directory repository.DirectoryRepository
	settings  Settings
}

// NewClaimResolver constructs ClaimResolver.
func NewClaimResolver(orders repository.OrderRepository, ledgers repository.LedgerRepository, directory repository.DirectoryRepository, settings Settings) *ClaimResolver {
	return &ClaimResolver{orders: orders, ledgers: ledgers, directory: directory, settings: settings}
}

// Refresh overlays the directory's verification and active flags on the token actor.
// A worker missing from the directory keeps the flags the identity provider issued.
func (r *ClaimResolver) Refresh(ctx context.Context, actor model.Actor) (model.Actor, error) {
	profile, err := r.directory.GetProfile(ctx, actor.ID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return actor, nil
	}
	if err != nil {
		return actor, err
	}
	actor.IsVerified = profile.IsVerified
	actor.IsActive = profile.IsActive
	return actor, nil
}

// Check collects every blocking reason for the worker, in a fixed order.
func (r *ClaimResolver) Check(ctx context.Context, actor model.Actor, now time.Time) (*Eligibility, error) {
	if actor.Role != model.RoleMaster {
		return nil, domainErrors.Guard(domainErrors.ReasonRoleNotAllowed)
	}

	result := &Eligibility{}
	if !actor.IsVerified {
		result.Reasons = append(result.Reasons, domainErrors.ReasonNotVerified)
	}
	if !actor.IsActive {
		result.Reasons = append(result.Reasons, domainErrors.ReasonNotActive)
	}

	maxJobs := r.settings.DefaultMaxActiveJobs
	ledger, err := r.ledgers.Get(ctx, actor.ID)
	switch {
	case errors.Is(err, domainErrors.ErrNotFound):
		result.Reasons = append(result.Reasons, domainErrors.ReasonNoLedger)
	case err != nil:
		return nil, err
	default:
		if ledger.ClaimsBlocked() {
			result.Reasons = append(result.Reasons, domainErrors.ReasonBalanceBlocked)
		}
		maxJobs = ledger.MaxActiveJobs
	}

	load, err := r.orders.WorkerLoad(ctx, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if load.Active >= maxJobs {
		result.Reasons = append(result.Reasons, domainErrors.ReasonMaxJobsReached)
	}
	if load.PendingConfirmation >= r.settings.PendingConfirmationLimit {
		result.Reasons = append(result.Reasons, domainErrors.ReasonPendingConfirmations)
	}
	if load.NextPlannedAt != nil && load.NextPlannedAt.Sub(now) <= r.settings.PlannedSoonWindow {
		result.Warnings = append(result.Warnings, domainErrors.ReasonPlannedJobSoon)
	}

	result.Eligible = len(result.Reasons) == 0
	return result, nil
}

// Gate turns an eligibility result into the failure that blocks the claim, if any.
func (e *Eligibility) Gate(acknowledged bool) error {
	if len(e.Reasons) > 0 {
		return domainErrors.Guard(e.Reasons...)
	}
	if len(e.Warnings) > 0 && !acknowledged {
		return domainErrors.Guard(e.Warnings...)
	}
	return nil
}

// checkAssignable validates a staff-chosen worker. Job-count limits are not enforced.
func (r *ClaimResolver) checkAssignable(ctx context.Context, workerID string) (*model.Profile, error) {
	profile, err := r.directory.GetProfile(ctx, workerID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil, domainErrors.Guard(domainErrors.ReasonTargetNotMaster)
	}
	if err != nil {
		return nil, err
	}
	if profile.Role != model.RoleMaster {
		return nil, domainErrors.Guard(domainErrors.ReasonTargetNotMaster)
	}
	ledger, err := r.ledgers.Get(ctx, workerID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil, domainErrors.Guard(domainErrors.ReasonNoLedger)
	}
	if err != nil {
		return nil, err
	}
	if ledger.ClaimsBlocked() {
		return nil, domainErrors.Guard(domainErrors.ReasonBalanceBlocked)
	}
	return profile, nil
}
