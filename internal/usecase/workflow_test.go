package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/lifecycle"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

func completion(price float64) lifecycle.Completion {
	return lifecycle.Completion{FinalPrice: &price, WorkPerformed: "replaced cartridge"}
}

func TestWorkflowHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)

	preferred := testStart.Add(48 * time.Hour)
	o := h.createOrder(t, func(in *NewOrder) {
		in.Urgency = model.UrgencyPlanned
		in.PreferredAt = &preferred
	})
	if o.Status != model.OrderStatusPlaced || o.DispatcherID != dispatcher1.ID || o.AssignedDispatcherID != dispatcher1.ID {
		t.Fatalf("unexpected created order: %+v", o)
	}

	claimed, err := h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != model.OrderStatusClaimed || !claimed.HeldBy(master1.ID) || claimed.ClaimedAt == nil {
		t.Fatalf("unexpected claimed order: %+v", claimed)
	}
	if l := h.ledgerOf(t, master1.ID); l.ActiveJobs != 1 {
		t.Fatalf("expected one active job, got %d", l.ActiveJobs)
	}

	if _, err := h.workflow.StartJob(ctx, master1, o.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(time.Hour)
	if _, err := h.workflow.CompleteJob(ctx, master1, o.ID, completion(700)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	confirmed, err := h.workflow.ConfirmPayment(ctx, dispatcher1, o.ID, lifecycle.Payment{Method: model.PaymentCash})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.OrderStatusConfirmed || confirmed.PaymentConfirmedAt == nil {
		t.Fatalf("unexpected confirmed order: %+v", confirmed)
	}
	if !lifecycle.CheckMasterInvariant(confirmed) {
		t.Fatal("confirmed order must keep its master")
	}

	l := h.ledgerOf(t, master1.ID)
	if l.TotalEarnings != 700 || l.TotalCommissionOwed != 70 || l.CompletedJobsCount != 1 || l.ActiveJobs != 0 {
		t.Fatalf("unexpected ledger: %+v", l)
	}
	history, err := h.ledger.History(ctx, master1, master1.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Type != model.TransactionCommissionEarned || history[0].Amount != 70 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[0].OrderID == nil || *history[0].OrderID != o.ID {
		t.Fatalf("commission must reference the order: %+v", history[0])
	}

	trail, err := h.workflow.AuditTrail(ctx, dispatcher1, o.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	wantActions := []string{"create", "claim", "start", "complete", "confirm"}
	if len(trail) != len(wantActions) {
		t.Fatalf("expected %d audit entries, got %d", len(wantActions), len(trail))
	}
	for i, action := range wantActions {
		if trail[i].Action != action {
			t.Fatalf("audit entry %d: expected %s, got %s", i, action, trail[i].Action)
		}
	}
	if trail[0].OldSnapshot != nil || trail[4].OldSnapshot.Status != model.OrderStatusCompleted {
		t.Fatalf("unexpected audit snapshots: %+v", trail)
	}
	if kinds := h.notifier.kinds(); len(kinds) < 5 || kinds[0] != model.EventOrderCreated {
		t.Fatalf("unexpected notifications: %v", kinds)
	}
}

func TestClaimRaceHasSingleWinner(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t)

	const workers = 16
	actors := make([]model.Actor, workers)
	for i := range actors {
		actors[i] = model.Actor{ID: fmt.Sprintf("racer-%d", i), Role: model.RoleMaster, IsVerified: true, IsActive: true}
		h.openLedger(t, actors[i].ID, 1000)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		unavail  int
		failures []error
	)
	start := make(chan struct{})
	for _, actor := range actors {
		wg.Add(1)
		go func(actor model.Actor) {
			defer wg.Done()
			<-start
			_, err := h.workflow.ClaimOrder(context.Background(), actor, o.ID, ClaimOptions{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, actor.ID)
			case domainErrors.HasReason(err, domainErrors.ReasonOrderNotAvailable):
				unavail++
			default:
				failures = append(failures, err)
			}
		}(actor)
	}
	close(start)
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(winners) != 1 || unavail != workers-1 {
		t.Fatalf("expected one winner and %d losers, got %v and %d", workers-1, winners, unavail)
	}
	stored := h.order(t, o.ID)
	if stored.Status != model.OrderStatusClaimed || !stored.HeldBy(winners[0]) {
		t.Fatalf("stored order does not match winner %s: %+v", winners[0], stored)
	}
}

func TestForceAssignRacesClaim(t *testing.T) {
	h := newHarness(t)
	h.openLedger(t, master1.ID, 1000)
	h.openLedger(t, master2.ID, 1000)
	o := h.createOrder(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, errs[0] = h.workflow.ClaimOrder(context.Background(), master1, o.ID, ClaimOptions{})
	}()
	go func() {
		defer wg.Done()
		<-start
		_, errs[1] = h.workflow.ForceAssignMaster(context.Background(), dispatcher1, o.ID, master2.ID)
	}()
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		expectReason(t, err, domainErrors.ReasonOrderNotAvailable)
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got errors %v", errs)
	}
	if stored := h.order(t, o.ID); stored.MasterID == nil {
		t.Fatal("order must be held after the race")
	}
}

func TestClaimRejectedForBlockedBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	threshold := 50.0
	initial := 100.0
	if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master1.ID, BalanceThreshold: &threshold, InitialBalance: &initial}); err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if _, err := h.ledger.AdjustBalance(ctx, admin, master1.ID, Adjustment{Amount: model.Money(60), Deduction: true}); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	o := h.createOrder(t)

	_, err := h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{})
	expectReason(t, err, domainErrors.ReasonBalanceBlocked)
	stored := h.order(t, o.ID)
	if stored.Version != o.Version || stored.Status != model.OrderStatusPlaced || stored.MasterID != nil {
		t.Fatalf("blocked claim must not touch the order: %+v", stored)
	}

	if _, err := h.ledger.AdjustBalance(ctx, admin, master1.ID, Adjustment{Amount: model.Money(100)}); err != nil {
		t.Fatalf("top up: %v", err)
	}
	_, err = h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{})
	expectReason(t, err, domainErrors.ReasonBalanceBlocked)

	if _, err := h.ledger.ClearBlock(ctx, admin, master1.ID); err != nil {
		t.Fatalf("clear block: %v", err)
	}
	if _, err := h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{}); err != nil {
		t.Fatalf("claim after unblock: %v", err)
	}
}

func TestReopenCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)
	h.openLedger(t, master2.ID, 1000)

	o := h.claimed(t, master1)
	if _, err := h.workflow.StartJob(ctx, master1, o.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := h.workflow.RefuseJob(ctx, master1, o.ID, " ")
	expectReason(t, err, domainErrors.ReasonRefusalReasonRequired)

	refused, err := h.workflow.RefuseJob(ctx, master1, o.ID, "no spare parts")
	if err != nil {
		t.Fatalf("refuse: %v", err)
	}
	if refused.Status != model.OrderStatusCanceledByMaster || refused.MasterID != nil {
		t.Fatalf("unexpected refused order: %+v", refused)
	}
	if l := h.ledgerOf(t, master1.ID); l.RefusalCount != 1 || l.ActiveJobs != 0 {
		t.Fatalf("unexpected ledger after refusal: %+v", l)
	}

	_, err = h.workflow.ReopenOrder(ctx, dispatcher2, o.ID)
	expectReason(t, err, domainErrors.ReasonNotOrderOwner)

	reopened, err := h.workflow.ReopenOrder(ctx, dispatcher1, o.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != model.OrderStatusReopened || reopened.MasterID != nil || reopened.ClaimedAt != nil || reopened.StartedAt != nil {
		t.Fatalf("unexpected reopened order: %+v", reopened)
	}

	again, err := h.workflow.ClaimOrder(ctx, master2, o.ID, ClaimOptions{})
	if err != nil {
		t.Fatalf("claim after reopen: %v", err)
	}
	if !again.HeldBy(master2.ID) {
		t.Fatalf("expected master-2 to hold the order: %+v", again)
	}
}

func TestEligibilityReasons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.createOrder(t)

	unverified := model.Actor{ID: "master-unverified", Role: model.RoleMaster, IsVerified: true, IsActive: true}
	result, err := h.workflow.CheckEligibility(ctx, unverified, o.ID)
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if result.Eligible {
		t.Fatal("unverified worker without ledger must not be eligible")
	}
	expectReasons(t, result.Reasons, domainErrors.ReasonNotVerified, domainErrors.ReasonNoLedger)

	_, err = h.workflow.ClaimOrder(ctx, unverified, o.ID, ClaimOptions{})
	expectReason(t, err, domainErrors.ReasonNotVerified)

	_, err = h.workflow.CheckEligibility(ctx, dispatcher1, o.ID)
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)

	h.openLedger(t, master1.ID, 1000)
	h.claimed(t, master1)
	result, err = h.workflow.CheckEligibility(ctx, master1, o.ID)
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if !result.Eligible || len(result.Reasons) != 0 {
		t.Fatalf("expected eligible worker, got %+v", result)
	}
}

func TestClaimRejectedAtOrBelowThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	threshold := 50.0
	initial := 40.0
	if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master1.ID, BalanceThreshold: &threshold, InitialBalance: &initial}); err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master2.ID}); err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	o := h.createOrder(t)

	for _, worker := range []model.Actor{master1, master2} {
		result, err := h.workflow.CheckEligibility(ctx, worker, o.ID)
		if err != nil {
			t.Fatalf("eligibility: %v", err)
		}
		expectReasons(t, result.Reasons, domainErrors.ReasonBalanceBlocked)

		_, err = h.workflow.ClaimOrder(ctx, worker, o.ID, ClaimOptions{})
		expectReason(t, err, domainErrors.ReasonBalanceBlocked)
	}
	_, err := h.workflow.ForceAssignMaster(ctx, dispatcher1, o.ID, master2.ID)
	expectReason(t, err, domainErrors.ReasonBalanceBlocked)

	stored := h.order(t, o.ID)
	if stored.Version != o.Version || stored.Status != model.OrderStatusPlaced || stored.MasterID != nil {
		t.Fatalf("blocked claims must not touch the order: %+v", stored)
	}

	if _, err := h.ledger.AdjustBalance(ctx, admin, master1.ID, Adjustment{Amount: model.Money(100)}); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if _, err := h.ledger.ClearBlock(ctx, admin, master1.ID); err != nil {
		t.Fatalf("clear block: %v", err)
	}
	if _, err := h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{}); err != nil {
		t.Fatalf("claim after unblock: %v", err)
	}
}

// gatedLoad holds every pre-check load read until all callers arrived, so that
// concurrent claims of one worker all pass the advisory check.
type gatedLoad struct {
	repository.OrderRepository
	callers int32
	arrived atomic.Int32
	release chan struct{}
}

func (g *gatedLoad) WorkerLoad(ctx context.Context, workerID string, now time.Time) (model.WorkerLoad, error) {
	if g.arrived.Add(1) == g.callers {
		close(g.release)
	}
	select {
	case <-g.release:
	case <-time.After(time.Second):
	}
	return g.OrderRepository.WorkerLoad(ctx, workerID, now)
}

func TestConcurrentClaimsRespectActiveJobLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deposit := 1000.0
	if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master1.ID, MaxActiveJobs: 1, InitialBalance: &deposit}); err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	const claims = 4
	orders := make([]*model.Order, claims)
	for i := range orders {
		orders[i] = h.createOrder(t)
	}
	h.claims.orders = &gatedLoad{OrderRepository: h.store.Orders(), callers: claims, release: make(chan struct{})}

	var (
		wg       sync.WaitGroup
		won      atomic.Int32
		limited  atomic.Int32
		mu       sync.Mutex
		failures []error
	)
	for _, o := range orders {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.workflow.ClaimOrder(ctx, master1, id, ClaimOptions{})
			switch {
			case err == nil:
				won.Add(1)
			case domainErrors.HasReason(err, domainErrors.ReasonMaxJobsReached):
				limited.Add(1)
			default:
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}(o.ID)
	}
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if won.Load() != 1 || limited.Load() != claims-1 {
		t.Fatalf("expected one claim within the limit, got %d won and %d limited", won.Load(), limited.Load())
	}
	if l := h.ledgerOf(t, master1.ID); l.ActiveJobs != 1 {
		t.Fatalf("ledger must count one active job, got %d", l.ActiveJobs)
	}
	held := 0
	for _, o := range orders {
		if stored := h.order(t, o.ID); stored.MasterID != nil {
			held++
		} else if stored.Status != model.OrderStatusPlaced || stored.Version != o.Version {
			t.Fatalf("rejected claim must roll back: %+v", stored)
		}
	}
	if held != 1 {
		t.Fatalf("expected one held order, got %d", held)
	}
}

func TestEligibilityLimits(t *testing.T) {
	ctx := context.Background()

	t.Run("max active jobs", func(t *testing.T) {
		h := newHarness(t)
		deposit := 1000.0
		if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master1.ID, MaxActiveJobs: 1, InitialBalance: &deposit}); err != nil {
			t.Fatalf("open ledger: %v", err)
		}
		h.claimed(t, master1)
		o := h.createOrder(t)
		_, err := h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{})
		expectReason(t, err, domainErrors.ReasonMaxJobsReached)
	})

	t.Run("pending confirmations", func(t *testing.T) {
		h := newHarness(t)
		h.claims.settings.PendingConfirmationLimit = 1
		h.openLedger(t, master1.ID, 1000)
		h.completed(t, master1, 800)
		o := h.createOrder(t)
		_, err := h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{})
		expectReason(t, err, domainErrors.ReasonPendingConfirmations)
	})

	t.Run("planned job soon is a soft guard", func(t *testing.T) {
		h := newHarness(t)
		h.openLedger(t, master1.ID, 1000)
		soon := testStart.Add(time.Hour)
		planned := h.createOrder(t, func(in *NewOrder) {
			in.Urgency = model.UrgencyPlanned
			in.PreferredAt = &soon
		})
		if _, err := h.workflow.ClaimOrder(ctx, master1, planned.ID, ClaimOptions{}); err != nil {
			t.Fatalf("claim planned: %v", err)
		}

		o := h.createOrder(t)
		result, err := h.workflow.CheckEligibility(ctx, master1, o.ID)
		if err != nil {
			t.Fatalf("eligibility: %v", err)
		}
		if !result.Eligible {
			t.Fatalf("soft guard must not make the worker ineligible: %+v", result)
		}
		expectReasons(t, result.Warnings, domainErrors.ReasonPlannedJobSoon)

		_, err = h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{})
		expectReason(t, err, domainErrors.ReasonPlannedJobSoon)
		if _, err := h.workflow.ClaimOrder(ctx, master1, o.ID, ClaimOptions{AcknowledgeWarnings: true}); err != nil {
			t.Fatalf("acknowledged claim: %v", err)
		}
	})
}

func TestCompleteJobPricing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)

	o := h.claimed(t, master1)
	if _, err := h.workflow.StartJob(ctx, master1, o.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, actor := range []model.Actor{master1, master2, dispatcher1, admin} {
		_, err := h.workflow.CompleteJob(ctx, actor, o.ID, completion(499.99))
		expectReason(t, err, domainErrors.ReasonFinalPriceBelowCallout)
		if f, _ := domainErrors.AsFailure(err); f.Kind != domainErrors.KindValidation {
			t.Fatalf("expected validation failure, got %v", err)
		}
	}
	_, err := h.workflow.CompleteJob(ctx, master1, o.ID, lifecycle.Completion{})
	expectReason(t, err, domainErrors.ReasonFinalPriceRequired)

	fixed := h.createOrder(t, func(in *NewOrder) {
		in.PricingType = model.PricingFixed
		in.InitialPrice = model.Money(1000)
	})
	if _, err := h.workflow.ClaimOrder(ctx, master1, fixed.ID, ClaimOptions{}); err != nil {
		t.Fatalf("claim fixed: %v", err)
	}
	if _, err := h.workflow.StartJob(ctx, master1, fixed.ID); err != nil {
		t.Fatalf("start fixed: %v", err)
	}
	_, err = h.workflow.CompleteJob(ctx, master1, fixed.ID, completion(1600))
	expectReason(t, err, domainErrors.ReasonPriceChangeReason)

	done, err := h.workflow.CompleteJob(ctx, master1, fixed.ID, lifecycle.Completion{
		FinalPrice:        model.Money(1600),
		PriceChangeReason: "extra pipe replaced",
	})
	if err != nil {
		t.Fatalf("complete fixed: %v", err)
	}
	if !done.RequiresReview || done.PriceChangeReason != "extra pipe replaced" {
		t.Fatalf("large deviation must require review: %+v", done)
	}
}

func TestConfirmPaymentRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)
	o := h.completed(t, master1, 1000)

	_, err := h.workflow.ConfirmPayment(ctx, dispatcher1, o.ID, lifecycle.Payment{})
	expectReason(t, err, domainErrors.ReasonPaymentMethodRequired)
	_, err = h.workflow.ConfirmPayment(ctx, dispatcher1, o.ID, lifecycle.Payment{Method: model.PaymentTransfer})
	expectReason(t, err, domainErrors.ReasonPaymentProofRequired)
	_, err = h.workflow.ConfirmPayment(ctx, dispatcher2, o.ID, lifecycle.Payment{Method: model.PaymentCash})
	expectReason(t, err, domainErrors.ReasonNotOrderOwner)

	if _, err := h.workflow.SetDispute(ctx, dispatcher1, o.ID, true, "client complains"); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	_, err = h.workflow.ConfirmPayment(ctx, dispatcher1, o.ID, lifecycle.Payment{Method: model.PaymentCash})
	expectReason(t, err, domainErrors.ReasonDisputedRequiresAdmin)

	confirmed, err := h.workflow.ConfirmPayment(ctx, admin, o.ID, lifecycle.Payment{Method: model.PaymentTransfer, ProofURL: "https://files.example/receipt.png"})
	if err != nil {
		t.Fatalf("admin confirm: %v", err)
	}
	if confirmed.PaymentProofURL == "" || !confirmed.IsDisputed {
		t.Fatalf("unexpected confirmed order: %+v", confirmed)
	}
	if l := h.ledgerOf(t, master1.ID); l.TotalCommissionOwed != 100 || l.TotalEarnings != 1000 {
		t.Fatalf("disputed confirmation must post commission like any other: %+v", l)
	}

	_, err = h.workflow.ConfirmPayment(ctx, admin, o.ID, lifecycle.Payment{Method: model.PaymentCash})
	expectReason(t, err, domainErrors.ReasonInvalidStatus)
}

func TestConfirmWithoutLedgerRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)
	o := h.completed(t, master1, 900)

	broken := newHarnessWith(t, &missingLedgers{Factory: h.store}, testSettings())
	_, err := broken.workflow.ConfirmPayment(ctx, dispatcher1, o.ID, lifecycle.Payment{Method: model.PaymentCash})
	expectReason(t, err, domainErrors.ReasonNoLedger)
	if stored := h.order(t, o.ID); stored.Status != model.OrderStatusCompleted {
		t.Fatalf("confirmation must roll back without a ledger: %+v", stored)
	}
}

func TestTransferAndUnassign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)
	o := h.claimed(t, master1)

	_, err := h.workflow.TransferToDispatcher(ctx, dispatcher1, o.ID, dispatcher1.ID)
	expectReason(t, err, domainErrors.ReasonSameDispatcher)
	_, err = h.workflow.TransferToDispatcher(ctx, dispatcher1, o.ID, "ghost")
	expectReason(t, err, domainErrors.ReasonTargetNotDispatcher)
	_, err = h.workflow.TransferToDispatcher(ctx, dispatcher1, o.ID, master2.ID)
	expectReason(t, err, domainErrors.ReasonTargetNotDispatcher)

	moved, err := h.workflow.TransferToDispatcher(ctx, dispatcher1, o.ID, dispatcher2.ID)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved.AssignedDispatcherID != dispatcher2.ID || moved.DispatcherID != dispatcher1.ID || moved.Status != model.OrderStatusClaimed {
		t.Fatalf("transfer must only change the handler: %+v", moved)
	}

	released, err := h.workflow.UnassignMaster(ctx, dispatcher2, o.ID, "worker unreachable")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if released.Status != model.OrderStatusReopened || released.MasterID != nil {
		t.Fatalf("unexpected unassigned order: %+v", released)
	}
	if l := h.ledgerOf(t, master1.ID); l.ActiveJobs != 0 {
		t.Fatalf("unassign must recount active jobs: %+v", l)
	}

	_, err = h.workflow.ForceAssignMaster(ctx, dispatcher2, o.ID, "master-unverified")
	expectReason(t, err, domainErrors.ReasonNoLedger)
	h.openLedger(t, "master-unverified", 100)
	_, err = h.workflow.ForceAssignMaster(ctx, dispatcher2, o.ID, "master-unverified")
	expectReason(t, err, domainErrors.ReasonNotVerified)
	_, err = h.workflow.ForceAssignMaster(ctx, dispatcher2, o.ID, dispatcher1.ID)
	expectReason(t, err, domainErrors.ReasonTargetNotMaster)

	assigned, err := h.workflow.ForceAssignMaster(ctx, dispatcher2, o.ID, master1.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !assigned.HeldBy(master1.ID) || assigned.Status != model.OrderStatusClaimed {
		t.Fatalf("unexpected assigned order: %+v", assigned)
	}
}

func TestCancelByClient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)
	o := h.claimed(t, master1)

	_, err := h.workflow.CancelByClient(ctx, master1, o.ID, "changed mind")
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)

	canceled, err := h.workflow.CancelByClient(ctx, dispatcher1, o.ID, "changed mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != model.OrderStatusCanceledByClient || canceled.MasterID != nil || canceled.CancelReason != "changed mind" {
		t.Fatalf("unexpected canceled order: %+v", canceled)
	}
	if !lifecycle.CheckMasterInvariant(canceled) {
		t.Fatal("canceled order must not keep a master")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.workflow.CreateOrder(ctx, master1, NewOrder{})
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)

	_, err = h.workflow.CreateOrder(ctx, dispatcher1, NewOrder{
		Urgency:      "someday",
		PricingType:  "barter",
		CalloutFee:   model.Money(500),
		InitialPrice: model.Money(100),
	})
	f, ok := domainErrors.AsFailure(err)
	if !ok || f.Kind != domainErrors.KindValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	expectReasons(t, f.Reasons,
		domainErrors.ReasonServiceTypeRequired,
		domainErrors.ReasonClientRequired,
		domainErrors.ReasonAddressRequired,
		domainErrors.ReasonInvalidUrgency,
		domainErrors.ReasonInvalidPricingType,
		domainErrors.ReasonInitialPriceBelowCallout,
	)

	clientID := " client-1 "
	o := h.createOrder(t, func(in *NewOrder) {
		in.ClientID = &clientID
		in.ClientName = ""
		in.FullAddress = ""
		in.Area = "center"
		in.PricingType = ""
	})
	if o.ClientID == nil || *o.ClientID != client.ID || o.PricingType != model.PricingUnknown || o.CalloutFee != 500 {
		t.Fatalf("unexpected order: %+v", o)
	}
	if _, err := h.workflow.GetOrder(ctx, client, o.ID); err != nil {
		t.Fatalf("client must see own order: %v", err)
	}
}

func TestGetOrderVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)
	o := h.claimed(t, master1)

	if _, err := h.workflow.GetOrder(ctx, master1, o.ID); err != nil {
		t.Fatalf("holder must see the order: %v", err)
	}
	if _, err := h.workflow.GetOrder(ctx, master2, o.ID); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("other worker must not see a held order, got %v", err)
	}
	if _, err := h.workflow.GetOrder(ctx, client, o.ID); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("foreign client must not see the order, got %v", err)
	}
	if _, err := h.workflow.AuditTrail(ctx, master1, o.ID); !domainErrors.HasReason(err, domainErrors.ReasonRoleNotAllowed) {
		t.Fatalf("workers cannot read the audit trail, got %v", err)
	}
	if _, err := h.workflow.GetOrder(ctx, admin, "missing"); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExpireStaleOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 1000)

	stale := h.createOrder(t)
	held := h.claimed(t, master1)
	h.clock.Advance(12 * time.Hour)
	fresh := h.createOrder(t)
	h.clock.Advance(13 * time.Hour)

	expired, err := h.workflow.ExpireStaleOrders(ctx, 10)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID || expired[0].Status != model.OrderStatusExpired {
		t.Fatalf("expected only the stale order to expire, got %+v", expired)
	}
	if got := h.order(t, held.ID); got.Status != model.OrderStatusClaimed {
		t.Fatalf("held order must not expire: %+v", got)
	}
	if got := h.order(t, fresh.ID); got.Status != model.OrderStatusPlaced {
		t.Fatalf("fresh order must not expire: %+v", got)
	}

	trail, err := h.workflow.AuditTrail(ctx, admin, stale.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	last := trail[len(trail)-1]
	if last.Action != "expire" || last.PerformedBy != model.SystemActor.ID {
		t.Fatalf("unexpected expiry audit entry: %+v", last)
	}

	again, err := h.workflow.ExpireStaleOrders(ctx, 10)
	if err != nil || len(again) != 0 {
		t.Fatalf("second sweep must be empty, got %v %v", again, err)
	}

	if _, err := h.workflow.ReopenOrder(ctx, dispatcher1, stale.ID); err != nil {
		t.Fatalf("expired orders can be reopened: %v", err)
	}
}

func TestRunExpiryIsAdminOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale := h.createOrder(t)
	h.clock.Advance(25 * time.Hour)

	if _, err := h.workflow.RunExpiry(ctx, dispatcher1, 10); !domainErrors.HasReason(err, domainErrors.ReasonRoleNotAllowed) {
		t.Fatalf("dispatchers cannot run expiry, got %v", err)
	}
	expired, err := h.workflow.RunExpiry(ctx, admin, 10)
	if err != nil {
		t.Fatalf("run expiry: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expected the stale order to expire, got %+v", expired)
	}
}

func TestExpireSkipsOrdersClaimedMeanwhile(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t)
	h.clock.Advance(25 * time.Hour)

	racing := &racingOrders{OrderRepository: h.store.Orders(), workerID: master1.ID, now: h.clock.Now}
	wrapped := newHarnessWith(t, &overrideOrders{Factory: h.store, orders: racing}, testSettings())
	wrapped.workflow.now = h.clock.Now

	expired, err := wrapped.workflow.ExpireStaleOrders(context.Background(), 10)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("claimed candidate must be skipped, got %+v", expired)
	}
	if got := h.order(t, o.ID); got.Status != model.OrderStatusClaimed || !got.HeldBy(master1.ID) {
		t.Fatalf("concurrent claim must win: %+v", got)
	}
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	store := seededStore()
	h := newHarnessWith(t, &failingAudit{Factory: store}, testSettings())

	o, err := h.workflow.CreateOrder(context.Background(), dispatcher1, NewOrder{
		ClientName:  "Anna",
		ServiceType: "plumbing",
		Urgency:     model.UrgencyEmergency,
		FullAddress: "Main st 1",
	})
	if err != nil {
		t.Fatalf("create must succeed when audit fails: %v", err)
	}
	if _, err := store.Orders().Get(context.Background(), o.ID); err != nil {
		t.Fatalf("order must be stored: %v", err)
	}
}

func TestNotificationFailureDoesNotFailMutation(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("sink down")
	if _, err := h.workflow.CreateOrder(context.Background(), dispatcher1, NewOrder{
		ClientName:  "Anna",
		ServiceType: "plumbing",
		Urgency:     model.UrgencyUrgent,
		Area:        "center",
	}); err != nil {
		t.Fatalf("create must succeed when notification fails: %v", err)
	}
}

func TestWriteTimeoutIsOutcomeUnknown(t *testing.T) {
	h := newHarness(t)
	h.openLedger(t, master1.ID, 1000)
	o := h.claimed(t, master1)

	settings := testSettings()
	settings.RequestTimeout = 20 * time.Millisecond
	slow := newHarnessWith(t, &overrideOrders{Factory: h.store, orders: &slowOrders{OrderRepository: h.store.Orders()}}, settings)

	_, err := slow.workflow.StartJob(context.Background(), master1, o.ID)
	if !errors.Is(err, domainErrors.ErrOutcomeUnknown) {
		t.Fatalf("expected unknown outcome, got %v", err)
	}
}

type failingAudit struct {
	repository.Factory
}

func (f *failingAudit) Audit() repository.AuditRepository { return brokenAudit{} }

type brokenAudit struct{}

func (brokenAudit) Append(context.Context, *model.AuditEntry) error {
	return errors.New("audit table unavailable")
}

func (brokenAudit) ListByOrder(context.Context, string) ([]model.AuditEntry, error) {
	return nil, errors.New("audit table unavailable")
}

type missingLedgers struct {
	repository.Factory
}

func (m *missingLedgers) Ledgers() repository.LedgerRepository {
	return emptyLedgers{LedgerRepository: m.Factory.Ledgers()}
}

type emptyLedgers struct {
	repository.LedgerRepository
}

func (emptyLedgers) GetForUpdate(context.Context, string) (*model.WorkerLedger, error) {
	return nil, domainErrors.ErrNotFound
}

type overrideOrders struct {
	repository.Factory
	orders repository.OrderRepository
}

func (o *overrideOrders) Orders() repository.OrderRepository { return o.orders }

type slowOrders struct {
	repository.OrderRepository
}

func (s *slowOrders) CompareAndSwap(ctx context.Context, _, _ *model.Order) (*model.Order, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// racingOrders claims every expiry candidate right after listing it.
type racingOrders struct {
	repository.OrderRepository
	workerID string
	now      func() time.Time
}

func (r *racingOrders) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	candidates, err := r.OrderRepository.ListExpirable(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		next := c.Clone()
		claimedAt := r.now()
		next.MasterID = &r.workerID
		next.ClaimedAt = &claimedAt
		if _, err := r.OrderRepository.ClaimUnheld(ctx, next); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}
