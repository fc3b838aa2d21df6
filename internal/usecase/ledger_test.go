package usecase

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

func postCommissionFor(t *testing.T, h *harness, orderID, workerID string, price float64) {
	t.Helper()
	o := &model.Order{ID: orderID, MasterID: &workerID, FinalPrice: &price, CalloutFee: 500, Status: model.OrderStatusConfirmed}
	err := h.store.WithinTransaction(context.Background(), func(ctx context.Context) error {
		return h.ledger.postCommission(ctx, o)
	})
	if err != nil {
		t.Fatalf("post commission: %v", err)
	}
}

func reconcile(t *testing.T, h *harness, workerID string) {
	t.Helper()
	l := h.ledgerOf(t, workerID)
	history, err := h.ledger.History(context.Background(), admin, workerID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var earned, paid float64
	for _, tx := range history {
		switch tx.Type {
		case model.TransactionCommissionEarned:
			earned += tx.Amount
		case model.TransactionPayment:
			paid += tx.Amount
		}
	}
	if model.RoundMoney(earned-paid) != l.OutstandingCommission() {
		t.Fatalf("ledger does not reconcile: log says %.2f, ledger says %.2f", earned-paid, l.OutstandingCommission())
	}
}

func TestOpenLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ledger.OpenLedger(ctx, dispatcher1, LedgerOpening{WorkerID: master1.ID})
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)
	_, err = h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: dispatcher1.ID})
	expectReason(t, err, domainErrors.ReasonTargetNotMaster)
	_, err = h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: " "})
	expectReason(t, err, domainErrors.ReasonTargetNotMaster)
	if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master1.ID}); err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	l := h.ledgerOf(t, master1.ID)
	if l.MaxActiveJobs != 3 || l.BalanceThreshold != 0 || l.PrepaidBalance != 0 {
		t.Fatalf("unexpected defaults: %+v", l)
	}
	if !l.Blocked() {
		t.Fatalf("an empty balance at the threshold must open blocked: %+v", l)
	}
	if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master1.ID}); !errors.Is(err, domainErrors.ErrAlreadyExists) {
		t.Fatalf("expected duplicate ledger error, got %v", err)
	}

	negative := -5.0
	_, err = h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master2.ID, InitialBalance: &negative})
	expectReason(t, err, domainErrors.ReasonInvalidAmount)

	opened := h.openLedger(t, master2.ID, 250)
	if opened.PrepaidBalance != 250 {
		t.Fatalf("unexpected opening balance: %+v", opened)
	}
	history, err := h.ledger.History(ctx, master2, master2.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Type != model.TransactionAdminAdjustment || history[0].BalanceAfter != 250 {
		t.Fatalf("opening balance must be logged: %+v", history)
	}
}

func TestLedgerAccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 100)

	if _, err := h.ledger.Summary(ctx, master1, master1.ID); err != nil {
		t.Fatalf("worker must read own ledger: %v", err)
	}
	_, err := h.ledger.Summary(ctx, master2, master1.ID)
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)
	_, err = h.ledger.History(ctx, client, master1.ID, 10)
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)
	if _, err := h.ledger.Summary(ctx, dispatcher1, master1.ID); err != nil {
		t.Fatalf("dispatcher must read ledgers: %v", err)
	}
	if _, err := h.ledger.Summary(ctx, admin, "nobody"); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordPaymentNeverCreatesCommission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openLedger(t, master1.ID, 100)
	postCommissionFor(t, h, "order-1", master1.ID, 700)
	postCommissionFor(t, h, "order-2", master1.ID, 1000)
	reconcile(t, h, master1.ID)

	before := h.ledgerOf(t, master1.ID)
	if before.TotalCommissionOwed != 170 || before.TotalEarnings != 1700 || before.CompletedJobsCount != 2 {
		t.Fatalf("unexpected ledger after commissions: %+v", before)
	}

	after, err := h.ledger.RecordPayment(ctx, dispatcher1, master1.ID, CommissionPayment{Amount: model.Money(50), Source: model.PaymentSourceCash})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if after.TotalCommissionOwed != before.TotalCommissionOwed {
		t.Fatalf("payment must not change owed commission: %+v", after)
	}
	if after.TotalCommissionPaid != before.TotalCommissionPaid+50 || after.TotalEarnings != before.TotalEarnings {
		t.Fatalf("unexpected ledger after payment: %+v", after)
	}
	if after.PrepaidBalance != before.PrepaidBalance {
		t.Fatalf("cash payment must not touch the balance: %+v", after)
	}
	reconcile(t, h, master1.ID)

	_, err = h.ledger.RecordPayment(ctx, admin, master1.ID, CommissionPayment{Amount: model.Money(120.01), Source: model.PaymentSourceTransfer})
	expectReason(t, err, domainErrors.ReasonExceedsOutstanding)
	_, err = h.ledger.RecordPayment(ctx, admin, master1.ID, CommissionPayment{Amount: model.Money(10), Source: "crypto"})
	expectReason(t, err, domainErrors.ReasonInvalidPaymentSource)
	_, err = h.ledger.RecordPayment(ctx, admin, master1.ID, CommissionPayment{Source: model.PaymentSourceCash})
	expectReason(t, err, domainErrors.ReasonInvalidAmount)
	_, err = h.ledger.RecordPayment(ctx, admin, master1.ID, CommissionPayment{Amount: model.Money(0), Source: model.PaymentSourceCash})
	expectReason(t, err, domainErrors.ReasonInvalidAmount)
	_, err = h.ledger.RecordPayment(ctx, master1, master1.ID, CommissionPayment{Amount: model.Money(10), Source: model.PaymentSourceCash})
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)
	_, err = h.ledger.RecordPayment(ctx, master2, master1.ID, CommissionPayment{Amount: model.Money(10), Source: model.PaymentSourceBalance})
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)

	fromBalance, err := h.ledger.RecordPayment(ctx, master1, master1.ID, CommissionPayment{Amount: model.Money(20), Source: model.PaymentSourceBalance})
	if err != nil {
		t.Fatalf("pay from balance: %v", err)
	}
	if fromBalance.PrepaidBalance != 80 || fromBalance.TotalCommissionPaid != 70 {
		t.Fatalf("unexpected ledger after balance payment: %+v", fromBalance)
	}
	_, err = h.ledger.RecordPayment(ctx, master1, master1.ID, CommissionPayment{Amount: model.Money(90), Source: model.PaymentSourceBalance})
	expectReason(t, err, domainErrors.ReasonInsufficientBalance)
	reconcile(t, h, master1.ID)
}

func TestBalancePaymentCanBlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	threshold := 30.0
	initial := 100.0
	if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master1.ID, BalanceThreshold: &threshold, InitialBalance: &initial}); err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	postCommissionFor(t, h, "order-1", master1.ID, 1000)

	l, err := h.ledger.RecordPayment(ctx, master1, master1.ID, CommissionPayment{Amount: model.Money(70), Source: model.PaymentSourceBalance})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if !l.Blocked() || l.PrepaidBalance != 30 {
		t.Fatalf("balance at threshold must block: %+v", l)
	}
	found := false
	for _, kind := range h.notifier.kinds() {
		if kind == model.EventLedgerBlocked {
			found = true
		}
	}
	if !found {
		t.Fatal("block must be announced")
	}
}

func TestAdjustBalanceAndClearBlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	threshold := 10.0
	initial := 50.0
	if _, err := h.ledger.OpenLedger(ctx, admin, LedgerOpening{WorkerID: master1.ID, BalanceThreshold: &threshold, InitialBalance: &initial}); err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	_, err := h.ledger.AdjustBalance(ctx, dispatcher1, master1.ID, Adjustment{Amount: model.Money(5)})
	expectReason(t, err, domainErrors.ReasonRoleNotAllowed)
	_, err = h.ledger.ClearBlock(ctx, admin, master1.ID)
	expectReason(t, err, domainErrors.ReasonNotBlocked)
	if _, err := h.ledger.AdjustBalance(ctx, admin, "nobody", Adjustment{Amount: model.Money(5)}); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	l, err := h.ledger.AdjustBalance(ctx, admin, master1.ID, Adjustment{Amount: model.Money(45), Deduction: true, Note: "damaged tool"})
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if !l.Blocked() || l.PrepaidBalance != 5 {
		t.Fatalf("expected block after deduction: %+v", l)
	}
	_, err = h.ledger.ClearBlock(ctx, admin, master1.ID)
	expectReason(t, err, domainErrors.ReasonBalanceStillLow)

	l, err = h.ledger.AdjustBalance(ctx, admin, master1.ID, Adjustment{Amount: model.Money(100)})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if !l.Blocked() {
		t.Fatal("a deposit alone must not clear the block")
	}
	l, err = h.ledger.ClearBlock(ctx, admin, master1.ID)
	if err != nil {
		t.Fatalf("clear block: %v", err)
	}
	if l.Blocked() || l.PrepaidBalance != 105 {
		t.Fatalf("unexpected ledger after unblock: %+v", l)
	}

	history, err := h.ledger.History(ctx, admin, master1.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected opening, deduction and top-up, got %+v", history)
	}
	deduction := history[1]
	if deduction.Type != model.TransactionManualDeduction || deduction.BalanceBefore != 50 || deduction.BalanceAfter != 5 || deduction.Note != "damaged tool" {
		t.Fatalf("unexpected deduction entry: %+v", deduction)
	}
}

func TestCommissionBase(t *testing.T) {
	price := 1000.0
	o := &model.Order{FinalPrice: &price, CalloutFee: 300}

	s := Settings{CommissionRate: 0.15}
	if got := s.Commission(o); got != 150 {
		t.Fatalf("expected 150, got %v", got)
	}
	s.CommissionExemptCallout = true
	if got := s.Commission(o); got != 105 {
		t.Fatalf("expected 105, got %v", got)
	}
	if got := s.Commission(&model.Order{}); got != 0 {
		t.Fatalf("order without final price has no commission, got %v", got)
	}
	low := 200.0
	if got := s.Commission(&model.Order{FinalPrice: &low, CalloutFee: 300}); got != 0 {
		t.Fatalf("commission base cannot go negative, got %v", got)
	}
}
