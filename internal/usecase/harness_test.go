package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
	"github.com/polkiloo/dispatchdesk/internal/queue"
	"github.com/polkiloo/dispatchdesk/internal/storage/memory"
)

var (
	dispatcher1 = model.Actor{ID: "dispatcher-1", Role: model.RoleDispatcher, IsVerified: true, IsActive: true}
	dispatcher2 = model.Actor{ID: "dispatcher-2", Role: model.RoleDispatcher, IsVerified: true, IsActive: true}
	admin       = model.Actor{ID: "admin-1", Role: model.RoleAdmin, IsVerified: true, IsActive: true}
	master1     = model.Actor{ID: "master-1", Role: model.RoleMaster, IsVerified: true, IsActive: true}
	master2     = model.Actor{ID: "master-2", Role: model.RoleMaster, IsVerified: true, IsActive: true}
	client      = model.Actor{ID: "client-1", Role: model.RoleClient, IsVerified: true, IsActive: true}
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, e model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) kinds() []model.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]model.EventKind, 0, len(n.events))
	for _, e := range n.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type harness struct {
	store    *memory.Store
	clock    *fakeClock
	notifier *recordingNotifier
	claims   *ClaimResolver
	ledger   *LedgerUseCase
	payouts  *PayoutUseCase
	workflow *Workflow
	queue    *QueueUseCase
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() Settings {
	return Settings{
		CommissionRate:           0.1,
		OrderExpiry:              24 * time.Hour,
		Windows:                  queue.DefaultWindows,
		PendingConfirmationLimit: 3,
		PlannedSoonWindow:        2 * time.Hour,
		PriceDeviationThreshold:  0.5,
		DefaultMaxActiveJobs:     3,
		RequestTimeout:           time.Second,
		ReadRetries:              2,
		RetryBackoff:             time.Millisecond,
		ReferenceCacheTTL:        time.Minute,
		RosterCacheTTL:           time.Minute,
	}
}

func seededStore() *memory.Store {
	store := memory.New()
	store.Load(memory.Seed{
		Profiles: []model.Profile{
			{ID: dispatcher1.ID, Role: model.RoleDispatcher, DisplayName: "Dina", IsVerified: true, IsActive: true},
			{ID: dispatcher2.ID, Role: model.RoleDispatcher, DisplayName: "Boris", IsVerified: true, IsActive: true},
			{ID: admin.ID, Role: model.RoleAdmin, DisplayName: "Root", IsVerified: true, IsActive: true},
			{ID: master1.ID, Role: model.RoleMaster, DisplayName: "Max", IsVerified: true, IsActive: true},
			{ID: master2.ID, Role: model.RoleMaster, DisplayName: "Mia", IsVerified: true, IsActive: true},
			{ID: "master-unverified", Role: model.RoleMaster, DisplayName: "New", IsVerified: false, IsActive: true},
		},
		ServiceTypes: []model.ServiceType{{Code: "plumbing", Title: "Plumbing"}},
		Districts:    []model.District{{Code: "center", Title: "Center"}},
	})
	return store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, seededStore(), testSettings())
}

func newHarnessWith(t *testing.T, store repository.Factory, settings Settings) *harness {
	t.Helper()
	clock := &fakeClock{now: testStart}
	notifier := &recordingNotifier{}
	logger := discardLogger()

	claims := NewClaimResolver(store.Orders(), store.Ledgers(), store.Directory(), settings)
	ledger := NewLedgerUseCase(store, settings, notifier, logger)
	ledger.now = clock.Now
	payouts := NewPayoutUseCase(store, ledger, settings, notifier, logger)
	payouts.now = clock.Now
	workflow := NewWorkflow(store, claims, ledger, settings, notifier, logger)
	workflow.now = clock.Now
	queueUC := NewQueueUseCase(store.Orders(), settings, logger)
	queueUC.now = clock.Now

	h := &harness{
		clock:    clock,
		notifier: notifier,
		claims:   claims,
		ledger:   ledger,
		payouts:  payouts,
		workflow: workflow,
		queue:    queueUC,
	}
	if mem, ok := store.(*memory.Store); ok {
		h.store = mem
	}
	return h
}

func (h *harness) openLedger(t *testing.T, workerID string, balance float64) *model.WorkerLedger {
	t.Helper()
	l, err := h.ledger.OpenLedger(context.Background(), admin, LedgerOpening{WorkerID: workerID, InitialBalance: &balance})
	if err != nil {
		t.Fatalf("open ledger %s: %v", workerID, err)
	}
	return l
}

func (h *harness) createOrder(t *testing.T, mutate ...func(*NewOrder)) *model.Order {
	t.Helper()
	in := NewOrder{
		ClientName:         "Anna",
		ClientPhone:        "+7 (900) 123-45-67",
		ServiceType:        "plumbing",
		Urgency:            model.UrgencyUrgent,
		ProblemDescription: "leaking tap",
		FullAddress:        "Main st 1",
		PricingType:        model.PricingUnknown,
		CalloutFee:         model.Money(500),
	}
	for _, m := range mutate {
		m(&in)
	}
	o, err := h.workflow.CreateOrder(context.Background(), dispatcher1, in)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func (h *harness) claimed(t *testing.T, worker model.Actor) *model.Order {
	t.Helper()
	o := h.createOrder(t)
	claimed, err := h.workflow.ClaimOrder(context.Background(), worker, o.ID, ClaimOptions{})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return claimed
}

func (h *harness) completed(t *testing.T, worker model.Actor, price float64) *model.Order {
	t.Helper()
	ctx := context.Background()
	o := h.claimed(t, worker)
	if _, err := h.workflow.StartJob(ctx, worker, o.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := h.workflow.CompleteJob(ctx, worker, o.ID, completion(price))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return done
}

func (h *harness) order(t *testing.T, id string) *model.Order {
	t.Helper()
	o, err := h.workflow.GetOrder(context.Background(), admin, id)
	if err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	return o
}

func (h *harness) ledgerOf(t *testing.T, workerID string) *model.WorkerLedger {
	t.Helper()
	l, err := h.ledger.Summary(context.Background(), admin, workerID)
	if err != nil {
		t.Fatalf("ledger %s: %v", workerID, err)
	}
	return l
}

func expectReason(t *testing.T, err error, code domainErrors.ReasonCode) {
	t.Helper()
	if !domainErrors.HasReason(err, code) {
		t.Fatalf("expected reason %s, got %v", code, err)
	}
}

func expectReasons(t *testing.T, got []domainErrors.ReasonCode, want ...domainErrors.ReasonCode) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected reasons %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected reasons %v, got %v", want, got)
		}
	}
}
