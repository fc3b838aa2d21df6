package test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/polkiloo/dispatchdesk/internal/config"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/storage/memory"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// Well-known actors present in the seeded store.
var (
	Dispatcher = model.Actor{ID: "disp-1", Role: model.RoleDispatcher, IsVerified: true, IsActive: true}
	Admin      = model.Actor{ID: "admin-1", Role: model.RoleAdmin, IsVerified: true, IsActive: true}
	Master     = model.Actor{ID: "master-1", Role: model.RoleMaster, IsVerified: true, IsActive: true}
)

// SeededStore returns an in-memory store with a small directory.
func SeededStore() *memory.Store {
	store := memory.New()
	store.Load(memory.Seed{
		Profiles: []model.Profile{
			{ID: Dispatcher.ID, Role: model.RoleDispatcher, DisplayName: "Dina", IsVerified: true, IsActive: true},
			{ID: Admin.ID, Role: model.RoleAdmin, DisplayName: "Root", IsVerified: true, IsActive: true},
			{ID: Master.ID, Role: model.RoleMaster, DisplayName: "Max", IsVerified: true, IsActive: true},
			{ID: "master-blocked", Role: model.RoleMaster, DisplayName: "Off", IsVerified: true, IsActive: false},
		},
		ServiceTypes: []model.ServiceType{{Code: "plumbing", Title: "Plumbing"}},
		Districts:    []model.District{{Code: "center", Title: "Center"}},
	})
	return store
}

// TestConfig returns a configuration suited for in-memory runs.
func TestConfig() *config.Config {
	return &config.Config{
		RunAddress:               "127.0.0.1:0",
		Storage:                  config.StorageMemory,
		JWTSecret:                "secret",
		CommissionRate:           0.3,
		OrderExpiry:              24 * time.Hour,
		SweepInterval:            time.Minute,
		SweepBatchSize:           10,
		SweepWorkers:             1,
		StalePlacedAfter:         15 * time.Minute,
		StaleClaimedAfter:        30 * time.Minute,
		PendingConfirmationLimit: 3,
		DefaultMaxActiveJobs:     3,
		RequestTimeout:           time.Second,
		ReadRetries:              1,
		RetryBackoff:             time.Millisecond,
		ReferenceCacheTTL:        time.Minute,
		RosterCacheTTL:           time.Minute,
		ShutdownTimeout:          time.Second,
	}
}

// DiscardLogger drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NotifierStub records published events.
type NotifierStub struct {
	mu     sync.Mutex
	Events []model.Event
	Err    error
}

// Publish appends the event unless an error is configured.
func (n *NotifierStub) Publish(_ context.Context, e model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, e)
	return n.Err
}

// Kinds returns the kinds of recorded events in order.
func (n *NotifierStub) Kinds() []model.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.EventKind, 0, len(n.Events))
	for _, e := range n.Events {
		out = append(out, e.Kind)
	}
	return out
}

// Stack bundles real use cases over a seeded in-memory store.
type Stack struct {
	Store    *memory.Store
	Notifier *NotifierStub
	UseCases UseCaseSet
}

// UseCaseSet mirrors the facade's dependency list.
type UseCaseSet struct {
	Claims    *usecase.ClaimResolver
	Workflow  *usecase.Workflow
	Queue     *usecase.QueueUseCase
	Ledger    *usecase.LedgerUseCase
	Payouts   *usecase.PayoutUseCase
	Reference *usecase.ReferenceCache
}

// NewStack builds the use cases from cfg over a freshly seeded store.
func NewStack(cfg *config.Config) *Stack {
	store := SeededStore()
	notifier := &NotifierStub{}
	logger := DiscardLogger()
	settings := usecase.NewSettings(cfg)

	claims := usecase.NewClaimResolver(store.Orders(), store.Ledgers(), store.Directory(), settings)
	ledger := usecase.NewLedgerUseCase(store, settings, notifier, logger)
	return &Stack{
		Store:    store,
		Notifier: notifier,
		UseCases: UseCaseSet{
			Claims:    claims,
			Workflow:  usecase.NewWorkflow(store, claims, ledger, settings, notifier, logger),
			Queue:     usecase.NewQueueUseCase(store.Orders(), settings, logger),
			Ledger:    ledger,
			Payouts:   usecase.NewPayoutUseCase(store, ledger, settings, notifier, logger),
			Reference: usecase.NewReferenceCache(store.Directory(), settings, logger),
		},
	}
}

// HealthCheckerStub reports a configured health result.
type HealthCheckerStub struct {
	Err error
}

// HealthCheck returns the configured error.
func (h HealthCheckerStub) HealthCheck(context.Context) error { return h.Err }
