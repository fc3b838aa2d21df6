// Package memory is a process-local store with the same conditional-update semantics as
// the PostgreSQL store. A single mutex serializes every operation, and transactions hold it
// for their whole duration and restore a snapshot on error.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
	"github.com/polkiloo/dispatchdesk/internal/queue"
)

type txKey struct{}

// Seed is reference data loaded into a fresh store.
type Seed struct {
	Profiles     []model.Profile     `json:"profiles"`
	ServiceTypes []model.ServiceType `json:"service_types"`
	Districts    []model.District    `json:"districts"`
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	orders       map[string]*model.Order
	ledgers      map[string]*model.WorkerLedger
	transactions []model.BalanceTransaction
	payouts      map[string]*model.PayoutRequest
	audit        []model.AuditEntry
	profiles     map[string]model.Profile
	serviceTypes []model.ServiceType
	districts    []model.District
}

type state struct {
	orders       map[string]*model.Order
	ledgers      map[string]*model.WorkerLedger
	transactions int
	payouts      map[string]*model.PayoutRequest
	audit        int
}

var _ repository.Factory = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		orders:   make(map[string]*model.Order),
		ledgers:  make(map[string]*model.WorkerLedger),
		payouts:  make(map[string]*model.PayoutRequest),
		profiles: make(map[string]model.Profile),
	}
}

// Load replaces reference data with the seed.
func (s *Store) Load(seed Seed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range seed.Profiles {
		s.profiles[p.ID] = p
	}
	s.serviceTypes = append([]model.ServiceType(nil), seed.ServiceTypes...)
	s.districts = append([]model.District(nil), seed.Districts...)
}

// LoadFile reads a JSON seed from path into the store.
func (s *Store) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(content, &seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	s.Load(seed)
	return nil
}

// HealthCheck always succeeds for the in-process store.
func (s *Store) HealthCheck(context.Context) error { return nil }

// SaveProfile upserts a directory profile.
func (s *Store) SaveProfile(p model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *Store) Orders() repository.OrderRepository        { return orderRepository{s} }
func (s *Store) Ledgers() repository.LedgerRepository      { return ledgerRepository{s} }
func (s *Store) Payouts() repository.PayoutRepository      { return payoutRepository{s} }
func (s *Store) Audit() repository.AuditRepository         { return auditRepository{s} }
func (s *Store) Directory() repository.DirectoryRepository { return directoryRepository{s} }

// WithinTransaction runs fn while holding the store lock and rolls back on error.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) snapshot() state {
	st := state{
		orders:       make(map[string]*model.Order, len(s.orders)),
		ledgers:      make(map[string]*model.WorkerLedger, len(s.ledgers)),
		transactions: len(s.transactions),
		payouts:      make(map[string]*model.PayoutRequest, len(s.payouts)),
		audit:        len(s.audit),
	}
	for id, o := range s.orders {
		st.orders[id] = o.Clone()
	}
	for id, l := range s.ledgers {
		c := *l
		st.ledgers[id] = &c
	}
	for id, p := range s.payouts {
		c := *p
		st.payouts[id] = &c
	}
	return st
}

func (s *Store) restore(st state) {
	s.orders = st.orders
	s.ledgers = st.ledgers
	s.transactions = s.transactions[:st.transactions]
	s.payouts = st.payouts
	s.audit = s.audit[:st.audit]
}

type orderRepository struct{ s *Store }

func (r orderRepository) Create(ctx context.Context, o *model.Order) (*model.Order, error) {
	defer r.s.lock(ctx)()
	if _, ok := r.s.orders[o.ID]; ok {
		return nil, domainErrors.ErrAlreadyExists
	}
	stored := o.Clone()
	stored.Version = 1
	stored.UpdatedAt = o.CreatedAt
	r.s.orders[o.ID] = stored
	return stored.Clone(), nil
}

func (r orderRepository) Get(ctx context.Context, id string) (*model.Order, error) {
	defer r.s.lock(ctx)()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return o.Clone(), nil
}

func (r orderRepository) CompareAndSwap(ctx context.Context, prev, next *model.Order) (*model.Order, error) {
	defer r.s.lock(ctx)()
	current, ok := r.s.orders[prev.ID]
	if !ok || current.Version != prev.Version || current.Status != prev.Status {
		return nil, domainErrors.ErrConflict
	}
	stored := next.Clone()
	stored.Version = current.Version + 1
	r.s.orders[prev.ID] = stored
	return stored.Clone(), nil
}

func (r orderRepository) ClaimUnheld(ctx context.Context, next *model.Order) (*model.Order, error) {
	defer r.s.lock(ctx)()
	current, ok := r.s.orders[next.ID]
	if !ok || current.MasterID != nil ||
		(current.Status != model.OrderStatusPlaced && current.Status != model.OrderStatusReopened) {
		return nil, domainErrors.ErrConflict
	}
	stored := current.Clone()
	stored.Version++
	stored.MasterID = next.MasterID
	stored.Status = model.OrderStatusClaimed
	stored.ClaimedAt = next.ClaimedAt
	stored.StartedAt = nil
	stored.CanceledAt = nil
	stored.CancelReason = ""
	stored.RefusalReason = ""
	if next.ClaimedAt != nil {
		stored.UpdatedAt = *next.ClaimedAt
	}
	r.s.orders[next.ID] = stored
	return stored.Clone(), nil
}

func (r orderRepository) WorkerLoad(ctx context.Context, workerID string, now time.Time) (model.WorkerLoad, error) {
	defer r.s.lock(ctx)()
	var load model.WorkerLoad
	for _, o := range r.s.orders {
		if !o.HeldBy(workerID) {
			continue
		}
		switch o.Status {
		case model.OrderStatusClaimed, model.OrderStatusStarted:
			load.Active++
			if o.Urgency == model.UrgencyPlanned && o.PreferredAt != nil && !o.PreferredAt.Before(now) {
				if load.NextPlannedAt == nil || o.PreferredAt.Before(*load.NextPlannedAt) {
					at := *o.PreferredAt
					load.NextPlannedAt = &at
				}
			}
		case model.OrderStatusCompleted:
			load.PendingConfirmation++
		}
	}
	return load, nil
}

func (r orderRepository) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	defer r.s.lock(ctx)()
	var result []model.Order
	for _, o := range r.s.orders {
		if o.Status == model.OrderStatusPlaced && o.MasterID == nil && o.CreatedAt.Before(cutoff) {
			result = append(result, *o.Clone())
		}
	}
	queue.SortOrders(result, model.SortOldest)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r orderRepository) all(ctx context.Context) []model.Order {
	defer r.s.lock(ctx)()
	result := make([]model.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		result = append(result, *o.Clone())
	}
	return result
}

func (r orderRepository) QueryQueue(ctx context.Context, q repository.QueueQuery) (*model.QueuePage, error) {
	return queue.Compute(r.all(ctx), q.Scope, q.Filter, q.Windows, q.Now), nil
}

func (r orderRepository) ListScope(ctx context.Context, scope model.QueueScope) ([]model.Order, error) {
	var result []model.Order
	for _, o := range r.all(ctx) {
		if queue.InScope(&o, scope) {
			result = append(result, o)
		}
	}
	queue.SortOrders(result, model.SortNewest)
	return result, nil
}

func (r orderRepository) Stats(ctx context.Context, q repository.StatsQuery) (*model.StatsSummary, error) {
	return queue.Stats(r.all(ctx), q.Scope, q.From, q.To, q.Windows, q.Now), nil
}

type ledgerRepository struct{ s *Store }

func (r ledgerRepository) Create(ctx context.Context, l *model.WorkerLedger) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.ledgers[l.WorkerID]; ok {
		return domainErrors.ErrAlreadyExists
	}
	c := *l
	r.s.ledgers[l.WorkerID] = &c
	return nil
}

func (r ledgerRepository) Get(ctx context.Context, workerID string) (*model.WorkerLedger, error) {
	defer r.s.lock(ctx)()
	l, ok := r.s.ledgers[workerID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	c := *l
	return &c, nil
}

// GetForUpdate is Get: the transaction already holds the store lock.
func (r ledgerRepository) GetForUpdate(ctx context.Context, workerID string) (*model.WorkerLedger, error) {
	return r.Get(ctx, workerID)
}

func (r ledgerRepository) Update(ctx context.Context, l *model.WorkerLedger) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.ledgers[l.WorkerID]; !ok {
		return domainErrors.ErrNotFound
	}
	c := *l
	r.s.ledgers[l.WorkerID] = &c
	return nil
}

func (r ledgerRepository) AppendTransaction(ctx context.Context, t *model.BalanceTransaction) (*model.BalanceTransaction, error) {
	defer r.s.lock(ctx)()
	if _, ok := r.s.ledgers[t.WorkerID]; !ok {
		return nil, domainErrors.ErrNotFound
	}
	stored := *t
	stored.ID = int64(len(r.s.transactions) + 1)
	r.s.transactions = append(r.s.transactions, stored)
	return &stored, nil
}

func (r ledgerRepository) ListTransactions(ctx context.Context, workerID string, limit int) ([]model.BalanceTransaction, error) {
	defer r.s.lock(ctx)()
	var result []model.BalanceTransaction
	for i := len(r.s.transactions) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		if r.s.transactions[i].WorkerID == workerID {
			result = append(result, r.s.transactions[i])
		}
	}
	return result, nil
}

type payoutRepository struct{ s *Store }

func (r payoutRepository) Create(ctx context.Context, p *model.PayoutRequest) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.payouts[p.ID]; ok {
		return domainErrors.ErrAlreadyExists
	}
	c := *p
	r.s.payouts[p.ID] = &c
	return nil
}

func (r payoutRepository) Get(ctx context.Context, id string) (*model.PayoutRequest, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.payouts[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r payoutRepository) UpdateStatus(ctx context.Context, p *model.PayoutRequest, from model.PayoutStatus) error {
	defer r.s.lock(ctx)()
	current, ok := r.s.payouts[p.ID]
	if !ok || current.Status != from {
		return domainErrors.ErrConflict
	}
	c := *p
	r.s.payouts[p.ID] = &c
	return nil
}

func (r payoutRepository) List(ctx context.Context, q repository.PayoutQuery) ([]model.PayoutRequest, error) {
	defer r.s.lock(ctx)()
	var result []model.PayoutRequest
	for _, p := range r.s.payouts {
		if q.WorkerID != "" && p.WorkerID != q.WorkerID {
			continue
		}
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RequestedAt.Equal(result[j].RequestedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].RequestedAt.After(result[j].RequestedAt)
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

type auditRepository struct{ s *Store }

func (r auditRepository) Append(ctx context.Context, e *model.AuditEntry) error {
	defer r.s.lock(ctx)()
	stored := *e
	stored.ID = int64(len(r.s.audit) + 1)
	stored.OldSnapshot = e.OldSnapshot.Clone()
	stored.NewSnapshot = e.NewSnapshot.Clone()
	r.s.audit = append(r.s.audit, stored)
	return nil
}

func (r auditRepository) ListByOrder(ctx context.Context, orderID string) ([]model.AuditEntry, error) {
	defer r.s.lock(ctx)()
	var result []model.AuditEntry
	for _, e := range r.s.audit {
		if e.OrderID == orderID {
			result = append(result, e)
		}
	}
	return result, nil
}

type directoryRepository struct{ s *Store }

func (r directoryRepository) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return &p, nil
}

func (r directoryRepository) ListProfiles(ctx context.Context, role model.Role) ([]model.Profile, error) {
	defer r.s.lock(ctx)()
	var result []model.Profile
	for _, p := range r.s.profiles {
		if p.Role == role && p.IsActive {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DisplayName < result[j].DisplayName })
	return result, nil
}

func (r directoryRepository) ServiceTypes(ctx context.Context) ([]model.ServiceType, error) {
	defer r.s.lock(ctx)()
	return append([]model.ServiceType(nil), r.s.serviceTypes...), nil
}

func (r directoryRepository) Districts(ctx context.Context) ([]model.District, error) {
	defer r.s.lock(ctx)()
	return append([]model.District(nil), r.s.districts...), nil
}
