package test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// ExpiryFacadeStub mimics the sweeper's view of the dispatch facade.
type ExpiryFacadeStub struct {
	// Batches are returned by consecutive ExpirableOrders calls; later calls return nothing.
	Batches  [][]model.Order
	ListFn   func(context.Context, int) ([]model.Order, error)
	ExpireFn func(context.Context, string) (*model.Order, error)

	mu        sync.Mutex
	Expired   []string
	Skipped   []string
	listCalls int32
}

// Lock exposes the internal mutex for external synchronization.
func (s *ExpiryFacadeStub) Lock() { s.mu.Lock() }

// Unlock releases previously acquired lock.
func (s *ExpiryFacadeStub) Unlock() { s.mu.Unlock() }

// ListCalls reports how many sweeps asked for candidates.
func (s *ExpiryFacadeStub) ListCalls() int { return int(atomic.LoadInt32(&s.listCalls)) }

// ExpirableOrders returns batches from the configured queue.
func (s *ExpiryFacadeStub) ExpirableOrders(ctx context.Context, limit int) ([]model.Order, error) {
	call := atomic.AddInt32(&s.listCalls, 1)
	if s.ListFn != nil {
		return s.ListFn(ctx, limit)
	}
	if int(call) <= len(s.Batches) {
		batch := s.Batches[call-1]
		if len(batch) > limit {
			batch = batch[:limit]
		}
		return batch, nil
	}
	return nil, nil
}

// ExpireOrder records the expiry. Failures returned by ExpireFn are recorded as skips.
func (s *ExpiryFacadeStub) ExpireOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if s.ExpireFn != nil {
		o, err := s.ExpireFn(ctx, orderID)
		if _, ok := domainErrors.AsFailure(err); ok {
			s.mu.Lock()
			s.Skipped = append(s.Skipped, orderID)
			s.mu.Unlock()
		}
		if err != nil {
			return nil, err
		}
		s.record(orderID)
		return o, nil
	}
	s.record(orderID)
	now := time.Unix(0, 0)
	return &model.Order{ID: orderID, Status: model.OrderStatusExpired, CanceledAt: &now}, nil
}

func (s *ExpiryFacadeStub) record(orderID string) {
	s.mu.Lock()
	s.Expired = append(s.Expired, orderID)
	s.mu.Unlock()
}
