package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// ExpiryFacade exposes the subset of application functionality required by the sweeper.
type ExpiryFacade interface {
	ExpirableOrders(ctx context.Context, limit int) ([]model.Order, error)
	ExpireOrder(ctx context.Context, orderID string) (*model.Order, error)
}

// ExpirySweeper periodically expires stale unclaimed orders using a small worker pool.
type ExpirySweeper struct {
	facade    ExpiryFacade
	interval  time.Duration
	batchSize int
	workers   int
	logger    *slog.Logger

	jobs     chan model.Order
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewExpirySweeper constructs the sweeper.
func NewExpirySweeper(facade ExpiryFacade, interval time.Duration, batchSize, workers int, logger *slog.Logger) *ExpirySweeper {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		facade:    facade,
		interval:  interval,
		batchSize: batchSize,
		workers:   workers,
		logger:    logger,
		jobs:      make(chan model.Order, batchSize),
		inflight:  make(map[string]struct{}),
	}
}

// Start launches the ticker and the workers.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx)
	}

	s.wg.Add(1)
	go s.dispatch(runCtx)
}

// Stop cancels the sweep and waits for in-flight expiries to finish.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *ExpirySweeper) dispatch(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	orders, err := s.facade.ExpirableOrders(ctx, s.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("list expirable orders failed", slog.String("error", err.Error()))
		}
		return
	}
	for _, order := range orders {
		if !s.acquire(order.ID) {
			continue
		}
		select {
		case <-ctx.Done():
			s.release(order.ID)
			return
		case s.jobs <- order:
		}
	}
}

func (s *ExpirySweeper) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-s.jobs:
			s.expire(ctx, order)
		}
	}
}

func (s *ExpirySweeper) expire(ctx context.Context, order model.Order) {
	defer s.release(order.ID)

	expired, err := s.facade.ExpireOrder(ctx, order.ID)
	if err != nil {
		if _, ok := domainErrors.AsFailure(err); ok {
			return
		}
		s.logger.Error("expire order failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		return
	}
	s.logger.Info("order expired",
		slog.String("order_id", expired.ID),
		slog.String("dispatcher_id", expired.DispatcherID),
	)
}

// acquire keeps a candidate from being queued twice by overlapping sweeps.
func (s *ExpirySweeper) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *ExpirySweeper) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}
