package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	testhelpers "github.com/polkiloo/dispatchdesk/internal/test"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func waitFor(t *testing.T, facade *testhelpers.ExpiryFacadeStub, done func() bool) {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	for {
		facade.Lock()
		ok := done()
		facade.Unlock()
		if ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for the sweeper")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNewExpirySweeperDefaults(t *testing.T) {
	s := NewExpirySweeper(&testhelpers.ExpiryFacadeStub{}, 0, 0, 0, discardLogger())
	if s.batchSize != 1 || s.workers != 1 {
		t.Fatalf("expected batch and workers default to 1, got %d and %d", s.batchSize, s.workers)
	}
	if s.interval != time.Minute {
		t.Fatalf("expected interval default to one minute, got %v", s.interval)
	}
}

func TestExpirySweeperExpiresCandidates(t *testing.T) {
	facade := &testhelpers.ExpiryFacadeStub{
		Batches: [][]model.Order{{{ID: "o-1"}, {ID: "o-2"}}},
	}
	s := NewExpirySweeper(facade, 5*time.Millisecond, 10, 2, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	waitFor(t, facade, func() bool { return len(facade.Expired) == 2 })
	s.Stop()

	facade.Lock()
	defer facade.Unlock()
	seen := map[string]bool{}
	for _, id := range facade.Expired {
		seen[id] = true
	}
	if !seen["o-1"] || !seen["o-2"] {
		t.Fatalf("unexpected expiries: %v", facade.Expired)
	}
}

func TestExpirySweeperSkipsOrdersThatMovedOn(t *testing.T) {
	facade := &testhelpers.ExpiryFacadeStub{
		Batches: [][]model.Order{{{ID: "claimed"}, {ID: "stale"}}},
		ExpireFn: func(_ context.Context, id string) (*model.Order, error) {
			if id == "claimed" {
				return nil, domainErrors.Guard(domainErrors.ReasonInvalidStatus)
			}
			return &model.Order{ID: id, Status: model.OrderStatusExpired}, nil
		},
	}
	s := NewExpirySweeper(facade, 5*time.Millisecond, 10, 1, discardLogger())

	s.Start(context.Background())
	waitFor(t, facade, func() bool { return len(facade.Expired)+len(facade.Skipped) == 2 })
	s.Stop()

	facade.Lock()
	defer facade.Unlock()
	if len(facade.Expired) != 1 || facade.Expired[0] != "stale" {
		t.Fatalf("expected only the stale order to expire, got %v", facade.Expired)
	}
	if len(facade.Skipped) != 1 || facade.Skipped[0] != "claimed" {
		t.Fatalf("expected the claimed order to be skipped, got %v", facade.Skipped)
	}
}

func TestExpirySweeperSurvivesListErrors(t *testing.T) {
	facade := &testhelpers.ExpiryFacadeStub{
		ListFn: func(context.Context, int) ([]model.Order, error) {
			return nil, errors.New("store down")
		},
	}
	s := NewExpirySweeper(facade, 5*time.Millisecond, 10, 1, discardLogger())
	s.Start(context.Background())
	waitFor(t, facade, func() bool { return facade.ListCalls() >= 2 })
	s.Stop()
}

func TestExpirySweeperDoesNotQueueInflightOrders(t *testing.T) {
	batch := []model.Order{{ID: "o-1"}, {ID: "o-2"}}
	facade := &testhelpers.ExpiryFacadeStub{
		ListFn: func(context.Context, int) ([]model.Order, error) { return batch, nil },
	}
	s := NewExpirySweeper(facade, time.Hour, 4, 1, discardLogger())

	ctx := context.Background()
	s.sweep(ctx)
	s.sweep(ctx)
	if got := len(s.jobs); got != 2 {
		t.Fatalf("expected each order queued once, got %d jobs", got)
	}

	<-s.jobs
	s.release("o-1")
	s.sweep(ctx)
	if got := len(s.jobs); got != 2 {
		t.Fatalf("released order must be queued again, got %d jobs", got)
	}
}

func TestExpirySweeperStartIsIdempotent(t *testing.T) {
	s := NewExpirySweeper(&testhelpers.ExpiryFacadeStub{}, time.Hour, 1, 3, discardLogger())
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
