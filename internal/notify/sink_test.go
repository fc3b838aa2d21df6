package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/fx"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

type countingSink struct {
	calls int
	err   error
}

func (s *countingSink) Publish(context.Context, model.Event) error {
	s.calls++
	return s.err
}

func TestLogSinkWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := sink.Publish(context.Background(), model.Event{Kind: model.EventOrderExpired, OrderID: "o-7", Recipients: []string{"d-1", "d-2"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"kind":"order.expired"`, `"order_id":"o-7"`, `"recipients":"d-1,d-2"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestFanoutTriesEverySink(t *testing.T) {
	boom := errors.New("sink down")
	first := &countingSink{err: boom}
	second := &countingSink{}
	fanout := NewFanout(first, second)

	err := fanout.Publish(context.Background(), model.Event{Kind: model.EventOrderChanged})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("every sink must be called: %d, %d", first.calls, second.calls)
	}
}

func TestModuleProvidesNotifier(t *testing.T) {
	var (
		notifier usecase.Notifier
		hub      *Hub
	)
	app := fx.New(
		fx.NopLogger,
		fx.Supply(discardLogger()),
		Module,
		fx.Populate(&notifier, &hub),
	)
	if err := app.Err(); err != nil {
		t.Fatalf("fx app failed: %v", err)
	}
	sub := hub.Subscribe(model.Actor{ID: "d-1", Role: model.RoleDispatcher})
	defer sub.Close()
	if err := notifier.Publish(context.Background(), model.Event{Kind: model.EventOrderChanged, Recipients: []string{"d-1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := len(received(sub)); got != 1 {
		t.Fatalf("notifier must reach the hub, got %d events", got)
	}
}
