// Package notify delivers workflow events to logs and live websocket subscribers.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish implements usecase.Notifier.
func (s *LogSink) Publish(ctx context.Context, e model.Event) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "notification",
		slog.String("kind", string(e.Kind)),
		slog.String("order_id", e.OrderID),
		slog.String("worker_id", e.WorkerID),
		slog.String("payout_id", e.PayoutID),
		slog.String("recipients", strings.Join(e.Recipients, ",")),
	)
	return nil
}

// Fanout publishes to several sinks. Every sink is tried even when one fails.
type Fanout struct {
	sinks []usecase.Notifier
}

// NewFanout constructs Fanout.
func NewFanout(sinks ...usecase.Notifier) *Fanout {
	return &Fanout{sinks: sinks}
}

// Publish implements usecase.Notifier.
func (f *Fanout) Publish(ctx context.Context, e model.Event) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
