package usecase

import (
	"context"
	"log/slog"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// Notifier is the notification sink. Delivery is fire-and-forget.
type Notifier interface {
	Publish(ctx context.Context, event model.Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Publish implements Notifier.
func (NopNotifier) Publish(context.Context, model.Event) error { return nil }

type publisher struct {
	notifier Notifier
	logger   *slog.Logger
}

// publish never fails the caller; delivery errors are only logged.
func (p publisher) publish(ctx context.Context, event model.Event) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(context.WithoutCancel(ctx), event); err != nil {
		p.logger.Warn("notification failed",
			slog.String("kind", string(event.Kind)),
			slog.String("order_id", event.OrderID),
			slog.Any("error", err),
		)
	}
}
