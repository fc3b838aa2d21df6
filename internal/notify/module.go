package notify

import (
	"go.uber.org/fx"

	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// Module provides the live hub and the notifier used by the use cases.
var Module = fx.Options(
	fx.Provide(
		NewHub,
		NewLogSink,
		fx.Annotate(newNotifier, fx.As(new(usecase.Notifier))),
	),
)

func newNotifier(hub *Hub, sink *LogSink) *Fanout {
	return NewFanout(sink, hub)
}
