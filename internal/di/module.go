package di

import (
	"go.uber.org/fx"

	"github.com/polkiloo/dispatchdesk/internal/app"
	"github.com/polkiloo/dispatchdesk/internal/config"
	"github.com/polkiloo/dispatchdesk/internal/logger"
	"github.com/polkiloo/dispatchdesk/internal/notify"
	"github.com/polkiloo/dispatchdesk/internal/pkg/auth"
	"github.com/polkiloo/dispatchdesk/internal/server/http/handlers"
	"github.com/polkiloo/dispatchdesk/internal/server/http/router"
	"github.com/polkiloo/dispatchdesk/internal/storage"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// Services is the application graph without configuration and logging.
var Services = fx.Options(
	auth.Module,
	storage.Module,
	usecase.Module,
	notify.Module,
	fx.Provide(
		func(f *app.DispatchFacade) handlers.DispatchFacade { return f },
		func(h *notify.Hub) handlers.LiveFeed { return h },
	),
	router.Module,
	app.Module,
)

func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		Services,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
