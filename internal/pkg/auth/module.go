package auth

import (
	"go.uber.org/fx"

	"github.com/polkiloo/dispatchdesk/internal/config"
)

// Module provides the actor token strategy via fx.
var Module = fx.Options(
	fx.Provide(newTokenStrategy),
)

type strategyParams struct {
	fx.In

	Config *config.Config
}

func newTokenStrategy(p strategyParams) Strategy {
	return NewJWTStrategy(p.Config.JWTSecret, Options{})
}
