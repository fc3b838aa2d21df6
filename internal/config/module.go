package config

import "go.uber.org/fx"

// Module provides the loaded *Config.
var Module = fx.Provide(Load)
