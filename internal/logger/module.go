package logger

import "go.uber.org/fx"

// Module provides the service logger built from the loaded config.
var Module = fx.Provide(New)
