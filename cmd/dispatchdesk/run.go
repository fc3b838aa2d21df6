package main

import (
	"context"
	"fmt"

	"go.uber.org/fx"
)

// run starts app and blocks until ctx ends or the app asks to shut down.
// The returned code is the one requested through fx.Shutdowner, if any.
func run(ctx context.Context, app *fx.App) (int, error) {
	if err := app.Start(ctx); err != nil {
		return 1, fmt.Errorf("start: %w", err)
	}

	code := 0
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		code = sig.ExitCode
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return code, fmt.Errorf("stop: %w", err)
	}
	return code, nil
}
