package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/polkiloo/dispatchdesk/internal/config"
	"github.com/polkiloo/dispatchdesk/internal/pkg/auth"
	"github.com/polkiloo/dispatchdesk/internal/storage"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
	"github.com/polkiloo/dispatchdesk/internal/worker"
)

// Module wires the facade, the HTTP server, the expiry sweeper and their lifecycle.
var Module = fx.Options(
	fx.Provide(
		newDispatchFacade,
		newHTTPServer,
		newExpirySweeper,
	),
	fx.Invoke(registerLifecycle),
)

type facadeParams struct {
	fx.In

	Tokens    auth.Strategy
	Backend   storage.Backend
	Claims    *usecase.ClaimResolver
	Workflow  *usecase.Workflow
	Queue     *usecase.QueueUseCase
	Ledger    *usecase.LedgerUseCase
	Payouts   *usecase.PayoutUseCase
	Reference *usecase.ReferenceCache
}

func newDispatchFacade(p facadeParams) *DispatchFacade {
	return NewDispatchFacade(p.Tokens, UseCases{
		Claims:    p.Claims,
		Workflow:  p.Workflow,
		Queue:     p.Queue,
		Ledger:    p.Ledger,
		Payouts:   p.Payouts,
		Reference: p.Reference,
	}, p.Backend)
}

type serverParams struct {
	fx.In

	Config *config.Config
	Router *gin.Engine
}

func newHTTPServer(p serverParams) *http.Server {
	return &http.Server{
		Addr:              p.Config.RunAddress,
		Handler:           p.Router,
		ReadHeaderTimeout: p.Config.RequestTimeout,
	}
}

type sweeperParams struct {
	fx.In

	Facade *DispatchFacade
	Config *config.Config
	Logger *slog.Logger
}

func newExpirySweeper(p sweeperParams) *worker.ExpirySweeper {
	return worker.NewExpirySweeper(
		p.Facade,
		p.Config.SweepInterval,
		p.Config.SweepBatchSize,
		p.Config.SweepWorkers,
		p.Logger.With(slog.String("component", "expiry_sweeper")),
	)
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *slog.Logger
	Server     *http.Server
	Sweeper    *worker.ExpirySweeper
	Config     *config.Config
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("starting dispatchdesk",
				slog.String("addr", p.Server.Addr),
				slog.String("storage", p.Config.Storage),
			)
			p.Sweeper.Start(ctx)
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server terminated", slog.String("error", err.Error()))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Sweeper.Stop()

			shutdownCtx := ctx
			cancel := func() {}
			if _, ok := ctx.Deadline(); !ok {
				shutdownCtx, cancel = context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			}
			defer cancel()

			if err := p.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			p.Logger.Info("dispatchdesk stopped")
			return nil
		},
	})
}
