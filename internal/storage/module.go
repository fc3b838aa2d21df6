// Package storage selects the configured repository backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/dispatchdesk/internal/config"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
	"github.com/polkiloo/dispatchdesk/internal/storage/memory"
	"github.com/polkiloo/dispatchdesk/internal/storage/postgres"
)

// Backend is a repository factory that can report its health.
type Backend interface {
	repository.Factory
	HealthCheck(ctx context.Context) error
}

// Module wires the storage backend and repository adapters.
var Module = fx.Options(
	fx.Provide(newBackend),
	fx.Provide(
		func(b Backend) repository.Factory { return b },
		func(f repository.Factory) repository.OrderRepository { return f.Orders() },
		func(f repository.Factory) repository.LedgerRepository { return f.Ledgers() },
		func(f repository.Factory) repository.PayoutRepository { return f.Payouts() },
		func(f repository.Factory) repository.AuditRepository { return f.Audit() },
		func(f repository.Factory) repository.DirectoryRepository { return f.Directory() },
	),
)

type backendParams struct {
	fx.In

	Ctx       context.Context
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *slog.Logger
}

var openPostgres = func(ctx context.Context, dsn string, logger *slog.Logger) (*postgres.Storage, error) {
	return postgres.New(ctx, dsn, logger)
}

func newBackend(p backendParams) (Backend, error) {
	switch p.Config.Storage {
	case config.StorageMemory:
		store := memory.New()
		if p.Config.DirectorySeedFile != "" {
			if err := store.LoadFile(p.Config.DirectorySeedFile); err != nil {
				return nil, err
			}
		}
		p.Logger.Info("using in-memory storage")
		return store, nil
	case config.StoragePostgres, "":
		storage, err := openPostgres(p.Ctx, p.Config.DatabaseURI, p.Logger)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				storage.Close()
				return nil
			},
		})
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", p.Config.Storage)
	}
}
