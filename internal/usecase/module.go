package usecase

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

// Module provides core business use cases to the fx container.
var Module = fx.Provide(
	NewSettings,
	newClaimResolver,
	NewLedgerUseCase,
	NewPayoutUseCase,
	NewWorkflow,
	NewQueueUseCase,
	newReferenceCache,
)

func newClaimResolver(store repository.Factory, settings Settings) *ClaimResolver {
	return NewClaimResolver(store.Orders(), store.Ledgers(), store.Directory(), settings)
}

func newReferenceCache(store repository.Factory, settings Settings, logger *slog.Logger) *ReferenceCache {
	return NewReferenceCache(store.Directory(), settings, logger)
}
