package repository

import "context"

// Transactor runs fn inside one store transaction carried by the context.
// Repository calls made with that context join the transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Factory describes access to different domain repositories.
type Factory interface {
	Transactor
	Orders() OrderRepository
	Ledgers() LedgerRepository
	Payouts() PayoutRepository
	Audit() AuditRepository
	Directory() DirectoryRepository
}
