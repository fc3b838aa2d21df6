package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxPool interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var newPgxPool = func(ctx context.Context, cfg *pgxpool.Config) (pgxPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

type txKey struct{}

var snapshotOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// Storage acts as repository facade backed by PostgreSQL.
type Storage struct {
	pool   pgxPool
	logger *slog.Logger
}

type orderRepository struct {
	storage *Storage
}

type ledgerRepository struct {
	storage *Storage
}

type payoutRepository struct {
	storage *Storage
}

type auditRepository struct {
	storage *Storage
}

type directoryRepository struct {
	storage *Storage
}

var _ repository.Factory = (*Storage)(nil)

// New creates storage with schema initialization.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	storage := &Storage{pool: pool, logger: logger}
	if err := storage.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

// Close releases database resources.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Factory methods for domain repositories.
func (s *Storage) Orders() repository.OrderRepository {
	return &orderRepository{storage: s}
}

func (s *Storage) Ledgers() repository.LedgerRepository {
	return &ledgerRepository{storage: s}
}

func (s *Storage) Payouts() repository.PayoutRepository {
	return &payoutRepository{storage: s}
}

func (s *Storage) Audit() repository.AuditRepository {
	return &auditRepository{storage: s}
}

func (s *Storage) Directory() repository.DirectoryRepository {
	return &directoryRepository{storage: s}
}

func (s *Storage) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
            id TEXT PRIMARY KEY,
            version BIGINT NOT NULL DEFAULT 1,
            client_id TEXT,
            client_name TEXT NOT NULL DEFAULT '',
            client_phone TEXT NOT NULL DEFAULT '',
            master_id TEXT,
            dispatcher_id TEXT NOT NULL,
            assigned_dispatcher_id TEXT NOT NULL,
            service_type TEXT NOT NULL,
            urgency TEXT NOT NULL,
            problem_description TEXT NOT NULL DEFAULT '',
            area TEXT NOT NULL DEFAULT '',
            full_address TEXT NOT NULL DEFAULT '',
            preferred_at TIMESTAMPTZ,
            dispatcher_note TEXT NOT NULL DEFAULT '',
            pricing_type TEXT NOT NULL,
            initial_price DOUBLE PRECISION,
            callout_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
            final_price DOUBLE PRECISION,
            price_change_reason TEXT NOT NULL DEFAULT '',
            work_performed TEXT NOT NULL DEFAULT '',
            payment_method TEXT NOT NULL DEFAULT '',
            payment_proof_url TEXT NOT NULL DEFAULT '',
            cancel_reason TEXT NOT NULL DEFAULT '',
            refusal_reason TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            is_disputed BOOLEAN NOT NULL DEFAULT FALSE,
            requires_review BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            claimed_at TIMESTAMPTZ,
            started_at TIMESTAMPTZ,
            completed_at TIMESTAMPTZ,
            confirmed_at TIMESTAMPTZ,
            canceled_at TIMESTAMPTZ,
            payment_confirmed_at TIMESTAMPTZ,
            CONSTRAINT orders_master_matches_status CHECK (
                (master_id IS NOT NULL) = (status IN ('claimed', 'started', 'completed', 'confirmed'))
            ),
            CONSTRAINT orders_final_price_floor CHECK (final_price IS NULL OR final_price >= callout_fee),
            CONSTRAINT orders_initial_price_floor CHECK (initial_price IS NULL OR initial_price >= callout_fee)
        )`,
		`CREATE TABLE IF NOT EXISTS worker_ledgers (
            worker_id TEXT PRIMARY KEY,
            total_earnings DOUBLE PRECISION NOT NULL DEFAULT 0,
            total_commission_owed DOUBLE PRECISION NOT NULL DEFAULT 0,
            total_commission_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
            prepaid_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
            balance_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
            balance_blocked_at TIMESTAMPTZ,
            max_active_jobs INTEGER NOT NULL,
            active_jobs INTEGER NOT NULL DEFAULT 0,
            refusal_count INTEGER NOT NULL DEFAULT 0,
            completed_jobs_count INTEGER NOT NULL DEFAULT 0,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS balance_transactions (
            id BIGSERIAL PRIMARY KEY,
            worker_id TEXT NOT NULL REFERENCES worker_ledgers(worker_id),
            type TEXT NOT NULL,
            amount DOUBLE PRECISION NOT NULL,
            balance_before DOUBLE PRECISION NOT NULL,
            balance_after DOUBLE PRECISION NOT NULL,
            order_id TEXT,
            payout_request_id TEXT,
            note TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS payout_requests (
            id TEXT PRIMARY KEY,
            worker_id TEXT NOT NULL REFERENCES worker_ledgers(worker_id),
            status TEXT NOT NULL,
            requested_amount DOUBLE PRECISION NOT NULL,
            approved_amount DOUBLE PRECISION,
            admin_note TEXT NOT NULL DEFAULT '',
            decided_by TEXT,
            requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            decided_at TIMESTAMPTZ,
            paid_at TIMESTAMPTZ
        )`,
		`CREATE TABLE IF NOT EXISTS order_audit_log (
            id BIGSERIAL PRIMARY KEY,
            order_id TEXT NOT NULL,
            action TEXT NOT NULL,
            old_snapshot JSONB,
            new_snapshot JSONB,
            performed_by TEXT NOT NULL,
            note TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS profiles (
            id TEXT PRIMARY KEY,
            role TEXT NOT NULL,
            display_name TEXT NOT NULL DEFAULT '',
            is_verified BOOLEAN NOT NULL DEFAULT FALSE,
            is_active BOOLEAN NOT NULL DEFAULT TRUE
        )`,
		`CREATE TABLE IF NOT EXISTS service_types (
            code TEXT PRIMARY KEY,
            title TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS districts (
            code TEXT PRIMARY KEY,
            title TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_master ON orders(master_id) WHERE master_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_orders_dispatchers ON orders(dispatcher_id, assigned_dispatcher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_transactions_worker ON balance_transactions(worker_id, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_payout_requests_worker ON payout_requests(worker_id, requested_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_order ON order_audit_log(order_id, id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// WithinTransaction executes function inside transaction boundary.
// Nested calls join the transaction already carried by ctx.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// readSnapshot runs several reads against one REPEATABLE READ snapshot.
func (s *Storage) readSnapshot(ctx context.Context, fn func(q querier) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(tx)
	}
	return s.inTx(ctx, snapshotOptions, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

func (s *Storage) inTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

func (s *Storage) querier(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Logger returns storage logger.
func (s *Storage) Logger() *slog.Logger {
	return s.logger
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domainErrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domainErrors.ErrAlreadyExists
	}
	return err
}
