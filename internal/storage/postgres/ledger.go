package postgres

import (
	"context"
	"strings"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

const ledgerColumns = `worker_id, total_earnings, total_commission_owed, total_commission_paid, prepaid_balance,
    balance_threshold, balance_blocked_at, max_active_jobs, active_jobs, refusal_count, completed_jobs_count, updated_at`

func scanLedger(row rowScanner) (*model.WorkerLedger, error) {
	var l model.WorkerLedger
	err := row.Scan(
		&l.WorkerID, &l.TotalEarnings, &l.TotalCommissionOwed, &l.TotalCommissionPaid, &l.PrepaidBalance,
		&l.BalanceThreshold, &l.BalanceBlockedAt, &l.MaxActiveJobs, &l.ActiveJobs, &l.RefusalCount,
		&l.CompletedJobsCount, &l.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &l, nil
}

func (r *ledgerRepository) Create(ctx context.Context, l *model.WorkerLedger) error {
	const query = `INSERT INTO worker_ledgers (` + ledgerColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.storage.querier(ctx).Exec(ctx, query,
		l.WorkerID, l.TotalEarnings, l.TotalCommissionOwed, l.TotalCommissionPaid, l.PrepaidBalance,
		l.BalanceThreshold, l.BalanceBlockedAt, l.MaxActiveJobs, l.ActiveJobs, l.RefusalCount,
		l.CompletedJobsCount, l.UpdatedAt,
	)
	return mapError(err)
}

func (r *ledgerRepository) Get(ctx context.Context, workerID string) (*model.WorkerLedger, error) {
	const query = `SELECT ` + ledgerColumns + ` FROM worker_ledgers WHERE worker_id=$1`
	return scanLedger(r.storage.querier(ctx).QueryRow(ctx, query, workerID))
}

func (r *ledgerRepository) GetForUpdate(ctx context.Context, workerID string) (*model.WorkerLedger, error) {
	const query = `SELECT ` + ledgerColumns + ` FROM worker_ledgers WHERE worker_id=$1 FOR UPDATE`
	return scanLedger(r.storage.querier(ctx).QueryRow(ctx, query, workerID))
}

func (r *ledgerRepository) Update(ctx context.Context, l *model.WorkerLedger) error {
	const query = `UPDATE worker_ledgers SET
            total_earnings = $2,
            total_commission_owed = $3,
            total_commission_paid = $4,
            prepaid_balance = $5,
            balance_threshold = $6,
            balance_blocked_at = $7,
            max_active_jobs = $8,
            active_jobs = $9,
            refusal_count = $10,
            completed_jobs_count = $11,
            updated_at = $12
        WHERE worker_id=$1`
	tag, err := r.storage.querier(ctx).Exec(ctx, query,
		l.WorkerID, l.TotalEarnings, l.TotalCommissionOwed, l.TotalCommissionPaid, l.PrepaidBalance,
		l.BalanceThreshold, l.BalanceBlockedAt, l.MaxActiveJobs, l.ActiveJobs, l.RefusalCount,
		l.CompletedJobsCount, l.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *ledgerRepository) AppendTransaction(ctx context.Context, t *model.BalanceTransaction) (*model.BalanceTransaction, error) {
	const query = `INSERT INTO balance_transactions
            (worker_id, type, amount, balance_before, balance_after, order_id, payout_request_id, note, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id`
	stored := *t
	err := r.storage.querier(ctx).QueryRow(ctx, query,
		t.WorkerID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter, t.OrderID, t.PayoutRequestID, t.Note, t.CreatedAt,
	).Scan(&stored.ID)
	if err != nil {
		return nil, mapError(err)
	}
	return &stored, nil
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, workerID string, limit int) ([]model.BalanceTransaction, error) {
	const query = `SELECT id, worker_id, type, amount, balance_before, balance_after, order_id, payout_request_id, note, created_at
        FROM balance_transactions WHERE worker_id=$1 ORDER BY id DESC LIMIT $2`
	rows, err := r.storage.querier(ctx).Query(ctx, query, workerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.BalanceTransaction
	for rows.Next() {
		var t model.BalanceTransaction
		if err := rows.Scan(&t.ID, &t.WorkerID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&t.OrderID, &t.PayoutRequestID, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const payoutColumns = `id, worker_id, status, requested_amount, approved_amount, admin_note, decided_by,
    requested_at, decided_at, paid_at`

func scanPayout(row rowScanner) (*model.PayoutRequest, error) {
	var p model.PayoutRequest
	err := row.Scan(&p.ID, &p.WorkerID, &p.Status, &p.RequestedAmount, &p.ApprovedAmount, &p.AdminNote,
		&p.DecidedBy, &p.RequestedAt, &p.DecidedAt, &p.PaidAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *payoutRepository) Create(ctx context.Context, p *model.PayoutRequest) error {
	const query = `INSERT INTO payout_requests (` + payoutColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.storage.querier(ctx).Exec(ctx, query,
		p.ID, p.WorkerID, p.Status, p.RequestedAmount, p.ApprovedAmount, p.AdminNote,
		p.DecidedBy, p.RequestedAt, p.DecidedAt, p.PaidAt,
	)
	return mapError(err)
}

func (r *payoutRepository) Get(ctx context.Context, id string) (*model.PayoutRequest, error) {
	const query = `SELECT ` + payoutColumns + ` FROM payout_requests WHERE id=$1`
	return scanPayout(r.storage.querier(ctx).QueryRow(ctx, query, id))
}

func (r *payoutRepository) UpdateStatus(ctx context.Context, p *model.PayoutRequest, from model.PayoutStatus) error {
	const query = `UPDATE payout_requests SET
            status = $3,
            approved_amount = $4,
            admin_note = $5,
            decided_by = $6,
            decided_at = $7,
            paid_at = $8
        WHERE id=$1 AND status=$2`
	tag, err := r.storage.querier(ctx).Exec(ctx, query,
		p.ID, from, p.Status, p.ApprovedAmount, p.AdminNote, p.DecidedBy, p.DecidedAt, p.PaidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrConflict
	}
	return nil
}

func (r *payoutRepository) List(ctx context.Context, q repository.PayoutQuery) ([]model.PayoutRequest, error) {
	where := &whereBuilder{}
	if q.WorkerID != "" {
		where.add("worker_id = " + where.arg(q.WorkerID))
	}
	if q.Status != "" {
		where.add("status = " + where.arg(q.Status))
	}
	var sb strings.Builder
	sb.WriteString(`SELECT ` + payoutColumns + ` FROM payout_requests`)
	sb.WriteString(where.String())
	sb.WriteString(` ORDER BY requested_at DESC`)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ` + where.arg(q.Limit))
	}

	rows, err := r.storage.querier(ctx).Query(ctx, sb.String(), where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
