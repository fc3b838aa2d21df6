package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

const orderColumns = `id, version, client_id, client_name, client_phone, master_id, dispatcher_id,
    assigned_dispatcher_id, service_type, urgency, problem_description, area, full_address,
    preferred_at, dispatcher_note, pricing_type, initial_price, callout_fee, final_price,
    price_change_reason, work_performed, payment_method, payment_proof_url, cancel_reason,
    refusal_reason, status, is_disputed, requires_review, created_at, updated_at, claimed_at,
    started_at, completed_at, confirmed_at, canceled_at, payment_confirmed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.Version, &o.ClientID, &o.ClientName, &o.ClientPhone, &o.MasterID, &o.DispatcherID,
		&o.AssignedDispatcherID, &o.ServiceType, &o.Urgency, &o.ProblemDescription, &o.Area, &o.FullAddress,
		&o.PreferredAt, &o.DispatcherNote, &o.PricingType, &o.InitialPrice, &o.CalloutFee, &o.FinalPrice,
		&o.PriceChangeReason, &o.WorkPerformed, &o.PaymentMethod, &o.PaymentProofURL, &o.CancelReason,
		&o.RefusalReason, &o.Status, &o.IsDisputed, &o.RequiresReview, &o.CreatedAt, &o.UpdatedAt, &o.ClaimedAt,
		&o.StartedAt, &o.CompletedAt, &o.ConfirmedAt, &o.CanceledAt, &o.PaymentConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	var result []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *orderRepository) Create(ctx context.Context, o *model.Order) (*model.Order, error) {
	const query = `INSERT INTO orders (
            id, version, client_id, client_name, client_phone, dispatcher_id, assigned_dispatcher_id,
            service_type, urgency, problem_description, area, full_address, preferred_at, dispatcher_note,
            pricing_type, initial_price, callout_fee, status, created_at, updated_at
        ) VALUES ($1, 1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)`

	_, err := r.storage.querier(ctx).Exec(ctx, query,
		o.ID, o.ClientID, o.ClientName, o.ClientPhone, o.DispatcherID, o.AssignedDispatcherID,
		o.ServiceType, o.Urgency, o.ProblemDescription, o.Area, o.FullAddress, o.PreferredAt, o.DispatcherNote,
		o.PricingType, o.InitialPrice, o.CalloutFee, o.Status, o.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	created := o.Clone()
	created.Version = 1
	created.UpdatedAt = o.CreatedAt
	return created, nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	o, err := scanOrder(r.storage.querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return o, nil
}

func (r *orderRepository) CompareAndSwap(ctx context.Context, prev, next *model.Order) (*model.Order, error) {
	const query = `UPDATE orders SET
            version = version + 1,
            master_id = $4,
            assigned_dispatcher_id = $5,
            status = $6,
            is_disputed = $7,
            requires_review = $8,
            final_price = $9,
            price_change_reason = $10,
            work_performed = $11,
            payment_method = $12,
            payment_proof_url = $13,
            cancel_reason = $14,
            refusal_reason = $15,
            updated_at = $16,
            claimed_at = $17,
            started_at = $18,
            completed_at = $19,
            confirmed_at = $20,
            canceled_at = $21,
            payment_confirmed_at = $22
        WHERE id=$1 AND version=$2 AND status=$3`

	tag, err := r.storage.querier(ctx).Exec(ctx, query,
		prev.ID, prev.Version, prev.Status,
		next.MasterID, next.AssignedDispatcherID, next.Status, next.IsDisputed, next.RequiresReview,
		next.FinalPrice, next.PriceChangeReason, next.WorkPerformed, next.PaymentMethod, next.PaymentProofURL,
		next.CancelReason, next.RefusalReason, next.UpdatedAt, next.ClaimedAt, next.StartedAt,
		next.CompletedAt, next.ConfirmedAt, next.CanceledAt, next.PaymentConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domainErrors.ErrConflict
	}
	stored := next.Clone()
	stored.Version = prev.Version + 1
	return stored, nil
}

func (r *orderRepository) ClaimUnheld(ctx context.Context, next *model.Order) (*model.Order, error) {
	const query = `UPDATE orders SET
            version = version + 1,
            master_id = $2,
            status = $3,
            claimed_at = $4,
            started_at = NULL,
            canceled_at = NULL,
            cancel_reason = '',
            refusal_reason = '',
            updated_at = $4
        WHERE id=$1 AND status IN ('placed', 'reopened') AND master_id IS NULL
        RETURNING version`

	var version int64
	err := r.storage.querier(ctx).QueryRow(ctx, query, next.ID, next.MasterID, model.OrderStatusClaimed, next.ClaimedAt).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrConflict
		}
		return nil, err
	}
	stored := next.Clone()
	stored.Version = version
	return stored, nil
}

func (r *orderRepository) WorkerLoad(ctx context.Context, workerID string, now time.Time) (model.WorkerLoad, error) {
	const query = `SELECT
            COUNT(*) FILTER (WHERE status IN ('claimed', 'started')),
            COUNT(*) FILTER (WHERE status = 'completed'),
            MIN(preferred_at) FILTER (WHERE status IN ('claimed', 'started') AND urgency = 'planned' AND preferred_at >= $2)
        FROM orders WHERE master_id=$1`

	var load model.WorkerLoad
	err := r.storage.querier(ctx).QueryRow(ctx, query, workerID, now).Scan(&load.Active, &load.PendingConfirmation, &load.NextPlannedAt)
	if err != nil {
		return model.WorkerLoad{}, fmt.Errorf("worker load: %w", err)
	}
	return load, nil
}

func (r *orderRepository) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + `
        FROM orders
        WHERE status='placed' AND master_id IS NULL AND created_at < $1
        ORDER BY created_at
        LIMIT $2`
	rows, err := r.storage.querier(ctx).Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}
