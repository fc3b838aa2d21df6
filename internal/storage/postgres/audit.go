package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

func marshalSnapshot(o *model.Order) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func unmarshalSnapshot(raw []byte) (*model.Order, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var o model.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *auditRepository) Append(ctx context.Context, e *model.AuditEntry) error {
	const query = `INSERT INTO order_audit_log (order_id, action, old_snapshot, new_snapshot, performed_by, note, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	oldRaw, err := marshalSnapshot(e.OldSnapshot)
	if err != nil {
		return fmt.Errorf("encode old snapshot: %w", err)
	}
	newRaw, err := marshalSnapshot(e.NewSnapshot)
	if err != nil {
		return fmt.Errorf("encode new snapshot: %w", err)
	}
	_, err = r.storage.querier(ctx).Exec(ctx, query, e.OrderID, e.Action, oldRaw, newRaw, e.PerformedBy, e.Note, e.CreatedAt)
	return err
}

func (r *auditRepository) ListByOrder(ctx context.Context, orderID string) ([]model.AuditEntry, error) {
	const query = `SELECT id, order_id, action, old_snapshot, new_snapshot, performed_by, note, created_at
        FROM order_audit_log WHERE order_id=$1 ORDER BY id`
	rows, err := r.storage.querier(ctx).Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.AuditEntry
	for rows.Next() {
		var (
			e      model.AuditEntry
			oldRaw []byte
			newRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Action, &oldRaw, &newRaw, &e.PerformedBy, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.OldSnapshot, err = unmarshalSnapshot(oldRaw); err != nil {
			return nil, fmt.Errorf("decode old snapshot: %w", err)
		}
		if e.NewSnapshot, err = unmarshalSnapshot(newRaw); err != nil {
			return nil, fmt.Errorf("decode new snapshot: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *directoryRepository) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	const query = `SELECT id, role, display_name, is_verified, is_active FROM profiles WHERE id=$1`
	var p model.Profile
	err := r.storage.querier(ctx).QueryRow(ctx, query, id).Scan(&p.ID, &p.Role, &p.DisplayName, &p.IsVerified, &p.IsActive)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *directoryRepository) ListProfiles(ctx context.Context, role model.Role) ([]model.Profile, error) {
	const query = `SELECT id, role, display_name, is_verified, is_active
        FROM profiles WHERE role=$1 AND is_active ORDER BY display_name`
	rows, err := r.storage.querier(ctx).Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Role, &p.DisplayName, &p.IsVerified, &p.IsActive); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *directoryRepository) ServiceTypes(ctx context.Context) ([]model.ServiceType, error) {
	rows, err := r.storage.querier(ctx).Query(ctx, `SELECT code, title FROM service_types ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.ServiceType
	for rows.Next() {
		var st model.ServiceType
		if err := rows.Scan(&st.Code, &st.Title); err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *directoryRepository) Districts(ctx context.Context) ([]model.District, error) {
	rows, err := r.storage.querier(ctx).Query(ctx, `SELECT code, title FROM districts ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.District
	for rows.Next() {
		var d model.District
		if err := rows.Scan(&d.Code, &d.Title); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
