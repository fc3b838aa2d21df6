package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
	"github.com/polkiloo/dispatchdesk/internal/queue"
)

type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *whereBuilder) clone() *whereBuilder {
	return &whereBuilder{
		conds: append([]string(nil), b.conds...),
		args:  append([]any(nil), b.args...),
	}
}

func (b *whereBuilder) String() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func (b *whereBuilder) scope(scope model.QueueScope) {
	switch scope.Kind {
	case model.ScopeAdmin:
	case model.ScopeDispatcher:
		id := b.arg(scope.ActorID)
		b.add("(dispatcher_id = " + id + " OR assigned_dispatcher_id = " + id + ")")
	case model.ScopePool:
		b.add("status IN ('placed', 'reopened') AND master_id IS NULL")
	case model.ScopeWorker:
		b.add("master_id = " + b.arg(scope.ActorID))
	default:
		b.add("FALSE")
	}
}

func (b *whereBuilder) filters(f model.QueueFilter) {
	if f.Urgency != "" {
		b.add("urgency = " + b.arg(f.Urgency))
	}
	if f.ServiceType != "" {
		b.add("service_type = " + b.arg(f.ServiceType))
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return
	}
	escaped := escapeLike(q)
	suffix := b.arg("%" + escaped)
	like := b.arg("%" + escaped + "%")
	parts := []string{
		"LOWER(id) LIKE " + suffix,
		"LOWER(client_name) LIKE " + like,
		"LOWER(full_address) LIKE " + like,
		"LOWER(area) LIKE " + like,
		"LOWER(problem_description) LIKE " + like,
	}
	if digits := queue.Digits(q); digits != "" {
		parts = append(parts, `regexp_replace(client_phone, '\D', '', 'g') LIKE `+b.arg("%"+digits+"%"))
	}
	b.add("(" + strings.Join(parts, " OR ") + ")")
}

func (b *whereBuilder) group(g model.StatusGroup) {
	statuses := g.Statuses()
	if len(statuses) == 0 {
		return
	}
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	b.add("status = ANY(" + b.arg(names) + ")")
}

func (b *whereBuilder) attention(q repository.QueueQuery) {
	placed := b.arg(q.Now.Add(-q.Windows.StalePlaced))
	claimed := b.arg(q.Now.Add(-q.Windows.StaleClaimed))
	b.add(`status <> 'canceled_by_client' AND (
            is_disputed
            OR status IN ('completed', 'canceled_by_master')
            OR (status = 'placed' AND master_id IS NULL AND created_at < ` + placed + `)
            OR (status = 'claimed' AND COALESCE(claimed_at, created_at) < ` + claimed + `)
        )`)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sortClause(s model.SortOrder) string {
	if s == model.SortOldest {
		return " ORDER BY created_at ASC, id ASC"
	}
	return " ORDER BY created_at DESC, id DESC"
}

func (r *orderRepository) QueryQueue(ctx context.Context, q repository.QueueQuery) (*model.QueuePage, error) {
	f := queue.Normalize(q.Filter)
	page := &model.QueuePage{Page: f.Page, PageSize: f.PageSize}

	scoped := &whereBuilder{}
	scoped.scope(q.Scope)
	attention := scoped.clone()
	attention.attention(q)
	list := scoped.clone()
	list.filters(f)
	list.group(f.Group)
	matched := list.clone()

	err := r.storage.readSnapshot(ctx, func(db querier) error {
		limit := list.arg(f.PageSize)
		offset := list.arg(f.Offset())
		rows, err := db.Query(ctx, `SELECT `+orderColumns+` FROM orders`+list.String()+sortClause(f.Sort)+` LIMIT `+limit+` OFFSET `+offset, list.args...)
		if err != nil {
			return fmt.Errorf("queue page: %w", err)
		}
		if page.Orders, err = collectOrders(rows); err != nil {
			return fmt.Errorf("queue page: %w", err)
		}

		// Tab counts cover the whole scope; filters only narrow the matched total.
		if page.Counts, err = countGroups(ctx, db, scoped); err != nil {
			return err
		}
		page.Matched = page.Counts.Of(f.Group)
		if hasFilters(f) {
			if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+matched.String(), matched.args...).Scan(&page.Matched); err != nil {
				return fmt.Errorf("queue matched: %w", err)
			}
		}

		rows, err = db.Query(ctx, `SELECT `+orderColumns+` FROM orders`+attention.String()+sortClause(model.SortOldest), attention.args...)
		if err != nil {
			return fmt.Errorf("queue attention: %w", err)
		}
		if page.Attention, err = collectOrders(rows); err != nil {
			return fmt.Errorf("queue attention: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func hasFilters(f model.QueueFilter) bool {
	return f.Urgency != "" || f.ServiceType != "" || strings.TrimSpace(f.Search) != ""
}

func countGroups(ctx context.Context, db querier, where *whereBuilder) (model.GroupCounts, error) {
	var counts model.GroupCounts
	rows, err := db.Query(ctx, `SELECT status, COUNT(*) FROM orders`+where.String()+` GROUP BY status`, where.args...)
	if err != nil {
		return counts, fmt.Errorf("queue counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status model.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("queue counts: %w", err)
		}
		queue.CountInto(&counts, status, n)
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("queue counts: %w", err)
	}
	return counts, nil
}

func (r *orderRepository) ListScope(ctx context.Context, scope model.QueueScope) ([]model.Order, error) {
	where := &whereBuilder{}
	where.scope(scope)
	rows, err := r.storage.querier(ctx).Query(ctx, `SELECT `+orderColumns+` FROM orders`+where.String()+sortClause(model.SortNewest), where.args...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) Stats(ctx context.Context, q repository.StatsQuery) (*model.StatsSummary, error) {
	where := &whereBuilder{}
	where.scope(q.Scope)
	if q.From != nil {
		where.add("created_at >= " + where.arg(*q.From))
	}
	if q.To != nil {
		where.add("created_at < " + where.arg(*q.To))
	}
	attention := where.clone()
	attention.attention(repository.QueueQuery{Windows: q.Windows, Now: q.Now})

	summary := &model.StatsSummary{ByStatus: make(map[model.OrderStatus]int), From: q.From, To: q.To}
	err := r.storage.readSnapshot(ctx, func(db querier) error {
		rows, err := db.Query(ctx, `SELECT status, COUNT(*),
                COUNT(*) FILTER (WHERE is_disputed),
                COALESCE(SUM(final_price) FILTER (WHERE status = 'confirmed'), 0),
                COUNT(final_price) FILTER (WHERE status = 'confirmed')
            FROM orders`+where.String()+` GROUP BY status`, where.args...)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		confirmed, err := scanStats(rows, summary)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		summary.ConfirmedRevenue = model.RoundMoney(summary.ConfirmedRevenue)
		if confirmed > 0 {
			summary.AverageCheck = model.RoundMoney(summary.ConfirmedRevenue / float64(confirmed))
		}

		err = db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+attention.String(), attention.args...).Scan(&summary.AttentionCount)
		if err != nil {
			return fmt.Errorf("stats attention: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func scanStats(rows pgx.Rows, summary *model.StatsSummary) (int, error) {
	defer rows.Close()

	confirmed := 0
	for rows.Next() {
		var (
			status   model.OrderStatus
			n        int
			disputed int
			revenue  float64
			priced   int
		)
		if err := rows.Scan(&status, &n, &disputed, &revenue, &priced); err != nil {
			return 0, err
		}
		summary.ByStatus[status] = n
		queue.CountInto(&summary.Counts, status, n)
		summary.DisputedCount += disputed
		summary.ConfirmedRevenue += revenue
		confirmed += priced
	}
	return confirmed, rows.Err()
}
