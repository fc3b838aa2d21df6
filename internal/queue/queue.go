// Package queue aggregates orders for triage: scope, filters, counts and the attention set.
// It is pure and backs both the in-memory store and the consistency fallback of queue reads.
package queue

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// DefaultWindows are the staleness thresholds used when none are configured.
var DefaultWindows = model.AttentionWindows{
	StalePlaced:  15 * time.Minute,
	StaleClaimed: 30 * time.Minute,
}

// InScope reports whether the order is visible in the scope.
func InScope(o *model.Order, scope model.QueueScope) bool {
	switch scope.Kind {
	case model.ScopeAdmin:
		return true
	case model.ScopeDispatcher:
		return o.OwnedBy(scope.ActorID)
	case model.ScopePool:
		return o.MasterID == nil &&
			(o.Status == model.OrderStatusPlaced || o.Status == model.OrderStatusReopened)
	case model.ScopeWorker:
		return o.HeldBy(scope.ActorID)
	}
	return false
}

// Matches applies search, urgency and service type filters. Status group is checked separately
// so counts can be taken over every group.
func Matches(o *model.Order, f model.QueueFilter) bool {
	if f.Urgency != "" && o.Urgency != f.Urgency {
		return false
	}
	if f.ServiceType != "" && o.ServiceType != f.ServiceType {
		return false
	}
	return MatchesSearch(o, f.Search)
}

// MatchesSearch matches the id suffix, client name, phone digits, address and description.
func MatchesSearch(o *model.Order, search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return true
	}
	if strings.HasSuffix(strings.ToLower(o.ID), q) {
		return true
	}
	for _, field := range []string{o.ClientName, o.FullAddress, o.Area, o.ProblemDescription} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	if digits := Digits(q); digits != "" {
		return strings.Contains(Digits(o.ClientPhone), digits)
	}
	return false
}

// Digits strips everything but decimal digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsAttention reports whether the order needs human action at now.
// Client cancellations are closed and never need attention.
func IsAttention(o *model.Order, w model.AttentionWindows, now time.Time) bool {
	switch o.Status {
	case model.OrderStatusCanceledByClient:
		return false
	case model.OrderStatusCompleted, model.OrderStatusCanceledByMaster:
		return true
	}
	if o.IsDisputed {
		return true
	}
	switch o.Status {
	case model.OrderStatusPlaced:
		return o.MasterID == nil && now.Sub(o.CreatedAt) > w.StalePlaced
	case model.OrderStatusClaimed:
		since := o.CreatedAt
		if o.ClaimedAt != nil {
			since = *o.ClaimedAt
		}
		return now.Sub(since) > w.StaleClaimed
	}
	return false
}

// CountInto adds n orders of status s to the per-group counters.
func CountInto(c *model.GroupCounts, s model.OrderStatus, n int) {
	c.Total += n
	switch model.GroupOf(s) {
	case model.GroupActive:
		c.Active += n
	case model.GroupPayment:
		c.Payment += n
	case model.GroupConfirmed:
		c.Confirmed += n
	case model.GroupCanceled:
		c.Canceled += n
	default:
		if s == model.OrderStatusExpired {
			c.Expired += n
		}
	}
}

// Compute derives page, counts and attention from one set of orders.
func Compute(orders []model.Order, scope model.QueueScope, f model.QueueFilter, w model.AttentionWindows, now time.Time) *model.QueuePage {
	f = Normalize(f)
	page := &model.QueuePage{Page: f.Page, PageSize: f.PageSize}

	var matched []model.Order
	for i := range orders {
		o := &orders[i]
		if !InScope(o, scope) {
			continue
		}
		CountInto(&page.Counts, o.Status, 1)
		if IsAttention(o, w, now) {
			page.Attention = append(page.Attention, *o)
		}
		if !Matches(o, f) {
			continue
		}
		if f.Group == model.GroupAll || model.GroupOf(o.Status) == f.Group {
			matched = append(matched, *o)
		}
	}

	SortOrders(matched, f.Sort)
	SortOrders(page.Attention, model.SortOldest)
	page.Matched = len(matched)

	start := f.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	page.Orders = matched[start:end]
	return page
}

// Normalize fills defaults and clamps paging.
func Normalize(f model.QueueFilter) model.QueueFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.Sort != model.SortOldest {
		f.Sort = model.SortNewest
	}
	return f
}

// SortOrders sorts by creation time with the id as tie breaker.
func SortOrders(orders []model.Order, order model.SortOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if order == model.SortOldest {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if order == model.SortOldest {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
}

// Stats summarizes orders of the scope created within [from, to).
func Stats(orders []model.Order, scope model.QueueScope, from, to *time.Time, w model.AttentionWindows, now time.Time) *model.StatsSummary {
	summary := &model.StatsSummary{ByStatus: make(map[model.OrderStatus]int), From: from, To: to}
	confirmed := 0
	for i := range orders {
		o := &orders[i]
		if !InScope(o, scope) {
			continue
		}
		if from != nil && o.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !o.CreatedAt.Before(*to) {
			continue
		}
		CountInto(&summary.Counts, o.Status, 1)
		summary.ByStatus[o.Status]++
		if o.IsDisputed {
			summary.DisputedCount++
		}
		if IsAttention(o, w, now) {
			summary.AttentionCount++
		}
		if o.Status == model.OrderStatusConfirmed && o.FinalPrice != nil {
			summary.ConfirmedRevenue += *o.FinalPrice
			confirmed++
		}
	}
	summary.ConfirmedRevenue = model.RoundMoney(summary.ConfirmedRevenue)
	if confirmed > 0 {
		summary.AverageCheck = model.RoundMoney(summary.ConfirmedRevenue / float64(confirmed))
	}
	return summary
}
