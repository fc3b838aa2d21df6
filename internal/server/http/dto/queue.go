package dto

import (
	"time"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// QueueQuery binds the query string of GET /api/orders.
type QueueQuery struct {
	View        string `form:"view"`
	Group       string `form:"group"`
	Search      string `form:"search"`
	Urgency     string `form:"urgency"`
	ServiceType string `form:"service_type"`
	Sort        string `form:"sort"`
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
}

// Filter converts the query to a domain filter.
func (q QueueQuery) Filter() model.QueueFilter {
	return model.QueueFilter{
		Group:       model.StatusGroup(q.Group),
		Search:      q.Search,
		Urgency:     model.Urgency(q.Urgency),
		ServiceType: q.ServiceType,
		Sort:        model.SortOrder(q.Sort),
		Page:        q.Page,
		PageSize:    q.PageSize,
	}
}

// CountsResponse carries per-group counts.
type CountsResponse struct {
	Active    int `json:"active"`
	Payment   int `json:"payment"`
	Confirmed int `json:"confirmed"`
	Canceled  int `json:"canceled"`
	Expired   int `json:"expired"`
	Total     int `json:"total"`
}

func newCounts(c model.GroupCounts) CountsResponse {
	return CountsResponse{
		Active:    c.Active,
		Payment:   c.Payment,
		Confirmed: c.Confirmed,
		Canceled:  c.Canceled,
		Expired:   c.Expired,
		Total:     c.Total,
	}
}

// QueuePageResponse is the wire form of a queue page.
type QueuePageResponse struct {
	Orders    []OrderResponse `json:"orders"`
	Matched   int             `json:"matched"`
	Counts    CountsResponse  `json:"counts"`
	Attention []OrderResponse `json:"attention"`
	Page      int             `json:"page"`
	PageSize  int             `json:"page_size"`
}

// NewQueuePageResponse converts a queue page.
func NewQueuePageResponse(p *model.QueuePage) QueuePageResponse {
	return QueuePageResponse{
		Orders:    NewOrderList(p.Orders),
		Matched:   p.Matched,
		Counts:    newCounts(p.Counts),
		Attention: NewOrderList(p.Attention),
		Page:      p.Page,
		PageSize:  p.PageSize,
	}
}

// StatsQuery binds the query string of GET /api/stats. Bounds are RFC 3339 timestamps.
type StatsQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// Range parses the optional bounds.
func (q StatsQuery) Range() (from, to *time.Time, err error) {
	if from, err = parseBound(q.From); err != nil {
		return nil, nil, err
	}
	if to, err = parseBound(q.To); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseBound(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// StatsResponse is the wire form of a stats summary.
type StatsResponse struct {
	Counts           CountsResponse `json:"counts"`
	ByStatus         map[string]int `json:"by_status"`
	ConfirmedRevenue float64        `json:"confirmed_revenue"`
	AverageCheck     float64        `json:"average_check"`
	AttentionCount   int            `json:"attention_count"`
	DisputedCount    int            `json:"disputed_count"`
	From             *time.Time     `json:"from,omitempty"`
	To               *time.Time     `json:"to,omitempty"`
}

// NewStatsResponse converts a stats summary.
func NewStatsResponse(s *model.StatsSummary) StatsResponse {
	byStatus := make(map[string]int, len(s.ByStatus))
	for status, n := range s.ByStatus {
		byStatus[string(status)] = n
	}
	return StatsResponse{
		Counts:           newCounts(s.Counts),
		ByStatus:         byStatus,
		ConfirmedRevenue: s.ConfirmedRevenue,
		AverageCheck:     s.AverageCheck,
		AttentionCount:   s.AttentionCount,
		DisputedCount:    s.DisputedCount,
		From:             s.From,
		To:               s.To,
	}
}
