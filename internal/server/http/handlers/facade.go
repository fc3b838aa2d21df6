package handlers

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/polkiloo/dispatchdesk/internal/domain/lifecycle"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// ActorResolver turns a bearer token into the acting identity.
type ActorResolver interface {
	ResolveActor(ctx context.Context, token string) (model.Actor, error)
}

// OrderFacade covers the order lifecycle operations exposed via HTTP.
type OrderFacade interface {
	CreateOrder(ctx context.Context, actor model.Actor, in usecase.NewOrder) (*model.Order, error)
	GetOrder(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error)
	AuditTrail(ctx context.Context, actor model.Actor, orderID string) ([]model.AuditEntry, error)
	CheckEligibility(ctx context.Context, actor model.Actor, orderID string) (*usecase.Eligibility, error)
	ClaimOrder(ctx context.Context, actor model.Actor, orderID string, opts usecase.ClaimOptions) (*model.Order, error)
	ForceAssignMaster(ctx context.Context, actor model.Actor, orderID, workerID string) (*model.Order, error)
	StartJob(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error)
	CompleteJob(ctx context.Context, actor model.Actor, orderID string, in lifecycle.Completion) (*model.Order, error)
	RefuseJob(ctx context.Context, actor model.Actor, orderID, reason string) (*model.Order, error)
	ConfirmPayment(ctx context.Context, actor model.Actor, orderID string, p lifecycle.Payment) (*model.Order, error)
	CancelByClient(ctx context.Context, actor model.Actor, orderID, reason string) (*model.Order, error)
	ReopenOrder(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error)
	UnassignMaster(ctx context.Context, actor model.Actor, orderID, note string) (*model.Order, error)
	TransferToDispatcher(ctx context.Context, actor model.Actor, orderID, dispatcherID string) (*model.Order, error)
	SetDispute(ctx context.Context, actor model.Actor, orderID string, disputed bool, note string) (*model.Order, error)
	ExpireStaleOrders(ctx context.Context, actor model.Actor, limit int) ([]model.Order, error)
}

// QueueFacade serves triage pages and stats.
type QueueFacade interface {
	QueuePage(ctx context.Context, actor model.Actor, req usecase.QueueRequest) (*model.QueuePage, error)
	Stats(ctx context.Context, actor model.Actor, req usecase.StatsRequest) (*model.StatsSummary, error)
}

// LedgerFacade provides worker ledger operations.
type LedgerFacade interface {
	OpenLedger(ctx context.Context, actor model.Actor, in usecase.LedgerOpening) (*model.WorkerLedger, error)
	LedgerSummary(ctx context.Context, actor model.Actor, workerID string) (*model.WorkerLedger, error)
	LedgerHistory(ctx context.Context, actor model.Actor, workerID string, limit int) ([]model.BalanceTransaction, error)
	RecordPayment(ctx context.Context, actor model.Actor, workerID string, in usecase.CommissionPayment) (*model.WorkerLedger, error)
	AdjustBalance(ctx context.Context, actor model.Actor, workerID string, in usecase.Adjustment) (*model.WorkerLedger, error)
	ClearBlock(ctx context.Context, actor model.Actor, workerID string) (*model.WorkerLedger, error)
}

// PayoutFacade runs withdrawal requests.
type PayoutFacade interface {
	RequestPayout(ctx context.Context, actor model.Actor, amount *float64) (*model.PayoutRequest, error)
	ProcessPayout(ctx context.Context, actor model.Actor, id string, d usecase.PayoutDecision) (*model.PayoutRequest, error)
	MarkPayoutPaid(ctx context.Context, actor model.Actor, id string) (*model.PayoutRequest, error)
	Payouts(ctx context.Context, actor model.Actor, status model.PayoutStatus, limit int) ([]model.PayoutRequest, error)
}

// ReferenceFacade serves cached reference data.
type ReferenceFacade interface {
	ServiceTypes(ctx context.Context) ([]model.ServiceType, error)
	Districts(ctx context.Context) ([]model.District, error)
	Dispatchers(ctx context.Context) ([]model.Profile, error)
}

// HealthFacade reports store health.
type HealthFacade interface {
	Health(ctx context.Context) error
}

// DispatchFacade aggregates the full set of operations used across handlers.
type DispatchFacade interface {
	ActorResolver
	OrderFacade
	QueueFacade
	LedgerFacade
	PayoutFacade
	ReferenceFacade
	HealthFacade
}

// LiveFeed streams notifications to an upgraded connection until it closes.
type LiveFeed interface {
	ServeConn(ctx context.Context, conn *websocket.Conn, actor model.Actor)
}
