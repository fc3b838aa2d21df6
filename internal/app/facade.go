package app

import (
	"context"
	"fmt"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/lifecycle"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/pkg/auth"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// HealthChecker reports whether the store can serve requests.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DispatchFacade is the single entry point of transports and background jobs.
type DispatchFacade struct {
	tokens    auth.Strategy
	claims    *usecase.ClaimResolver
	workflow  *usecase.Workflow
	queue     *usecase.QueueUseCase
	ledger    *usecase.LedgerUseCase
	payouts   *usecase.PayoutUseCase
	reference *usecase.ReferenceCache
	health    HealthChecker
}

// UseCases groups the use cases the facade delegates to.
type UseCases struct {
	Claims    *usecase.ClaimResolver
	Workflow  *usecase.Workflow
	Queue     *usecase.QueueUseCase
	Ledger    *usecase.LedgerUseCase
	Payouts   *usecase.PayoutUseCase
	Reference *usecase.ReferenceCache
}

func NewDispatchFacade(tokens auth.Strategy, uc UseCases, health HealthChecker) *DispatchFacade {
	return &DispatchFacade{
		tokens:    tokens,
		claims:    uc.Claims,
		workflow:  uc.Workflow,
		queue:     uc.Queue,
		ledger:    uc.Ledger,
		payouts:   uc.Payouts,
		reference: uc.Reference,
		health:    health,
	}
}

// ResolveActor validates the bearer token and refreshes the actor's flags from the directory.
func (f *DispatchFacade) ResolveActor(ctx context.Context, token string) (model.Actor, error) {
	actor, err := f.tokens.ResolveActor(token)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: %v", domainErrors.ErrUnauthenticated, err)
	}
	return f.claims.Refresh(ctx, actor)
}

func (f *DispatchFacade) Health(ctx context.Context) error {
	return f.health.HealthCheck(ctx)
}

func (f *DispatchFacade) CreateOrder(ctx context.Context, actor model.Actor, in usecase.NewOrder) (*model.Order, error) {
	return f.workflow.CreateOrder(ctx, actor, in)
}

func (f *DispatchFacade) GetOrder(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	return f.workflow.GetOrder(ctx, actor, orderID)
}

func (f *DispatchFacade) AuditTrail(ctx context.Context, actor model.Actor, orderID string) ([]model.AuditEntry, error) {
	return f.workflow.AuditTrail(ctx, actor, orderID)
}

func (f *DispatchFacade) CheckEligibility(ctx context.Context, actor model.Actor, orderID string) (*usecase.Eligibility, error) {
	return f.workflow.CheckEligibility(ctx, actor, orderID)
}

func (f *DispatchFacade) ClaimOrder(ctx context.Context, actor model.Actor, orderID string, opts usecase.ClaimOptions) (*model.Order, error) {
	return f.workflow.ClaimOrder(ctx, actor, orderID, opts)
}

func (f *DispatchFacade) ForceAssignMaster(ctx context.Context, actor model.Actor, orderID, workerID string) (*model.Order, error) {
	return f.workflow.ForceAssignMaster(ctx, actor, orderID, workerID)
}

func (f *DispatchFacade) StartJob(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	return f.workflow.StartJob(ctx, actor, orderID)
}

func (f *DispatchFacade) CompleteJob(ctx context.Context, actor model.Actor, orderID string, in lifecycle.Completion) (*model.Order, error) {
	return f.workflow.CompleteJob(ctx, actor, orderID, in)
}

func (f *DispatchFacade) RefuseJob(ctx context.Context, actor model.Actor, orderID, reason string) (*model.Order, error) {
	return f.workflow.RefuseJob(ctx, actor, orderID, reason)
}

func (f *DispatchFacade) ConfirmPayment(ctx context.Context, actor model.Actor, orderID string, p lifecycle.Payment) (*model.Order, error) {
	return f.workflow.ConfirmPayment(ctx, actor, orderID, p)
}

func (f *DispatchFacade) CancelByClient(ctx context.Context, actor model.Actor, orderID, reason string) (*model.Order, error) {
	return f.workflow.CancelByClient(ctx, actor, orderID, reason)
}

func (f *DispatchFacade) ReopenOrder(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	return f.workflow.ReopenOrder(ctx, actor, orderID)
}

func (f *DispatchFacade) UnassignMaster(ctx context.Context, actor model.Actor, orderID, note string) (*model.Order, error) {
	return f.workflow.UnassignMaster(ctx, actor, orderID, note)
}

func (f *DispatchFacade) TransferToDispatcher(ctx context.Context, actor model.Actor, orderID, dispatcherID string) (*model.Order, error) {
	return f.workflow.TransferToDispatcher(ctx, actor, orderID, dispatcherID)
}

func (f *DispatchFacade) SetDispute(ctx context.Context, actor model.Actor, orderID string, disputed bool, note string) (*model.Order, error) {
	return f.workflow.SetDispute(ctx, actor, orderID, disputed, note)
}

func (f *DispatchFacade) ExpireStaleOrders(ctx context.Context, actor model.Actor, limit int) ([]model.Order, error) {
	return f.workflow.RunExpiry(ctx, actor, limit)
}

// ExpirableOrders and ExpireOrder serve the expiry sweeper.
func (f *DispatchFacade) ExpirableOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return f.workflow.ExpirableOrders(ctx, limit)
}

func (f *DispatchFacade) ExpireOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return f.workflow.ExpireOrder(ctx, orderID)
}

func (f *DispatchFacade) QueuePage(ctx context.Context, actor model.Actor, req usecase.QueueRequest) (*model.QueuePage, error) {
	return f.queue.Page(ctx, actor, req)
}

func (f *DispatchFacade) Stats(ctx context.Context, actor model.Actor, req usecase.StatsRequest) (*model.StatsSummary, error) {
	return f.queue.Stats(ctx, actor, req)
}

func (f *DispatchFacade) OpenLedger(ctx context.Context, actor model.Actor, in usecase.LedgerOpening) (*model.WorkerLedger, error) {
	return f.ledger.OpenLedger(ctx, actor, in)
}

func (f *DispatchFacade) LedgerSummary(ctx context.Context, actor model.Actor, workerID string) (*model.WorkerLedger, error) {
	return f.ledger.Summary(ctx, actor, workerID)
}

func (f *DispatchFacade) LedgerHistory(ctx context.Context, actor model.Actor, workerID string, limit int) ([]model.BalanceTransaction, error) {
	return f.ledger.History(ctx, actor, workerID, limit)
}

func (f *DispatchFacade) RecordPayment(ctx context.Context, actor model.Actor, workerID string, in usecase.CommissionPayment) (*model.WorkerLedger, error) {
	return f.ledger.RecordPayment(ctx, actor, workerID, in)
}

func (f *DispatchFacade) AdjustBalance(ctx context.Context, actor model.Actor, workerID string, in usecase.Adjustment) (*model.WorkerLedger, error) {
	return f.ledger.AdjustBalance(ctx, actor, workerID, in)
}

func (f *DispatchFacade) ClearBlock(ctx context.Context, actor model.Actor, workerID string) (*model.WorkerLedger, error) {
	return f.ledger.ClearBlock(ctx, actor, workerID)
}

func (f *DispatchFacade) RequestPayout(ctx context.Context, actor model.Actor, amount *float64) (*model.PayoutRequest, error) {
	return f.payouts.Request(ctx, actor, amount)
}

func (f *DispatchFacade) ProcessPayout(ctx context.Context, actor model.Actor, id string, d usecase.PayoutDecision) (*model.PayoutRequest, error) {
	return f.payouts.Process(ctx, actor, id, d)
}

func (f *DispatchFacade) MarkPayoutPaid(ctx context.Context, actor model.Actor, id string) (*model.PayoutRequest, error) {
	return f.payouts.MarkPaid(ctx, actor, id)
}

func (f *DispatchFacade) Payouts(ctx context.Context, actor model.Actor, status model.PayoutStatus, limit int) ([]model.PayoutRequest, error) {
	return f.payouts.List(ctx, actor, status, limit)
}

func (f *DispatchFacade) ServiceTypes(ctx context.Context) ([]model.ServiceType, error) {
	return f.reference.ServiceTypes(ctx)
}

func (f *DispatchFacade) Districts(ctx context.Context) ([]model.District, error) {
	return f.reference.Districts(ctx)
}

func (f *DispatchFacade) Dispatchers(ctx context.Context) ([]model.Profile, error) {
	return f.reference.Dispatchers(ctx)
}
