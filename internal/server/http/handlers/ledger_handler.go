package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/server/http/dto"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// LedgerHandler manages worker ledgers.
type LedgerHandler struct {
	facade LedgerFacade
}

// NewLedgerHandler constructs LedgerHandler.
func NewLedgerHandler(facade LedgerFacade) *LedgerHandler {
	return &LedgerHandler{facade: facade}
}

// Open handles POST /api/ledgers.
func (h *LedgerHandler) Open(c *gin.Context) {
	var req dto.OpenLedgerRequest
	if !bindJSON(c, &req, false) {
		return
	}
	ledger, err := h.facade.OpenLedger(c.Request.Context(), CurrentActor(c), usecase.LedgerOpening{
		WorkerID:         req.WorkerID,
		MaxActiveJobs:    req.MaxActiveJobs,
		BalanceThreshold: req.BalanceThreshold.Value,
		InitialBalance:   req.InitialBalance.Value,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewLedgerResponse(ledger))
}

// Summary handles GET /api/ledgers/:workerID.
func (h *LedgerHandler) Summary(c *gin.Context) {
	h.respond(c)(h.facade.LedgerSummary(c.Request.Context(), CurrentActor(c), c.Param("workerID")))
}

// History handles GET /api/ledgers/:workerID/transactions.
func (h *LedgerHandler) History(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	items, err := h.facade.LedgerHistory(c.Request.Context(), CurrentActor(c), c.Param("workerID"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTransactionList(items))
}

// Payment handles POST /api/ledgers/:workerID/payments.
func (h *LedgerHandler) Payment(c *gin.Context) {
	var req dto.PaymentRequest
	if !bindJSON(c, &req, false) {
		return
	}
	h.respond(c)(h.facade.RecordPayment(c.Request.Context(), CurrentActor(c), c.Param("workerID"), usecase.CommissionPayment{
		Amount: req.Amount.Value,
		Source: model.PaymentSource(req.Source),
		Note:   req.Note,
	}))
}

// Adjust handles POST /api/ledgers/:workerID/adjustments.
func (h *LedgerHandler) Adjust(c *gin.Context) {
	var req dto.AdjustmentRequest
	if !bindJSON(c, &req, false) {
		return
	}
	h.respond(c)(h.facade.AdjustBalance(c.Request.Context(), CurrentActor(c), c.Param("workerID"), usecase.Adjustment{
		Amount:    req.Amount.Value,
		Deduction: req.Deduction,
		Note:      req.Note,
	}))
}

// Unblock handles POST /api/ledgers/:workerID/unblock.
func (h *LedgerHandler) Unblock(c *gin.Context) {
	h.respond(c)(h.facade.ClearBlock(c.Request.Context(), CurrentActor(c), c.Param("workerID")))
}

func (h *LedgerHandler) respond(c *gin.Context) func(*model.WorkerLedger, error) {
	return func(ledger *model.WorkerLedger, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewLedgerResponse(ledger))
	}
}
