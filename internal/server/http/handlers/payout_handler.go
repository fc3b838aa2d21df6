package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/server/http/dto"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// PayoutHandler manages payout requests.
type PayoutHandler struct {
	facade PayoutFacade
}

// NewPayoutHandler constructs PayoutHandler.
func NewPayoutHandler(facade PayoutFacade) *PayoutHandler {
	return &PayoutHandler{facade: facade}
}

// Request handles POST /api/payouts.
func (h *PayoutHandler) Request(c *gin.Context) {
	var req dto.PayoutRequestBody
	if !bindJSON(c, &req, false) {
		return
	}
	payout, err := h.facade.RequestPayout(c.Request.Context(), CurrentActor(c), req.Amount.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewPayoutResponse(*payout))
}

// List handles GET /api/payouts.
func (h *PayoutHandler) List(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	items, err := h.facade.Payouts(c.Request.Context(), CurrentActor(c), model.PayoutStatus(c.Query("status")), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPayoutList(items))
}

// Decide handles POST /api/payouts/:id/decision.
func (h *PayoutHandler) Decide(c *gin.Context) {
	var req dto.PayoutDecisionRequest
	if !bindJSON(c, &req, false) {
		return
	}
	h.respond(c)(h.facade.ProcessPayout(c.Request.Context(), CurrentActor(c), c.Param("id"), usecase.PayoutDecision{
		Approve: req.Approve,
		Amount:  req.Amount.Value,
		Note:    req.Note,
	}))
}

// Paid handles POST /api/payouts/:id/paid.
func (h *PayoutHandler) Paid(c *gin.Context) {
	h.respond(c)(h.facade.MarkPayoutPaid(c.Request.Context(), CurrentActor(c), c.Param("id")))
}

func (h *PayoutHandler) respond(c *gin.Context) func(*model.PayoutRequest, error) {
	return func(p *model.PayoutRequest, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewPayoutResponse(*p))
	}
}
