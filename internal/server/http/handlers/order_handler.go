package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/dispatchdesk/internal/domain/lifecycle"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/server/http/dto"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// OrderHandler manages order lifecycle endpoints.
type OrderHandler struct {
	facade OrderFacade
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(facade OrderFacade) *OrderHandler {
	return &OrderHandler{facade: facade}
}

// Create handles POST /api/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !bindJSON(c, &req, false) {
		return
	}
	order, err := h.facade.CreateOrder(c.Request.Context(), CurrentActor(c), usecase.NewOrder{
		ClientID:           req.ClientID,
		ClientName:         req.ClientName,
		ClientPhone:        req.ClientPhone,
		ServiceType:        req.ServiceType,
		Urgency:            model.Urgency(req.Urgency),
		ProblemDescription: req.ProblemDescription,
		Area:               req.Area,
		FullAddress:        req.FullAddress,
		PreferredAt:        req.PreferredAt,
		DispatcherNote:     req.DispatcherNote,
		PricingType:        model.PricingType(req.PricingType),
		InitialPrice:       req.InitialPrice.Value,
		CalloutFee:         req.CalloutFee.Value,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewOrderResponse(*order))
}

// Get handles GET /api/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	h.respond(c)(h.facade.GetOrder(c.Request.Context(), CurrentActor(c), c.Param("id")))
}

// Audit handles GET /api/orders/:id/audit.
func (h *OrderHandler) Audit(c *gin.Context) {
	entries, err := h.facade.AuditTrail(c.Request.Context(), CurrentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAuditTrail(entries))
}

// Eligibility handles GET /api/orders/:id/eligibility.
func (h *OrderHandler) Eligibility(c *gin.Context) {
	result, err := h.facade.CheckEligibility(c.Request.Context(), CurrentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Claim handles POST /api/orders/:id/claim.
func (h *OrderHandler) Claim(c *gin.Context) {
	var req dto.ClaimRequest
	if !bindJSON(c, &req, true) {
		return
	}
	h.respond(c)(h.facade.ClaimOrder(c.Request.Context(), CurrentActor(c), c.Param("id"), usecase.ClaimOptions{
		AcknowledgeWarnings: req.AcknowledgeWarnings,
	}))
}

// Assign handles POST /api/orders/:id/assign.
func (h *OrderHandler) Assign(c *gin.Context) {
	var req dto.AssignRequest
	if !bindJSON(c, &req, false) {
		return
	}
	h.respond(c)(h.facade.ForceAssignMaster(c.Request.Context(), CurrentActor(c), c.Param("id"), req.MasterID))
}

// Start handles POST /api/orders/:id/start.
func (h *OrderHandler) Start(c *gin.Context) {
	h.respond(c)(h.facade.StartJob(c.Request.Context(), CurrentActor(c), c.Param("id")))
}

// Complete handles POST /api/orders/:id/complete.
func (h *OrderHandler) Complete(c *gin.Context) {
	var req dto.CompleteRequest
	if !bindJSON(c, &req, false) {
		return
	}
	h.respond(c)(h.facade.CompleteJob(c.Request.Context(), CurrentActor(c), c.Param("id"), lifecycle.Completion{
		FinalPrice:        req.FinalPrice.Value,
		WorkPerformed:     req.WorkPerformed,
		PriceChangeReason: req.PriceChangeReason,
	}))
}

// Refuse handles POST /api/orders/:id/refuse.
func (h *OrderHandler) Refuse(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindJSON(c, &req, true) {
		return
	}
	h.respond(c)(h.facade.RefuseJob(c.Request.Context(), CurrentActor(c), c.Param("id"), req.Reason))
}

// Confirm handles POST /api/orders/:id/confirm.
func (h *OrderHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmRequest
	if !bindJSON(c, &req, true) {
		return
	}
	h.respond(c)(h.facade.ConfirmPayment(c.Request.Context(), CurrentActor(c), c.Param("id"), lifecycle.Payment{
		Method:   model.PaymentMethod(req.PaymentMethod),
		ProofURL: req.PaymentProofURL,
	}))
}

// Cancel handles POST /api/orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindJSON(c, &req, true) {
		return
	}
	h.respond(c)(h.facade.CancelByClient(c.Request.Context(), CurrentActor(c), c.Param("id"), req.Reason))
}

// Reopen handles POST /api/orders/:id/reopen.
func (h *OrderHandler) Reopen(c *gin.Context) {
	h.respond(c)(h.facade.ReopenOrder(c.Request.Context(), CurrentActor(c), c.Param("id")))
}

// Unassign handles POST /api/orders/:id/unassign.
func (h *OrderHandler) Unassign(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindJSON(c, &req, true) {
		return
	}
	h.respond(c)(h.facade.UnassignMaster(c.Request.Context(), CurrentActor(c), c.Param("id"), req.Reason))
}

// Transfer handles POST /api/orders/:id/transfer.
func (h *OrderHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !bindJSON(c, &req, false) {
		return
	}
	h.respond(c)(h.facade.TransferToDispatcher(c.Request.Context(), CurrentActor(c), c.Param("id"), req.DispatcherID))
}

// Dispute handles POST /api/orders/:id/dispute.
func (h *OrderHandler) Dispute(c *gin.Context) {
	var req dto.DisputeRequest
	if !bindJSON(c, &req, false) {
		return
	}
	h.respond(c)(h.facade.SetDispute(c.Request.Context(), CurrentActor(c), c.Param("id"), req.Disputed, req.Note))
}

// Expire runs one expiry pass on demand and returns the expired orders.
func (h *OrderHandler) Expire(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	orders, err := h.facade.ExpireStaleOrders(c.Request.Context(), CurrentActor(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderList(orders))
}

// respond writes the order or the error returned by a lifecycle call.
func (h *OrderHandler) respond(c *gin.Context) func(*model.Order, error) {
	return func(order *model.Order, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewOrderResponse(*order))
	}
}
