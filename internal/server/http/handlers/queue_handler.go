package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/dispatchdesk/internal/server/http/dto"
	"github.com/polkiloo/dispatchdesk/internal/usecase"
)

// QueueHandler serves the triage queue and stats.
type QueueHandler struct {
	facade QueueFacade
}

// NewQueueHandler constructs QueueHandler.
func NewQueueHandler(facade QueueFacade) *QueueHandler {
	return &QueueHandler{facade: facade}
}

// List handles GET /api/orders.
func (h *QueueHandler) List(c *gin.Context) {
	var q dto.QueueQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	page, err := h.facade.QueuePage(c.Request.Context(), CurrentActor(c), usecase.QueueRequest{
		View:   q.View,
		Filter: q.Filter(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewQueuePageResponse(page))
}

// Stats handles GET /api/stats.
func (h *QueueHandler) Stats(c *gin.Context) {
	var q dto.StatsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	from, to, err := q.Range()
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "from and to must be RFC 3339 timestamps", nil)
		return
	}
	summary, err := h.facade.Stats(c.Request.Context(), CurrentActor(c), usecase.StatsRequest{From: from, To: to})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStatsResponse(summary))
}
