package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReferenceHandler serves cached reference data and the health probe.
type ReferenceHandler struct {
	facade ReferenceFacade
	health HealthFacade
}

// NewReferenceHandler constructs ReferenceHandler.
func NewReferenceHandler(facade ReferenceFacade, health HealthFacade) *ReferenceHandler {
	return &ReferenceHandler{facade: facade, health: health}
}

// ServiceTypes handles GET /api/reference/service-types.
func (h *ReferenceHandler) ServiceTypes(c *gin.Context) {
	items, err := h.facade.ServiceTypes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Districts handles GET /api/reference/districts.
func (h *ReferenceHandler) Districts(c *gin.Context) {
	items, err := h.facade.Districts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Dispatchers handles GET /api/reference/dispatchers.
func (h *ReferenceHandler) Dispatchers(c *gin.Context) {
	items, err := h.facade.Dispatchers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Health handles GET /health.
func (h *ReferenceHandler) Health(c *gin.Context) {
	if err := h.health.Health(c.Request.Context()); err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusServiceUnavailable, "UNAVAILABLE", "store unavailable", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
