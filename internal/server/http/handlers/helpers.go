package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/server/http/dto"
	"github.com/polkiloo/dispatchdesk/internal/server/http/middleware"
)

const defaultListLimit = 50

// CurrentActor extracts the authenticated actor from context.
func CurrentActor(c *gin.Context) model.Actor {
	val, ok := c.Get(middleware.ActorContextKey)
	if !ok {
		return model.Actor{}
	}
	actor, _ := val.(model.Actor)
	return actor
}

// bindJSON decodes the body into dst. An empty body leaves dst untouched when optional is set.
func bindJSON(c *gin.Context, dst any, optional bool) bool {
	if c.Request.Body == nil && optional {
		return true
	}
	err := c.ShouldBindJSON(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	return false
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
		return 0, false
	}
	return n, true
}

// respondError maps a facade error onto the HTTP error envelope.
func respondError(c *gin.Context, err error) {
	if f, ok := domainErrors.AsFailure(err); ok {
		reasons := make([]string, 0, len(f.Reasons))
		for _, r := range f.Reasons {
			reasons = append(reasons, string(r))
		}
		status, code := failureStatus(f)
		writeError(c, status, code, f.Error(), reasons)
		return
	}

	switch {
	case errors.Is(err, domainErrors.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	case errors.Is(err, domainErrors.ErrAlreadyExists):
		writeError(c, http.StatusConflict, "ALREADY_EXISTS", "already exists", nil)
	case errors.Is(err, domainErrors.ErrUnauthenticated):
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	case errors.Is(err, domainErrors.ErrOutcomeUnknown):
		writeError(c, http.StatusGatewayTimeout, "OUTCOME_UNKNOWN", domainErrors.ErrOutcomeUnknown.Error(), nil)
	case errors.Is(err, domainErrors.ErrUnavailable):
		writeError(c, http.StatusServiceUnavailable, "UNAVAILABLE", domainErrors.ErrUnavailable.Error(), nil)
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal error", nil)
	}
}

func failureStatus(f *domainErrors.Failure) (int, string) {
	switch f.Kind {
	case domainErrors.KindConflict:
		return http.StatusConflict, "CONFLICT"
	case domainErrors.KindValidation:
		return http.StatusBadRequest, "VALIDATION_FAILED"
	}
	if f.Has(domainErrors.ReasonRoleNotAllowed) {
		return http.StatusForbidden, "FORBIDDEN"
	}
	return http.StatusUnprocessableEntity, "GUARD_FAILED"
}

func writeError(c *gin.Context, status int, code, message string, reasons []string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: dto.ErrorBody{
		Code:    code,
		Message: message,
		Reasons: reasons,
	}})
}
