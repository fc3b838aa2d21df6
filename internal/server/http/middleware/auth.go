package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/server/http/dto"
)

// ActorContextKey is a gin context key for the authenticated actor.
const ActorContextKey = "actor"

// ActorResolver validates a token and returns the acting identity.
type ActorResolver interface {
	ResolveActor(ctx context.Context, token string) (model.Actor, error)
}

// AuthRequired ensures the request carries a valid token before reaching the handler.
func AuthRequired(resolver ActorResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		actor, err := resolver.ResolveActor(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, domainErrors.ErrUnauthenticated):
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		case errors.Is(err, domainErrors.ErrUnavailable):
			abort(c, http.StatusServiceUnavailable, "UNAVAILABLE", domainErrors.ErrUnavailable.Error())
			return
		default:
			_ = c.Error(err)
			abort(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal error")
			return
		}

		c.Set(ActorContextKey, actor)
		c.Next()
	}
}

// extractToken reads the bearer header, falling back to the token query parameter
// browsers use for websocket upgrades.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: dto.ErrorBody{Code: code, Message: message}})
}
