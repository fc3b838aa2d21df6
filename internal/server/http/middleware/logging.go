package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// RequestLogger logs information about incoming requests using slog.
// Errors attached to the gin context are logged at Warn.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", latency),
		}
		level := slog.LevelInfo
		if len(c.Errors) > 0 {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("error", c.Errors.String()))
		}
		if v, ok := c.Get(ActorContextKey); ok {
			if actor, ok := v.(model.Actor); ok {
				attrs = append(attrs, slog.String("actor", actor.ID))
			}
		}
		logger.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
