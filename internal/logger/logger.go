package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/polkiloo/dispatchdesk/internal/config"
)

const serviceName = "dispatchdesk"

// New creates the service logger at the configured level.
func New(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.LogLevel)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler).With(slog.String("service", serviceName))
}

// parseLevel falls back to info on empty or unknown input.
func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
