package app

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"github.com/use-agent/newsingest/config"
)

// NewLogger builds the process logger: JSON for production, tint for
// "text".
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.New(handler)
}

// InitLogger installs NewLogger's result as the slog default.
func InitLogger(cfg config.LogConfig, w io.Writer) {
	slog.SetDefault(NewLogger(cfg, w))
}
