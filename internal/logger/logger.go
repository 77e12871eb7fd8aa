// Package logger configures the application's structured logger (log/slog)
// and derives request-scoped loggers from chi's RequestID middleware.
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup returns a *slog.Logger configured for the given environment and
// installs it as the slog default.
//
// Development (dev): human-readable text output at DEBUG level.
// Staging (staging): JSON output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func Setup(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case "prod":
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	case "staging":
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	default: // "dev" and anything unrecognised
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	slog.SetDefault(log)
	return log
}

// FromContext returns the default logger, enriched with request_id when
// ctx carries one set by middleware.RequestID.
//
//	log := logger.FromContext(r.Context())
//	log.Info("creating a student")
func FromContext(ctx context.Context) *slog.Logger {
	log := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		log = log.With(slog.String("request_id", reqID))
	}

	return log
}
