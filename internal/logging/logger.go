// Package logging provides structured logging configuration using log/slog.
//
// The server and the merge engine share one slog handler: Setup installs it
// as the slog default and hands it to the engine's package logger, so engine
// debug output (template cache hits, substitution anomalies) lands in the
// same stream as request logs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	mailmerge.SetLogger(mailmerge.NewLoggerFromSlog(logger.With("component", "mailmerge"), engineLevel(level)))
	return logger
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func engineLevel(level string) mailmerge.LogLevel {
	switch parseLevel(level) {
	case slog.LevelDebug:
		return mailmerge.LogDebug
	case slog.LevelWarn:
		return mailmerge.LogWarn
	case slog.LevelError:
		return mailmerge.LogError
	default:
		return mailmerge.LogInfo
	}
}

// FromContext returns a logger enriched with request context.
//
// When ctx carries a chi RequestID, the returned logger includes request_id
// in every entry.
//
//	func handleProgress(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("progress polled", "job_id", id)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
//	jobLogger := logging.WithFields(ctx, "job_id", job.ID, "templates", n)
//	jobLogger.Info("job started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
