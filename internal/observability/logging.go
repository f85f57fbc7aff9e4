// Package observability provides structured logging, request correlation
// and Prometheus metrics for the orchestration pipeline.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures the logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format specifies output format: "json" or "text"
	// JSON format is recommended for production; text for development
	Format string

	// Output is the writer for log output (defaults to os.Stdout)
	Output io.Writer

	// AddSource includes file and line number in log records
	AddSource bool
}

// NewLogger creates a structured slog logger with the given configuration.
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return slog.New(handler)
}

type contextKey string

const requestContextKey contextKey = "loom_request_context"

// RequestContext carries per-request correlation identifiers. It is passed
// explicitly through every call boundary instead of living in ambient state.
type RequestContext struct {
	CorrelationID  string
	UserID         string
	ConversationID string
}

// WithRequestContext attaches request correlation ids to the context.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// RequestContextFrom extracts correlation ids from the context. The zero
// value is returned when none are attached.
func RequestContextFrom(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey).(RequestContext)
	return rc
}

// LoggerWith returns logger with the context's correlation ids attached as
// attributes, so every record on a request path carries them.
func LoggerWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	rc := RequestContextFrom(ctx)

	attrs := make([]any, 0, 6)
	if rc.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", rc.CorrelationID)
	}
	if rc.UserID != "" {
		attrs = append(attrs, "user_id", rc.UserID)
	}
	if rc.ConversationID != "" {
		attrs = append(attrs, "conversation_id", rc.ConversationID)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
