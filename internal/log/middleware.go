package log

import (
	"context"
	"log/slog"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogEndpointError logs a failed request with the endpoint and the raw error.
// Client errors are logged at warn, everything else at error.
func (sl *StructuredLogger) LogEndpointError(ctx context.Context, endpoint string, status int, err error) {
	logger := FromContext(ctx)
	if logger.Component() == "unknown" {
		logger = sl.logger
	}
	fields := NewFields().
		WithError(err).
		WithComponent(ComponentHTTP)
	fields[FieldEndpoint] = endpoint
	fields[FieldStatusCode] = status

	level := slog.LevelError
	if status < 500 {
		level = slog.LevelWarn
	}
	logger.Logger.Log(ctx, level, "Request failed", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.Logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
