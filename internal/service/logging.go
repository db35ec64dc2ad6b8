package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"winbridge/internal/privacy"
	"winbridge/internal/tracing"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks the context for unmasked logging
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeID masks a user or channel id unless verbose logging is on
func SanitizeID(ctx context.Context, id string) string {
	if IsVerboseLogging(ctx) {
		return id
	}
	return privacy.MaskID(id)
}

// SanitizeContent hides message text unless verbose logging is on
func SanitizeContent(ctx context.Context, content string) string {
	if IsVerboseLogging(ctx) {
		return content
	}
	return privacy.MaskContent(content)
}

// LogWithContext returns an entry carrying the trace fields found in ctx
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{}
	info := tracing.GetRequestInfo(ctx)
	if info.RequestID != "" {
		fields[LogFieldRequestID] = info.RequestID
	}
	if info.TraceID != "" {
		fields[LogFieldTraceID] = info.TraceID
	}
	if info.EventID != "" {
		fields[LogFieldEventID] = info.EventID
	}
	return logger.WithFields(fields)
}
