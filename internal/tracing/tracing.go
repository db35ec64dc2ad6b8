package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ContextKey represents keys used for context values
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"
	// TraceIDKey is the context key for trace IDs
	TraceIDKey ContextKey = "trace_id"
	// EventIDKey carries the id of the gateway event being handled
	EventIDKey ContextKey = "event_id"
	// StartTimeKey is the context key for request start time
	StartTimeKey ContextKey = "start_time"
)

// RequestInfo contains tracing information for a request or gateway event
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
	EventID   string    `json:"event_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

func randomHex(n int, fallbackPrefix string) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s_%d", fallbackPrefix, time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return "req_" + randomHex(8, "ts")
}

// GenerateTraceID generates a unique trace ID
func GenerateTraceID() string {
	return randomHex(16, "trace")
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithEventID tags the context with a gateway event id
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}

// WithStartTime adds a start time to the context
func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, StartTimeKey, startTime)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }

// GetTraceID extracts the trace ID from context
func GetTraceID(ctx context.Context) string { return stringValue(ctx, TraceIDKey) }

// GetEventID extracts the gateway event id from context
func GetEventID(ctx context.Context) string { return stringValue(ctx, EventIDKey) }

// GetStartTime extracts the start time from context
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}

// GetRequestInfo extracts all tracing information from context
func GetRequestInfo(ctx context.Context) *RequestInfo {
	return &RequestInfo{
		RequestID: GetRequestID(ctx),
		TraceID:   GetTraceID(ctx),
		EventID:   GetEventID(ctx),
		StartTime: GetStartTime(ctx),
	}
}

// WithFullTracing adds request id, trace id and start time to the context
func WithFullTracing(ctx context.Context) context.Context {
	ctx = WithRequestID(ctx, GenerateRequestID())
	ctx = WithTraceID(ctx, GenerateTraceID())
	return WithStartTime(ctx, time.Now())
}

// Duration calculates the duration since the start time in context
func Duration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}
