package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	ScanIDKey    ContextKey = "scan_id"
	ModelKey     ContextKey = "model"
	AttemptIDKey ContextKey = "attempt_id"
)

// TraceContext is the set of correlation ids carried through a scan.
type TraceContext struct {
	TraceID   string
	ScanID    string
	Model     string
	AttemptID string
}

// NewID returns a random correlation id.
func NewID() string {
	return uuid.NewString()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, ScanIDKey, scanID)
}

// WithAttempt tags ctx with the model being tried and a fresh attempt id.
func WithAttempt(ctx context.Context, model string) context.Context {
	ctx = context.WithValue(ctx, ModelKey, model)
	return context.WithValue(ctx, AttemptIDKey, NewID())
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string   { return stringValue(ctx, TraceIDKey) }
func GetScanID(ctx context.Context) string    { return stringValue(ctx, ScanIDKey) }
func GetModel(ctx context.Context) string     { return stringValue(ctx, ModelKey) }
func GetAttemptID(ctx context.Context) string { return stringValue(ctx, AttemptIDKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		ScanID:    GetScanID(ctx),
		Model:     GetModel(ctx),
		AttemptID: GetAttemptID(ctx),
	}
}

// NewScanContext starts a scan: a new scan id, and a trace id unless one is
// already present.
func NewScanContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewID())
	}
	return WithScanID(ctx, NewID())
}
