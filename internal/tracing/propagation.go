package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns baseLogger enriched with the correlation ids
// found in ctx.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := baseLogger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.ScanID != "" {
		lc = lc.Str("scan_id", tc.ScanID)
	}
	if tc.Model != "" {
		lc = lc.Str("model", tc.Model)
	}
	if tc.AttemptID != "" {
		lc = lc.Str("attempt_id", tc.AttemptID)
	}
	return lc.Logger()
}

// Detach returns a background context carrying the same correlation ids.
// Listener drain loops use it so they outlive the tool call that started them.
func Detach(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	out := context.Background()
	if tc.TraceID != "" {
		out = WithTraceID(out, tc.TraceID)
	}
	if tc.ScanID != "" {
		out = WithScanID(out, tc.ScanID)
	}
	if tc.Model != "" {
		out = context.WithValue(out, ModelKey, tc.Model)
	}
	if tc.AttemptID != "" {
		out = context.WithValue(out, AttemptIDKey, tc.AttemptID)
	}
	return out
}
