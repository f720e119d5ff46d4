package toolexecutor

import (
	"context"
	"time"
)

// ExecutionContext is attached to the context handed to tool handlers.
type ExecutionContext struct {
	ScanID   string
	Target   string
	EventID  string
	Timeout  time.Duration
	ToolName string
}

type execContextKey struct{}

// ContextWithExecContext attaches execCtx for tool handlers.
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext extracts the execution context, or nil.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if execCtx, ok := ctx.Value(execContextKey{}).(*ExecutionContext); ok {
		return execCtx
	}
	return nil
}
