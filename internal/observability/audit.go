package observability

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event kinds.
const (
	AuditScan  = "scan"
	AuditModel = "model"
	AuditTool  = "tool"
)

// AuditEvent is one line of the scan audit trail.
type AuditEvent struct {
	Kind     string
	ScanID   string
	Action   string // "attempt:<model>", "execute:<tool>", "scan:<target>"
	Status   string
	Metadata map[string]any
	At       time.Time
}

// AuditLogger appends audit events as JSON lines. The zero value discards.
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
}

var (
	auditMu sync.Mutex
	audit   = &AuditLogger{logger: zerolog.Nop()}
)

// GetAuditLogger returns the process audit logger.
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	return audit
}

// InitAuditLogger opens path for appending and makes it the process audit
// logger. The previous logger is closed.
func InitAuditLogger(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	auditMu.Lock()
	prev := audit
	audit = &AuditLogger{logger: zerolog.New(file), file: file}
	auditMu.Unlock()
	return prev.Close()
}

// Record writes ev. When ctx carries a recording span the event is also added
// to it, and the trace id is written alongside.
func (a *AuditLogger) Record(ctx context.Context, ev AuditEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	var traceID string
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+ev.Kind, trace.WithAttributes(
			attribute.String("audit.action", ev.Action),
			attribute.String("audit.status", ev.Status),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	line := a.logger.Log().
		Time("timestamp", ev.At).
		Str("type", ev.Kind).
		Str("actor", ev.ScanID).
		Str("action", ev.Action).
		Str("status", ev.Status)
	if traceID != "" {
		line = line.Str("trace_id", traceID)
	}
	if len(ev.Metadata) > 0 {
		line = line.Interface("metadata", ev.Metadata)
	}
	line.Send()
}

// Close releases the audit file, if any.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.logger = zerolog.Nop()
	return err
}

func RecordToolAudit(ctx context.Context, toolName, scanID, status string, metadata map[string]any) {
	GetAuditLogger().Record(ctx, AuditEvent{Kind: AuditTool, ScanID: scanID, Action: "execute:" + toolName, Status: status, Metadata: metadata})
}

func RecordModelAudit(ctx context.Context, model, scanID, outcome string, metadata map[string]any) {
	GetAuditLogger().Record(ctx, AuditEvent{Kind: AuditModel, ScanID: scanID, Action: "attempt:" + model, Status: outcome, Metadata: metadata})
}

func RecordScanAudit(ctx context.Context, target, scanID, status string, metadata map[string]any) {
	GetAuditLogger().Record(ctx, AuditEvent{Kind: AuditScan, ScanID: scanID, Action: "scan:" + target, Status: status, Metadata: metadata})
}
