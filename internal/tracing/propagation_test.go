package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithScanID(WithTraceID(context.Background(), "trace-1"), "scan-1")
	ctx = WithAttempt(ctx, "gemini-2.0-flash")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("attempt")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-1"`, `"scan_id":"scan-1"`, `"model":"gemini-2.0-flash"`, `"attempt_id":`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in %s", want, out)
		}
	}
}

func TestLoggerFromContext_NoIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("Unexpected trace_id in %s", buf.String())
	}
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithTimeout(WithScanID(context.Background(), "scan-9"), time.Millisecond)
	cancel()

	detached := Detach(parent)
	if detached.Err() != nil {
		t.Error("Detached context should not inherit cancellation")
	}
	if got := GetScanID(detached); got != "scan-9" {
		t.Errorf("Expected scan ID scan-9, got %s", got)
	}
}
