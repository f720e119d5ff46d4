package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	require.NoError(t, InitOpenTelemetry("bounter-test", "dev", WithSpanProcessor(rec)))
	t.Cleanup(func() { _ = ShutdownOpenTelemetry(context.Background()) })
	return rec
}

func TestStartSpan(t *testing.T) {
	rec := recorder(t)

	ctx, span := StartSpan(context.Background(), "bounter.scan")
	require.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "bounter.scan", ended[0].Name())
}

func TestStartSpan_KeepsExistingTraceID(t *testing.T) {
	recorder(t)

	ctx, span := StartSpan(WithTraceID(context.Background(), "mine"), "bounter.attempt")
	defer span.End()
	assert.Equal(t, "mine", GetTraceID(ctx))
}

func TestFail(t *testing.T) {
	rec := recorder(t)

	_, span := StartSpan(context.Background(), "report.save")
	Fail(span, nil)
	Fail(span, errors.New("disk full"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "disk full", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
}

func TestSampleRatioZero(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	require.NoError(t, InitOpenTelemetry("bounter-test", "dev", WithSampleRatio(0), WithSpanProcessor(rec)))
	t.Cleanup(func() { _ = ShutdownOpenTelemetry(context.Background()) })

	_, span := StartSpan(context.Background(), "unsampled")
	span.End()
	assert.Empty(t, rec.Ended())
}
