package otelhelper_test

import (
	"errors"
	"testing"

	"github.com/dukex/agendaflow/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := otelhelper.StartSpan(t.Context(), tracer, "executor.execute",
		attribute.String(otelhelper.ExecutionIDKey, "exec-1"))
	otelhelper.SetError(span, errors.New("synthesis failed"), attribute.String(otelhelper.StatusKey, "failed"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "executor.execute", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(otelhelper.ExecutionIDKey, "exec-1"))

	require.Len(t, spans[0].Events(), 1)
	assert.Contains(t, spans[0].Events()[0].Attributes, attribute.String(otelhelper.ErrorTypeKey, "*errors.errorString"))
	assert.Contains(t, spans[0].Events()[0].Attributes, attribute.String(otelhelper.StatusKey, "failed"))
}

func TestSetError_NilLeavesSpanUnset(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := otelhelper.StartSpan(t.Context(), provider.Tracer("test"), "executor.resume")
	otelhelper.SetError(span, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Empty(t, spans[0].Events())
}

func TestNoopTracer(t *testing.T) {
	_, span := otelhelper.StartSpan(t.Context(), otelhelper.NoopTracer(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}
