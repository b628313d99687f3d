package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing("", "voicestats", "test")
	require.NoError(t, err)
	assert.NotPanics(t, shutdown)
}

func TestStartSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "reconcile.sweep", attribute.Int("sessions", 3))
	RecordError(span, errors.New("query failed"))
	RecordError(span, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "reconcile.sweep", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "query failed", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("sessions", 3))
}

func TestSessionSpanCarriesOutcome(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSessionSpan(context.Background(), "tracker.close", "100", "200", "", true)
	EndSessionSpan(span, "not_found", nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, AttrGuild.String("100"))
	assert.Contains(t, attrs, AttrUser.String("200"))
	assert.Contains(t, attrs, AttrApproximate.Bool(true))
	assert.Contains(t, attrs, AttrOutcome.String("not_found"))
	for _, kv := range attrs {
		assert.NotEqual(t, AttrChannel, kv.Key, "empty channel is not recorded")
	}
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}
