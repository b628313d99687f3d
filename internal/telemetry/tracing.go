package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for tracker spans.
const TracerName = "voicestats/tracker"

// InitTracing initializes OpenTelemetry tracing with an OTLP/gRPC exporter.
// An empty endpoint leaves the global no-op provider in place.
func InitTracing(endpoint, serviceName, serviceVersion string) (func(), error) {
	if endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing initialized", slog.String("service", serviceName), slog.String("endpoint", endpoint))

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("err", err))
		}
	}, nil
}

// Span attribute keys shared by tracker and reconciler spans.
const (
	AttrGuild       = attribute.Key("voice.guild")
	AttrUser        = attribute.Key("voice.user")
	AttrChannel     = attribute.Key("voice.channel")
	AttrApproximate = attribute.Key("voice.approximate")
	AttrOutcome     = attribute.Key("voice.outcome")
	AttrSweepReason = attribute.Key("sweep.reason")
)

// StartSpan starts a span on the tracker tracer.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// StartSessionSpan starts a span for an operation on one user's session in a
// channel. channelID may be empty.
func StartSessionSpan(ctx context.Context, spanName, guildID, userID, channelID string, approximate bool) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		AttrGuild.String(guildID),
		AttrUser.String(userID),
		AttrApproximate.Bool(approximate),
	}
	if channelID != "" {
		attrs = append(attrs, AttrChannel.String(channelID))
	}
	return StartSpan(ctx, spanName, attrs...)
}

// EndSessionSpan tags the span with the operation's outcome, records err and
// ends it.
func EndSessionSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(AttrOutcome.String(outcome))
	RecordError(span, err)
	span.End()
}

// RecordError records an error on the span and sets error status.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
