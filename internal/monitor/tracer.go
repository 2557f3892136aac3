package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dafny-verifier-bridge"

// Tracer wraps OpenTelemetry tracing for the verifier bridge.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("verifier.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for verification tracing.
var (
	AttrRunID       = attribute.Key("verifier.run.id")
	AttrMode        = attribute.Key("verifier.mode")
	AttrFingerprint = attribute.Key("verifier.fingerprint")
	AttrOutcome     = attribute.Key("verifier.outcome")
	AttrCached      = attribute.Key("verifier.cached")
	AttrDurationMS  = attribute.Key("verifier.duration_ms")
)
