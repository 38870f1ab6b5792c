package otelreporter

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider creates a TracerProvider backed by exporter, using
// IDGenerator so that every span it emits carries exactly the
// SpanRecord/EventRecord's own identifiers. sampler is applied on top
// of the trace-level deterministic/rate gates (pkg/tracesampler),
// which run before a record ever reaches the reporter; passing
// sdktrace.AlwaysSample() here is the common case.
func NewTracerProvider(exporter sdktrace.SpanExporter, sampler sdktrace.Sampler) *sdktrace.TracerProvider {
	if sampler == nil {
		sampler = sdktrace.AlwaysSample()
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithIDGenerator(NewIDGenerator()),
		sdktrace.WithSampler(sampler),
	)
}

// NewReporter builds a Reporter directly from a TracerProvider and
// instrumentation name, the common construction path for
// pkg/global.ApplyConfiguration.
func NewReporter(tp trace.TracerProvider, instrumentationName string) *Reporter {
	return New(tp.Tracer(instrumentationName))
}

// Shutdown is a convenience wrapper so callers holding only the
// *sdktrace.TracerProvider can flush and release it during graceful
// termination (pkg/global's TracingHandle.Shutdown).
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}
