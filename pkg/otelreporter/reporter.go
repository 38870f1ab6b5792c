package otelreporter

import (
	"context"
	"crypto/sha256"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reporter implements tracectx/reporter.Reporter on top of an
// OpenTelemetry trace.Tracer, so that any SDK exporter (OTLP over
// gRPC, Jaeger, stdout, ...) can serve as a distributed-tracing
// backend unmodified. It replays each finished SpanRecord/EventRecord
// as a bounded-or-zero-duration OTel span rather than holding live
// spans open across the record's lifetime, since by the time a record
// reaches the reporter it has already finished.
type Reporter struct {
	tracer trace.Tracer
}

// New creates a Reporter that starts spans on the given tracer. Use
// NewTracerProvider (tracer_provider.go) to build a TracerProvider
// whose spans carry exactly the SpanRecord's own identifiers.
func New(tracer trace.Tracer) *Reporter {
	return &Reporter{tracer: tracer}
}

func (r *Reporter) NewVisitor() visitor.FieldMap {
	return visitor.NewFieldMap()
}

func traceIDToOTel(id ident.TraceID) trace.TraceID {
	return trace.TraceID(id)
}

// spanIDToOTel derives an 8-byte OTel span ID from our SpanID. Our
// SpanID is a (handle, nonce) pair rather than 8 opaque random bytes,
// so an exact embedding is not possible; hashing preserves uniqueness
// and determinism (the same SpanID always maps to the same OTel span
// ID, which is what parent/child linking relies on).
func spanIDToOTel(id ident.SpanID) trace.SpanID {
	sum := sha256.Sum256([]byte(id.String()))
	var out trace.SpanID
	copy(out[:], sum[:8])
	return out
}

func (r *Reporter) ReportSpan(rec record.SpanRecord[visitor.FieldMap]) {
	ctx := context.Background()
	ownTraceID := traceIDToOTel(rec.TraceID)
	ownSpanID := spanIDToOTel(rec.SpanID)

	if rec.ParentID != nil {
		parentSC := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    ownTraceID,
			SpanID:     spanIDToOTel(*rec.ParentID),
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		ctx = trace.ContextWithRemoteSpanContext(ctx, parentSC)
	}
	ctx = withDesiredIDs(ctx, ownTraceID, ownSpanID)

	attrs := append(fieldMapToAttributes(rec.Visitor),
		attribute.String("service_name", rec.ServiceName),
		attribute.String("target", rec.Target))

	_, span := r.tracer.Start(ctx, rec.Name,
		trace.WithTimestamp(rec.InitTime),
		trace.WithAttributes(attrs...))
	span.End(trace.WithTimestamp(rec.InitTime.Add(rec.Elapsed)))
}

func (r *Reporter) ReportEvent(rec record.EventRecord[visitor.FieldMap]) {
	ctx := context.Background()
	ownTraceID := traceIDToOTel(rec.TraceID)

	parentSC := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    ownTraceID,
		SpanID:     spanIDToOTel(rec.ParentID),
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx = trace.ContextWithRemoteSpanContext(ctx, parentSC)

	attrs := append(fieldMapToAttributes(rec.Visitor),
		attribute.String("service_name", rec.ServiceName),
		attribute.String("target", rec.Target))

	_, span := r.tracer.Start(ctx, rec.Name,
		trace.WithTimestamp(rec.InitTime),
		trace.WithAttributes(attrs...))
	span.End(trace.WithTimestamp(rec.InitTime))
}
