package otelreporter

import (
	"context"
	"crypto/rand"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type desiredIDsKey struct{}

type desiredIDs struct {
	traceID trace.TraceID
	spanID  trace.SpanID
}

// withDesiredIDs embeds the exact trace/span IDs the next span started
// on this context must receive from the IDGenerator below.
func withDesiredIDs(ctx context.Context, traceID trace.TraceID, spanID trace.SpanID) context.Context {
	return context.WithValue(ctx, desiredIDsKey{}, desiredIDs{traceID: traceID, spanID: spanID})
}

// IDGenerator is a sdktrace.IDGenerator that reuses the IDs embedded by
// withDesiredIDs when present, falling back to a random generator
// otherwise. Installing it on the TracerProvider used by Reporter lets
// every span it emits carry exactly its SpanRecord's own trace_id and
// span_id (derived from the SpanRecord that this reporter is replaying,
// not freshly minted by the SDK), so parent/child links constructed
// via ContextWithRemoteSpanContext resolve to the right OTel span IDs.
type IDGenerator struct{}

// NewIDGenerator creates an IDGenerator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

func (g *IDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	if d, ok := ctx.Value(desiredIDsKey{}).(desiredIDs); ok {
		return d.traceID, d.spanID
	}
	var tid trace.TraceID
	rand.Read(tid[:])
	return tid, g.NewSpanID(ctx, tid)
}

func (g *IDGenerator) NewSpanID(ctx context.Context, traceID trace.TraceID) trace.SpanID {
	if d, ok := ctx.Value(desiredIDsKey{}).(desiredIDs); ok {
		return d.spanID
	}
	var sid trace.SpanID
	rand.Read(sid[:])
	return sid
}

var _ sdktrace.IDGenerator = (*IDGenerator)(nil)
