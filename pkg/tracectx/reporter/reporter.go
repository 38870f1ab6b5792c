// Package reporter defines the polymorphic reporter contract: the
// pluggable backend that receives finished span and event records.
package reporter

import (
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
)

// Reporter is parameterised by its Visitor type V (which must itself
// implement visitor.Visitor). new_visitor is cheap and may be called
// once per span open and once per event emit; ReportSpan and
// ReportEvent are best-effort and must never block indefinitely or
// panic on back-pressure — failures are logged and swallowed by the
// implementation, never surfaced to the lifecycle layer.
type Reporter[V visitor.Visitor] interface {
	NewVisitor() V
	ReportSpan(record.SpanRecord[V])
	ReportEvent(record.EventRecord[V])
}

// Sampler decides whether a record should be reported (spec §4.7).
// WithSampler consults it once per record with that record's trace
// ID, so a sampler that depends only on the trace ID (Deterministic)
// keeps or drops whole traces, while one that does not (RateLimited)
// can drop part of a trace.
type Sampler interface {
	ShouldReport(traceID ident.TraceID) bool
}

// sampled wraps a Reporter with a Sampler, dropping every record whose
// trace ID the sampler rejects. Installable on any reporter backend,
// independent of the trace-context resolution algorithm itself, which
// always runs regardless of sampling.
type sampled[V visitor.Visitor] struct {
	next    Reporter[V]
	sampler Sampler
}

// WithSampler wraps next so that ReportSpan/ReportEvent are forwarded
// only for traces sampler accepts.
func WithSampler[V visitor.Visitor](next Reporter[V], sampler Sampler) Reporter[V] {
	return &sampled[V]{next: next, sampler: sampler}
}

func (s *sampled[V]) NewVisitor() V {
	return s.next.NewVisitor()
}

func (s *sampled[V]) ReportSpan(rec record.SpanRecord[V]) {
	if s.sampler.ShouldReport(rec.TraceID) {
		s.next.ReportSpan(rec)
	}
}

func (s *sampled[V]) ReportEvent(rec record.EventRecord[V]) {
	if s.sampler.ShouldReport(rec.TraceID) {
		s.next.ReportEvent(rec)
	}
}
