// Package layer implements the adapter plugged into the host span
// framework's lifecycle: span creation, field recording, event
// emission and span closure, each resolving trace context through a
// tracectx.Registry and handing finished records to a reporter.
package layer

import (
	"context"
	"time"

	"github.com/buildbarn/bb-disttrace/pkg/clock"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/reporter"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
)

// spanMeta is the per-span metadata the layer itself attaches at
// on_new_span time and consumes again at on_close/on_event: the
// framework-supplied name, target and opaque metadata pointer that
// every record carries (spec §6).
type spanMeta struct {
	name     string
	target   string
	metadata any
}

var (
	visitorExtTypeID  = tracectx.TypeIDOf[any]()
	initTimeExtTypeID = tracectx.TypeIDOf[time.Time]()
	spanMetaExtTypeID = tracectx.TypeIDOf[spanMeta]()
)

// FieldFeeder is the callback shape the host framework uses to report
// a batch of fields into a freshly-created or existing Visitor: it
// lets Layer stay agnostic of however the framework represents raw
// attribute sets.
type FieldFeeder func(v visitor.Visitor)

// CurrentSpanFunc resolves the current span handle from a context.Context,
// the ambient half of the host-framework contract (spec §6). The
// reference implementation is spanhost.CurrentSpan; Layer takes it as
// a parameter so this package never depends on any one host framework.
type CurrentSpanFunc func(ctx context.Context) (tracectx.SpanHandle, bool)

// Layer is the lifecycle adapter. It is generic over the reporter's
// Visitor type V. It embeds a *tracectx.Registry (not parameterised by
// V) so that Downcast can hand out the registry without exposing V to
// callers that only need trace-context resolution (spec §9).
type Layer[V visitor.Visitor] struct {
	registry    *tracectx.Registry
	store       tracectx.SpanStore
	reporter    reporter.Reporter[V]
	clock       clock.Clock
	serviceName string
	currentSpan CurrentSpanFunc
}

// New creates a Layer. nonce is the process-instance nonce every
// SpanID promoted by this layer's registry will carry; pass 0 for a
// fixed nonce (e.g. the blackhole layer used in tests).
func New[V visitor.Visitor](
	store tracectx.SpanStore,
	rep reporter.Reporter[V],
	nonce uint64,
	serviceName string,
	clk clock.Clock,
	currentSpan CurrentSpanFunc,
) *Layer[V] {
	return &Layer[V]{
		registry:    tracectx.NewRegistry(nonce, nil),
		store:       store,
		reporter:    rep,
		clock:       clk,
		serviceName: serviceName,
		currentSpan: currentSpan,
	}
}

// Registry returns the layer's embedded trace-context registry, e.g.
// for application code that wants to call Record directly rather than
// through pkg/tracectx/api.
func (l *Layer[V]) Registry() *tracectx.Registry {
	return l.registry
}

// OnNewSpan attaches a fresh visitor (populated by feed) and an init
// timestamp extension to the newly-opened span.
func (l *Layer[V]) OnNewSpan(handle tracectx.SpanHandle, name, target string, metadata any, feed FieldFeeder) {
	ref, ok := l.store.Lookup(handle)
	if !ok {
		panic("tracectx/layer: OnNewSpan called for a handle the span store does not know about")
	}
	ext := ref.Extensions()

	v := l.reporter.NewVisitor()
	if feed != nil {
		feed(v)
	}
	ext.Set(visitorExtTypeID, v)
	ext.Set(initTimeExtTypeID, l.clock.Now())
	ext.Set(spanMetaExtTypeID, spanMeta{name: name, target: target, metadata: metadata})
}

// OnRecord feeds newly-recorded field values into handle's visitor.
func (l *Layer[V]) OnRecord(handle tracectx.SpanHandle, feed FieldFeeder) {
	ref, ok := l.store.Lookup(handle)
	if !ok {
		panic("tracectx/layer: OnRecord called for a handle the span store does not know about")
	}
	vAny, ok := ref.Extensions().Get(visitorExtTypeID)
	if !ok {
		return
	}
	feed(vAny.(V))
}

// OnEvent determines the event's parent (explicit parent, or the
// ambient current span unless the event is marked root), resolves
// trace context along that parent's ancestor chain, and reports the
// event. An event whose parent chain resolves to no trace context, or
// that has no parent at all, is dropped.
func (l *Layer[V]) OnEvent(ctx context.Context, explicitParent *tracectx.SpanHandle, root bool, name, target string, metadata any, feed FieldFeeder) {
	parent, ok := l.resolveEventParent(ctx, explicitParent, root)
	if !ok {
		return
	}

	ancestors := tracectx.AncestorsOf(l.store, parent)
	traceCtx, ok := l.registry.EvalCtx(ancestors)
	if !ok {
		return
	}

	v := l.reporter.NewVisitor()
	if feed != nil {
		feed(v)
	}

	l.reporter.ReportEvent(record.EventRecord[V]{
		TraceID:     traceCtx.TraceID,
		ParentID:    l.registry.Promote(parent),
		Name:        name,
		ServiceName: l.serviceName,
		Target:      target,
		InitTime:    l.clock.Now(),
		Metadata:    metadata,
		Visitor:     v,
	})
}

func (l *Layer[V]) resolveEventParent(ctx context.Context, explicitParent *tracectx.SpanHandle, root bool) (tracectx.SpanHandle, bool) {
	if explicitParent != nil {
		return *explicitParent, true
	}
	if root {
		return 0, false
	}
	if l.currentSpan != nil {
		return l.currentSpan(ctx)
	}
	return 0, false
}

// OnClose resolves trace context for the closing span, computes its
// elapsed time and parent_id, reports a SpanRecord, and removes the
// visitor and init-timestamp extensions it owns. A span whose ancestor
// chain resolves to no trace context is dropped silently.
func (l *Layer[V]) OnClose(handle tracectx.SpanHandle) {
	ancestors := tracectx.AncestorsOf(l.store, handle)
	traceCtx, ok := l.registry.EvalCtx(ancestors)
	if !ok {
		return
	}

	self := ancestors[0]
	ext := self.Extensions()

	vAny, _ := ext.Get(visitorExtTypeID)
	initTime, _ := ext.Get(initTimeExtTypeID)
	metaAny, _ := ext.Get(spanMetaExtTypeID)
	meta, _ := metaAny.(spanMeta)

	ext.Delete(visitorExtTypeID)
	ext.Delete(initTimeExtTypeID)

	initTimestamp, _ := initTime.(time.Time)
	elapsed := l.clock.Now().Sub(initTimestamp)

	var parentID *ident.SpanID
	if traceCtx.RemoteParentSpan != nil {
		parentID = traceCtx.RemoteParentSpan
	} else if parent, ok := self.Parent(); ok {
		p := l.registry.Promote(parent)
		parentID = &p
	}

	var v V
	if vAny != nil {
		v = vAny.(V)
	}

	l.reporter.ReportSpan(record.SpanRecord[V]{
		TraceID:     traceCtx.TraceID,
		SpanID:      l.registry.Promote(handle),
		ParentID:    parentID,
		Name:        meta.name,
		ServiceName: l.serviceName,
		Target:      meta.target,
		InitTime:    initTimestamp,
		Elapsed:     elapsed,
		Metadata:    meta.metadata,
		Visitor:     v,
	})
}

// layerTypeID identifies *Layer[V] for Downcast. Each instantiation of
// the generic Layer has a distinct TypeID, which is correct: a
// down-cast request names the concrete reporter-parameterised type it
// wants, and application code asking for "the registry" instead uses
// registryTypeID, which is reporter-independent.
func (l *Layer[V]) layerTypeID() tracectx.TypeID {
	return tracectx.TypeIDOf[*Layer[V]]()
}

var registryTypeID = tracectx.TypeIDOf[*tracectx.Registry]()

// Downcast implements tracectx.Dispatcher. It recognizes three
// TypeIDs: the layer's own concrete type, its embedded registry's
// type (reporter-independent, per spec §9), and the host framework's
// SpanStore capability.
func (l *Layer[V]) Downcast(id tracectx.TypeID) (any, bool) {
	switch id {
	case l.layerTypeID():
		return l, true
	case registryTypeID:
		return l.registry, true
	case spanStoreTypeID:
		return l.store, true
	default:
		return nil, false
	}
}

var spanStoreTypeID = tracectx.TypeIDOf[tracectx.SpanStore]()

// RegistryTypeID is exported so that pkg/tracectx/api can ask the
// ambient Dispatcher to down-cast to a *tracectx.Registry without
// importing this package's internals.
func RegistryTypeID() tracectx.TypeID { return registryTypeID }

// SpanStoreTypeID is exported for the same reason, for the
// tracectx.SpanStore capability.
func SpanStoreTypeID() tracectx.TypeID { return spanStoreTypeID }

var _ tracectx.Dispatcher = (*Layer[visitor.Visitor])(nil)
