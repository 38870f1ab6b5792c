// Package spanhost provides a minimal, reference implementation of the
// host span framework contract that pkg/tracectx is designed to sit
// on top of (pkg/tracectx.SpanStore, ExtensionStore, Dispatcher). It
// exists so that this module is runnable end to end; the hard part
// this repository demonstrates is pkg/tracectx's registry and
// resolution algorithm, not this framework.
//
// A Host tracks a tree of open spans (Close drops a span), keyed by a
// monotonically increasing SpanHandle, with current-span propagated
// through a context.Context the way the host framework would thread
// it through cooperative tasks.
package spanhost

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx"
)

// Host is a tree of spans plus the bookkeeping the tracectx contracts
// need: a handle allocator, a map from handle to span (SpanStore), and
// per-span extension storage (ExtensionStore).
type Host struct {
	nextHandle atomic.Uint64

	mu    sync.Mutex
	spans map[tracectx.SpanHandle]*span
}

// NewHost creates an empty Host.
func NewHost() *Host {
	return &Host{
		spans: map[tracectx.SpanHandle]*span{},
	}
}

// span is the Host's internal bookkeeping for one span. It implements
// tracectx.SpanRef directly; its extension store is guarded by the
// span's own extMu, matching the host-framework contract that
// extension access is serialised per span by the framework itself.
type span struct {
	host   *Host
	handle tracectx.SpanHandle
	parent tracectx.SpanHandle
	name   string

	extMu sync.Mutex
	ext   map[tracectx.TypeID]any
}

var _ tracectx.SpanRef = (*span)(nil)
var _ tracectx.SpanStore = (*Host)(nil)
var _ tracectx.ExtensionStore = (*span)(nil)

func (s *span) ID() tracectx.SpanHandle { return s.handle }

// Name returns the name the span was opened with, for diagnostics.
func (s *span) Name() string { return s.name }

func (s *span) Parent() (tracectx.SpanHandle, bool) {
	if s.parent.IsZero() {
		return 0, false
	}
	return s.parent, true
}

func (s *span) Extensions() tracectx.ExtensionStore { return s }

func (s *span) Get(id tracectx.TypeID) (any, bool) {
	s.extMu.Lock()
	defer s.extMu.Unlock()
	v, ok := s.ext[id]
	return v, ok
}

func (s *span) Set(id tracectx.TypeID, value any) {
	s.extMu.Lock()
	defer s.extMu.Unlock()
	if s.ext == nil {
		s.ext = map[tracectx.TypeID]any{}
	}
	s.ext[id] = value
}

func (s *span) Delete(id tracectx.TypeID) {
	s.extMu.Lock()
	defer s.extMu.Unlock()
	delete(s.ext, id)
}

// Lookup implements tracectx.SpanStore.
func (h *Host) Lookup(handle tracectx.SpanHandle) (tracectx.SpanRef, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.spans[handle]
	if !ok {
		return nil, false
	}
	return s, true
}

type currentSpanKey struct{}

// Open creates a new span, child of the current span found in ctx (if
// any), and returns its handle together with a context that makes it
// the current span for descendants. The caller is responsible for
// calling Close when the span ends.
func (h *Host) Open(ctx context.Context, name string) (context.Context, tracectx.SpanHandle) {
	handle := tracectx.SpanHandle(h.nextHandle.Add(1))
	var parent tracectx.SpanHandle
	if p, ok := CurrentSpan(ctx); ok {
		parent = p
	}

	s := &span{host: h, handle: handle, parent: parent, name: name}
	h.mu.Lock()
	h.spans[handle] = s
	h.mu.Unlock()

	return context.WithValue(ctx, currentSpanKey{}, handle), handle
}

// Close removes handle's bookkeeping from the Host. The host framework
// typically does this only after releasing the extensions the core
// attached (visitor, init timestamp); callers that use Host directly
// through pkg/tracectx/layer rely on the layer to have already removed
// those before Close runs.
func (h *Host) Close(handle tracectx.SpanHandle) {
	h.mu.Lock()
	delete(h.spans, handle)
	h.mu.Unlock()
}

// CurrentSpan returns the span handle installed as current in ctx, if
// any. This is the ambient "current span" half of the host-framework
// contract's "get the current span handle and dispatcher" lookup
// (spec §6); the Dispatcher half is a process-wide global, see
// SetDispatcher.
func CurrentSpan(ctx context.Context) (tracectx.SpanHandle, bool) {
	h, ok := ctx.Value(currentSpanKey{}).(tracectx.SpanHandle)
	if !ok || h.IsZero() {
		return 0, false
	}
	return h, true
}

var ambientDispatcher atomic.Pointer[tracectx.Dispatcher]

// SetDispatcher installs the process-wide ambient Dispatcher. Spec §9
// names this the only process-wide mutable state the core relies on;
// it is installed once by bootstrap code (pkg/global.ApplyConfiguration)
// and read by pkg/tracectx/api's out-of-band helpers.
func SetDispatcher(d tracectx.Dispatcher) {
	ambientDispatcher.Store(&d)
}

// CurrentDispatcher returns the process-wide ambient Dispatcher
// installed by SetDispatcher, if any.
func CurrentDispatcher() (tracectx.Dispatcher, bool) {
	p := ambientDispatcher.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Now defaults to time.Now. Nothing in this module reads it, so
// replacing it has no effect on Host or the tracectx layer.
var Now = time.Now

// OpenSpanInfo is a snapshot of one open span, for diagnostics.
type OpenSpanInfo struct {
	Handle tracectx.SpanHandle
	Parent tracectx.SpanHandle
	Name   string
}

// Snapshot returns a point-in-time list of every span currently open
// on the host, in no particular order. Intended for diagnostics
// handlers (pkg/global/registrydiag), not for the hot path.
func (h *Host) Snapshot() []OpenSpanInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	infos := make([]OpenSpanInfo, 0, len(h.spans))
	for handle, s := range h.spans {
		infos = append(infos, OpenSpanInfo{Handle: handle, Parent: s.parent, Name: s.name})
	}
	return infos
}

