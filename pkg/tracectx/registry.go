package tracectx

import (
	"fmt"
	"sync"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/util"
)

// TraceCtx is the distributed context installed on a span: the trace
// it belongs to, and — for a local root whose parent lives in another
// process — the externalised span ID of that remote parent.
type TraceCtx struct {
	TraceID          ident.TraceID
	RemoteParentSpan *ident.SpanID
}

// asNonRoot returns a copy of ctx with RemoteParentSpan cleared, the
// form that gets cached on every descendant walked to reach it:
// descendants never inherit a remote-parent marker.
func (ctx TraceCtx) asNonRoot() TraceCtx {
	return TraceCtx{TraceID: ctx.TraceID}
}

// lazyCachedCtxTypeID is the TypeID under which eval_ctx stores its
// LazyCachedCtx extension. It is declared once at package scope so
// that the Get/Set/Delete calls across the algorithm agree on the
// exact key.
var lazyCachedCtxTypeID = TypeIDOf[TraceCtx]()

// Registry is the concurrent trace-context registry: the mapping from
// host-framework SpanHandle to TraceCtx, plus the promotion function
// that derives a SpanID from a handle. It is intentionally not
// parameterised by reporter type, only by the identifier types,
// so that the type-erasure down-cast hook (Dispatcher.Downcast) can
// recover it without knowing which reporter a layer was built with.
type Registry struct {
	nonce uint64

	mu      sync.RWMutex
	ctxByID map[SpanHandle]TraceCtx

	errorLogger util.ErrorLogger
}

// NewRegistry creates an empty Registry that promotes handles using
// the given process-instance nonce. errorLogger receives the
// operator-visible warning emitted on a double record; a nil
// errorLogger defaults to util.DefaultErrorLogger.
func NewRegistry(nonce uint64, errorLogger util.ErrorLogger) *Registry {
	if errorLogger == nil {
		errorLogger = util.DefaultErrorLogger
	}
	return &Registry{
		nonce:       nonce,
		ctxByID:     map[SpanHandle]TraceCtx{},
		errorLogger: errorLogger,
	}
}

// Promote wraps handle with the registry's process-instance nonce to
// produce an externalisable SpanID. Pure; does not touch the map.
func (r *Registry) Promote(handle SpanHandle) ident.SpanID {
	return ident.SpanID{Handle: uint64(handle), Nonce: r.nonce}
}

// Record registers handle as carrying ctx. If handle already has a
// registered context, the call is a no-op: the first registration
// wins, and a warning naming both contexts is logged.
func (r *Registry) Record(handle SpanHandle, ctx TraceCtx) {
	r.mu.Lock()
	existing, ok := r.ctxByID[handle]
	if !ok {
		r.ctxByID[handle] = ctx
	}
	r.mu.Unlock()

	if ok {
		r.errorLogger.Log(fmt.Errorf(
			"span %d is already registered with trace context %#v; ignoring new registration %#v",
			handle, existing, ctx))
	}
}

// Lookup returns the registered TraceCtx for handle, if any, without
// consulting any extension cache. Exposed for diagnostics
// (pkg/global/registrydiag); the resolution algorithm itself uses the
// unexported lookup below, which this simply forwards to.
func (r *Registry) Lookup(handle SpanHandle) (TraceCtx, bool) {
	return r.lookup(handle)
}

// Size returns the number of handles currently registered, for
// diagnostics.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ctxByID)
}

// lookup returns the registered TraceCtx for handle, if any. It takes
// the registry's read lock for the duration of the map access only.
func (r *Registry) lookup(handle SpanHandle) (TraceCtx, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctx, ok := r.ctxByID[handle]
	return ctx, ok
}

// EvalCtx is the resolution algorithm of spec §4.3.1. ancestors must
// be ordered nearest-first (the span under inspection, then its
// ancestors in order); it is typically produced by AncestorsOf.
//
// It walks ancestors near to far, consulting first each ancestor's own
// LazyCachedCtx extension slot, then the registry, caching the result
// onto every ancestor visited along the way so that repeated
// resolutions on the same span tree cost O(1) after first touch. The
// registry's write lock (taken only inside Record, never here) is
// never held together with an ancestor's extension guard: lookup
// releases the registry's read lock before any extension mutation.
func (r *Registry) EvalCtx(ancestors []SpanRef) (TraceCtx, bool) {
	var path []SpanRef

	for _, ancestor := range ancestors {
		ext := ancestor.Extensions()

		if cachedAny, ok := ext.Get(lazyCachedCtxTypeID); ok {
			cached := cachedAny.(TraceCtx)
			result := cached
			if len(path) > 0 {
				result = cached.asNonRoot()
			}
			r.cachePath(path, cached.asNonRoot())
			return result, true
		}

		if regCtx, ok := r.lookup(ancestor.ID()); ok {
			// Preserve remote_parent_span on the local root's own
			// cache entry; only descendants get it cleared.
			ext.Set(lazyCachedCtxTypeID, regCtx)
			result := regCtx
			if len(path) > 0 {
				result = regCtx.asNonRoot()
			}
			r.cachePath(path, regCtx.asNonRoot())
			return result, true
		}

		path = append(path, ancestor)
	}

	return TraceCtx{}, false
}

// cachePath installs the non-root cached form of ctx into every
// ancestor collected in path, nearest first. Two concurrent walks may
// race to cache the same ancestor; both write the same trace_id, so
// whichever wins leaves a semantically identical result.
func (r *Registry) cachePath(path []SpanRef, nonRoot TraceCtx) {
	for _, ancestor := range path {
		ancestor.Extensions().Set(lazyCachedCtxTypeID, nonRoot)
	}
}
