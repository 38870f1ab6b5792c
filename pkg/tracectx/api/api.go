// Package api exposes the two process-wide free functions application
// code calls to bridge into distributed trace identity: registering
// the current span as a local root, and reading back the current
// span's resolved trace context. Both navigate only ambient state (the
// current span handle and the installed Dispatcher).
// RegisterDistTracingRoot records a TraceCtx in the registry;
// CurrentDistTraceCtx mutates nothing beyond the resolution cache
// eval_ctx installs.
package api

import (
	"context"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/layer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AmbientLookup is the pair of ambient accessors the host framework
// provides: the current span handle for ctx, and the process-wide
// Dispatcher. pkg/spanhost.CurrentSpan and pkg/spanhost.CurrentDispatcher
// are the reference implementations; this package takes them as
// parameters so it depends on no concrete host framework.
type AmbientLookup struct {
	CurrentSpan       func(ctx context.Context) (tracectx.SpanHandle, bool)
	CurrentDispatcher func() (tracectx.Dispatcher, bool)
}

// Error codes returned by this package's functions, per spec §7's
// error taxonomy. All are carried as a gRPC status rather than a
// bespoke error type. CodeLayerNotInstalled and CodeSpanStoreMissing
// are the same code (codes.Unimplemented), so status.Code(err) does not
// tell those two apart; only their messages differ.
const (
	// CodeLayerNotInstalled: the ambient dispatcher does not expose a
	// trace-context registry.
	CodeLayerNotInstalled = codes.Unimplemented
	// CodeSpanStoreMissing: the dispatcher does not expose the
	// framework's span-store capability.
	CodeSpanStoreMissing = codes.Unimplemented
	// CodeNoCurrentSpan: no span is active on the calling task/thread.
	CodeNoCurrentSpan = codes.FailedPrecondition
	// CodeNoAncestorHasContext: no ancestor of the current span has
	// been registered as a distributed-trace local root.
	CodeNoAncestorHasContext = codes.NotFound
)

// RegisterDistTracingRoot registers the current span (found via
// lookup.CurrentSpan) as a distributed-trace local root carrying
// traceID, with remoteParentSpan set for local roots whose parent
// lives in another process.
func RegisterDistTracingRoot(ctx context.Context, lookup AmbientLookup, traceID ident.TraceID, remoteParentSpan *ident.SpanID) error {
	handle, dispatcher, err := currentSpanAndDispatcher(ctx, lookup)
	if err != nil {
		return err
	}
	registry, err := registryOf(dispatcher)
	if err != nil {
		return err
	}

	registry.Record(handle, tracectx.TraceCtx{
		TraceID:          traceID,
		RemoteParentSpan: remoteParentSpan,
	})
	return nil
}

// CurrentDistTraceCtx resolves the trace context of the current span
// by walking its ancestors through the registry, returning the
// resolved trace ID and the current span's own promoted SpanID.
func CurrentDistTraceCtx(ctx context.Context, lookup AmbientLookup) (ident.TraceID, ident.SpanID, error) {
	handle, dispatcher, err := currentSpanAndDispatcher(ctx, lookup)
	if err != nil {
		return ident.TraceID{}, ident.SpanID{}, err
	}
	registry, err := registryOf(dispatcher)
	if err != nil {
		return ident.TraceID{}, ident.SpanID{}, err
	}
	store, ok := dispatcher.Downcast(layer.SpanStoreTypeID())
	if !ok {
		return ident.TraceID{}, ident.SpanID{}, status.Error(CodeSpanStoreMissing, "Ambient dispatcher does not expose a span store")
	}

	ancestors := tracectx.AncestorsOf(store.(tracectx.SpanStore), handle)
	traceCtx, ok := registry.EvalCtx(ancestors)
	if !ok {
		return ident.TraceID{}, ident.SpanID{}, status.Error(CodeNoAncestorHasContext, "No ancestor of the current span is registered as a distributed-trace root")
	}

	return traceCtx.TraceID, registry.Promote(handle), nil
}

func currentSpanAndDispatcher(ctx context.Context, lookup AmbientLookup) (tracectx.SpanHandle, tracectx.Dispatcher, error) {
	dispatcher, ok := lookup.CurrentDispatcher()
	if !ok {
		return 0, nil, status.Error(CodeLayerNotInstalled, "No ambient dispatcher installed")
	}
	handle, ok := lookup.CurrentSpan(ctx)
	if !ok {
		return 0, nil, status.Error(CodeNoCurrentSpan, "No span is active on the calling task")
	}
	return handle, dispatcher, nil
}

func registryOf(dispatcher tracectx.Dispatcher) (*tracectx.Registry, error) {
	registryAny, ok := dispatcher.Downcast(layer.RegistryTypeID())
	if !ok {
		return nil, status.Error(CodeLayerNotInstalled, "Ambient dispatcher does not expose a trace-context registry")
	}
	return registryAny.(*tracectx.Registry), nil
}
