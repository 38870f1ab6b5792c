package api_test

import (
	"context"
	"testing"

	"github.com/buildbarn/bb-disttrace/pkg/clock"
	"github.com/buildbarn/bb-disttrace/pkg/spanhost"
	"github.com/buildbarn/bb-disttrace/pkg/teststub"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/api"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/layer"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/status"
)

// noRegistryDispatcher exposes no capabilities at all, simulating an
// ambient Dispatcher installed by something other than pkg/tracectx/layer.
type noRegistryDispatcher struct{}

func (noRegistryDispatcher) Downcast(tracectx.TypeID) (any, bool) { return nil, false }

// noSpanStoreDispatcher exposes a registry but not a span store, an
// otherwise-impossible but defensive case api.go guards against.
type noSpanStoreDispatcher struct {
	registry *tracectx.Registry
}

func (d noSpanStoreDispatcher) Downcast(id tracectx.TypeID) (any, bool) {
	if id == layer.RegistryTypeID() {
		return d.registry, true
	}
	return nil, false
}

func lookupWith(dispatcher tracectx.Dispatcher, present bool, currentSpan tracectx.SpanHandle) api.AmbientLookup {
	return api.AmbientLookup{
		CurrentDispatcher: func() (tracectx.Dispatcher, bool) { return dispatcher, present },
		CurrentSpan: func(ctx context.Context) (tracectx.SpanHandle, bool) {
			if currentSpan.IsZero() {
				return 0, false
			}
			return currentSpan, true
		},
	}
}

func TestRegisterDistTracingRootNoDispatcher(t *testing.T) {
	lookup := lookupWith(nil, false, 1)
	err := api.RegisterDistTracingRoot(context.Background(), lookup, ident.TraceID{}, nil)
	require.Error(t, err)
	require.Equal(t, api.CodeLayerNotInstalled, status.Code(err))
}

func TestRegisterDistTracingRootNoCurrentSpan(t *testing.T) {
	lookup := lookupWith(noRegistryDispatcher{}, true, 0)
	err := api.RegisterDistTracingRoot(context.Background(), lookup, ident.TraceID{}, nil)
	require.Error(t, err)
	require.Equal(t, api.CodeNoCurrentSpan, status.Code(err))
}

func TestRegisterDistTracingRootNoRegistry(t *testing.T) {
	lookup := lookupWith(noRegistryDispatcher{}, true, 1)
	err := api.RegisterDistTracingRoot(context.Background(), lookup, ident.TraceID{}, nil)
	require.Error(t, err)
	require.Equal(t, api.CodeLayerNotInstalled, status.Code(err))
}

func TestCurrentDistTraceCtxNoSpanStore(t *testing.T) {
	registry := tracectx.NewRegistry(0, nil)
	lookup := lookupWith(noSpanStoreDispatcher{registry: registry}, true, 1)
	_, _, err := api.CurrentDistTraceCtx(context.Background(), lookup)
	require.Error(t, err)
	require.Equal(t, api.CodeSpanStoreMissing, status.Code(err))
}

func TestCurrentDistTraceCtxNoAncestorHasContext(t *testing.T) {
	host := spanhost.NewHost()
	reporter := teststub.New()
	l := layer.New[visitor.FieldMap](host, reporter, 3, "svc", clock.SystemClock, spanhost.CurrentSpan)
	spanhost.SetDispatcher(l)

	lookup := api.AmbientLookup{CurrentSpan: spanhost.CurrentSpan, CurrentDispatcher: spanhost.CurrentDispatcher}

	ctx, _ := host.Open(context.Background(), "root")
	_, _, err := api.CurrentDistTraceCtx(ctx, lookup)
	require.Error(t, err)
	require.Equal(t, api.CodeNoAncestorHasContext, status.Code(err))
}

func TestRegisterAndResolveRoundTrip(t *testing.T) {
	host := spanhost.NewHost()
	reporter := teststub.New()
	l := layer.New[visitor.FieldMap](host, reporter, 11, "svc", clock.SystemClock, spanhost.CurrentSpan)
	spanhost.SetDispatcher(l)

	ctx, root := host.Open(context.Background(), "root")
	l.OnNewSpan(root, "root", "", nil, nil)

	lookup := api.AmbientLookup{CurrentSpan: spanhost.CurrentSpan, CurrentDispatcher: spanhost.CurrentDispatcher}

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	require.NoError(t, api.RegisterDistTracingRoot(ctx, lookup, traceID, nil))

	gotTraceID, gotSpanID, err := api.CurrentDistTraceCtx(ctx, lookup)
	require.NoError(t, err)
	require.Equal(t, traceID, gotTraceID)
	require.Equal(t, l.Registry().Promote(root), gotSpanID)
}

func TestCurrentDistTraceCtxResolvesThroughAncestor(t *testing.T) {
	host := spanhost.NewHost()
	reporter := teststub.New()
	l := layer.New[visitor.FieldMap](host, reporter, 11, "svc", clock.SystemClock, spanhost.CurrentSpan)
	spanhost.SetDispatcher(l)

	ctx, root := host.Open(context.Background(), "root")
	l.OnNewSpan(root, "root", "", nil, nil)
	lookup := api.AmbientLookup{CurrentSpan: spanhost.CurrentSpan, CurrentDispatcher: spanhost.CurrentDispatcher}

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	require.NoError(t, api.RegisterDistTracingRoot(ctx, lookup, traceID, nil))

	ctx, child := host.Open(ctx, "child")
	l.OnNewSpan(child, "child", "", nil, nil)

	gotTraceID, gotSpanID, err := api.CurrentDistTraceCtx(ctx, lookup)
	require.NoError(t, err)
	require.Equal(t, traceID, gotTraceID)
	require.Equal(t, l.Registry().Promote(child), gotSpanID)
}
