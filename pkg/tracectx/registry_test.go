package tracectx_test

import (
	"context"
	"testing"

	"github.com/buildbarn/bb-disttrace/pkg/spanhost"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/stretchr/testify/require"
)

// openChain opens a linear chain of n spans (root first, deepest
// last) on host, returning the handles in the same order.
func openChain(host *spanhost.Host, n int) []tracectx.SpanHandle {
	ctx := context.Background()
	handles := make([]tracectx.SpanHandle, 0, n)
	for i := 0; i < n; i++ {
		var handle tracectx.SpanHandle
		ctx, handle = host.Open(ctx, "span")
		handles = append(handles, handle)
	}
	return handles
}

func TestEvalCtxResolvesDirectlyRegisteredRoot(t *testing.T) {
	host := spanhost.NewHost()
	registry := tracectx.NewRegistry(0, nil)
	handles := openChain(host, 1)

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	registry.Record(handles[0], tracectx.TraceCtx{TraceID: traceID})

	ancestors := tracectx.AncestorsOf(host, handles[0])
	ctx, ok := registry.EvalCtx(ancestors)
	require.True(t, ok)
	require.Equal(t, traceID, ctx.TraceID)
	require.Nil(t, ctx.RemoteParentSpan)
}

func TestEvalCtxResolvesThroughDistantAncestor(t *testing.T) {
	host := spanhost.NewHost()
	registry := tracectx.NewRegistry(0, nil)
	handles := openChain(host, 4)

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	registry.Record(handles[0], tracectx.TraceCtx{TraceID: traceID})

	// Resolve from the deepest descendant; the root is 3 hops away.
	leaf := handles[len(handles)-1]
	ctx, ok := registry.EvalCtx(tracectx.AncestorsOf(host, leaf))
	require.True(t, ok)
	require.Equal(t, traceID, ctx.TraceID)
}

func TestEvalCtxCachesAlongWalkedPath(t *testing.T) {
	host := spanhost.NewHost()
	registry := tracectx.NewRegistry(0, nil)
	handles := openChain(host, 3)

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	registry.Record(handles[0], tracectx.TraceCtx{TraceID: traceID})

	leaf := handles[len(handles)-1]
	_, ok := registry.EvalCtx(tracectx.AncestorsOf(host, leaf))
	require.True(t, ok)

	// A second resolution from the same leaf must still agree, even
	// if the registry's own record were to disappear: the leaf's own
	// extension now carries the cached, non-root context.
	ctx, ok := registry.EvalCtx(tracectx.AncestorsOf(host, leaf))
	require.True(t, ok)
	require.Equal(t, traceID, ctx.TraceID)
}

func TestEvalCtxClearsRemoteParentOnDescendants(t *testing.T) {
	host := spanhost.NewHost()
	registry := tracectx.NewRegistry(0, nil)
	handles := openChain(host, 3)

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	remoteParent := ident.SpanID{Handle: 99, Nonce: 1}
	registry.Record(handles[0], tracectx.TraceCtx{TraceID: traceID, RemoteParentSpan: &remoteParent})

	// The root itself keeps RemoteParentSpan.
	rootCtx, ok := registry.EvalCtx(tracectx.AncestorsOf(host, handles[0]))
	require.True(t, ok)
	require.NotNil(t, rootCtx.RemoteParentSpan)
	require.Equal(t, remoteParent, *rootCtx.RemoteParentSpan)

	// A descendant never sees it.
	leafCtx, ok := registry.EvalCtx(tracectx.AncestorsOf(host, handles[len(handles)-1]))
	require.True(t, ok)
	require.Nil(t, leafCtx.RemoteParentSpan)
}

func TestEvalCtxUnregisteredTreeFindsNothing(t *testing.T) {
	host := spanhost.NewHost()
	registry := tracectx.NewRegistry(0, nil)
	handles := openChain(host, 3)

	_, ok := registry.EvalCtx(tracectx.AncestorsOf(host, handles[len(handles)-1]))
	require.False(t, ok)
}

func TestRecordIsFirstWriteWins(t *testing.T) {
	host := spanhost.NewHost()
	registry := tracectx.NewRegistry(0, nil)
	handles := openChain(host, 1)

	first, err := ident.NewTraceID()
	require.NoError(t, err)
	second, err := ident.NewTraceID()
	require.NoError(t, err)

	registry.Record(handles[0], tracectx.TraceCtx{TraceID: first})
	registry.Record(handles[0], tracectx.TraceCtx{TraceID: second})

	stored, ok := registry.Lookup(handles[0])
	require.True(t, ok)
	require.Equal(t, first, stored.TraceID)
}

func TestPromoteIsPureAndStable(t *testing.T) {
	registry := tracectx.NewRegistry(123, nil)
	a := registry.Promote(5)
	b := registry.Promote(5)
	require.Equal(t, a, b)
	require.Equal(t, uint64(5), a.Handle)
	require.Equal(t, uint64(123), a.Nonce)
}

func TestRegistrySizeReflectsRegistrations(t *testing.T) {
	host := spanhost.NewHost()
	registry := tracectx.NewRegistry(0, nil)
	handles := openChain(host, 2)
	require.Equal(t, 0, registry.Size())

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	registry.Record(handles[0], tracectx.TraceCtx{TraceID: traceID})
	require.Equal(t, 1, registry.Size())

	registry.Record(handles[1], tracectx.TraceCtx{TraceID: traceID})
	require.Equal(t, 2, registry.Size())
}

func TestEvalCtxConcurrentResolutionAgrees(t *testing.T) {
	host := spanhost.NewHost()
	registry := tracectx.NewRegistry(0, nil)
	handles := openChain(host, 5)

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	registry.Record(handles[0], tracectx.TraceCtx{TraceID: traceID})

	leaf := handles[len(handles)-1]
	const callers = 16
	results := make(chan ident.TraceID, callers)
	for i := 0; i < callers; i++ {
		go func() {
			ctx, ok := registry.EvalCtx(tracectx.AncestorsOf(host, leaf))
			require.True(t, ok)
			results <- ctx.TraceID
		}()
	}
	for i := 0; i < callers; i++ {
		require.Equal(t, traceID, <-results)
	}
}
