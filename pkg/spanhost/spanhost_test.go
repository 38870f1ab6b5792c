package spanhost_test

import (
	"context"
	"testing"

	"github.com/buildbarn/bb-disttrace/pkg/spanhost"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx"
	"github.com/stretchr/testify/require"
)

func TestOpenEstablishesParentFromCurrentSpan(t *testing.T) {
	host := spanhost.NewHost()
	ctx, root := host.Open(context.Background(), "root")

	current, ok := spanhost.CurrentSpan(ctx)
	require.True(t, ok)
	require.Equal(t, root, current)

	ctx, child := host.Open(ctx, "child")
	ref, ok := host.Lookup(child)
	require.True(t, ok)
	parent, ok := ref.Parent()
	require.True(t, ok)
	require.Equal(t, root, parent)

	current, ok = spanhost.CurrentSpan(ctx)
	require.True(t, ok)
	require.Equal(t, child, current)
}

func TestOpenWithoutAncestorHasNoParent(t *testing.T) {
	host := spanhost.NewHost()
	_, root := host.Open(context.Background(), "root")
	ref, ok := host.Lookup(root)
	require.True(t, ok)
	_, hasParent := ref.Parent()
	require.False(t, hasParent)
}

func TestCloseRemovesFromStore(t *testing.T) {
	host := spanhost.NewHost()
	_, handle := host.Open(context.Background(), "root")
	host.Close(handle)

	_, ok := host.Lookup(handle)
	require.False(t, ok)
}

func TestCurrentSpanOnBareContextIsAbsent(t *testing.T) {
	_, ok := spanhost.CurrentSpan(context.Background())
	require.False(t, ok)
}

func TestExtensionStoreGetSetDelete(t *testing.T) {
	host := spanhost.NewHost()
	_, handle := host.Open(context.Background(), "root")
	ref, ok := host.Lookup(handle)
	require.True(t, ok)

	typeID := tracectx.TypeIDOf[string]()
	ext := ref.Extensions()

	_, ok = ext.Get(typeID)
	require.False(t, ok)

	ext.Set(typeID, "value")
	v, ok := ext.Get(typeID)
	require.True(t, ok)
	require.Equal(t, "value", v)

	ext.Delete(typeID)
	_, ok = ext.Get(typeID)
	require.False(t, ok)
}

func TestSetDispatcherAndCurrentDispatcher(t *testing.T) {
	_, ok := spanhost.CurrentDispatcher()
	_ = ok // may be true or false depending on test order in the package; only check installation below.

	fake := fakeDispatcher{}
	spanhost.SetDispatcher(fake)

	got, ok := spanhost.CurrentDispatcher()
	require.True(t, ok)
	require.Equal(t, fake, got)
}

type fakeDispatcher struct{}

func (fakeDispatcher) Downcast(tracectx.TypeID) (any, bool) { return nil, false }

func TestSnapshotReflectsOpenSpans(t *testing.T) {
	host := spanhost.NewHost()
	_, root := host.Open(context.Background(), "root")
	ctx, _ := host.Open(context.Background(), "unrelated")
	_, child := host.Open(ctx, "child")

	snapshot := host.Snapshot()
	require.Len(t, snapshot, 3)

	byHandle := map[tracectx.SpanHandle]spanhost.OpenSpanInfo{}
	for _, info := range snapshot {
		byHandle[info.Handle] = info
	}
	require.Equal(t, "root", byHandle[root].Name)
	require.Equal(t, "child", byHandle[child].Name)

	host.Close(child)
	snapshot = host.Snapshot()
	require.Len(t, snapshot, 2)
}

func TestLookupMissingHandle(t *testing.T) {
	host := spanhost.NewHost()
	_, ok := host.Lookup(tracectx.SpanHandle(9999))
	require.False(t, ok)
}
