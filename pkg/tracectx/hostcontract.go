// Package tracectx implements the trace-context registry and its
// lazy tree-walk resolution algorithm: the component that bridges a
// host span framework's in-process span tree to cross-process
// distributed trace identity.
//
// The package is deliberately not parameterised by a reporter; it
// only knows about SpanHandle (opaque, framework-owned) and the
// identifier types in pkg/tracectx/ident. Everything the registry
// needs from the host framework is expressed as the small set of
// interfaces in this file, so that any framework satisfying them
// (pkg/spanhost is the reference one) can host it.
package tracectx

import (
	"reflect"
)

// SpanHandle is the host framework's opaque per-span identifier. The
// core only ever copies it around and uses it as a map key; it never
// interprets its value. A zero handle is reserved by the framework as
// a sentinel for "no span".
type SpanHandle uint64

// IsZero reports whether h is the sentinel "no span" handle.
func (h SpanHandle) IsZero() bool {
	return h == 0
}

// TypeID names a concrete type for the purpose of the Dispatcher
// down-cast hook. reflect.Type already behaves exactly like the
// TypeId-like tag the host-framework contract calls for: comparable,
// unique per type, no registration step required.
type TypeID = reflect.Type

// TypeIDOf returns the TypeID of the type T, for use as the argument
// to Dispatcher.Downcast.
func TypeIDOf[T any]() TypeID {
	var zero T
	return reflect.TypeOf(&zero).Elem()
}

// ExtensionStore is the per-span extension slot storage owned by the
// host framework's span store. Access is typed via TypeID and must be
// O(1); the host framework serialises access to any one span's store
// (one writer at a time), so implementations of the core never need
// their own locking around it.
type ExtensionStore interface {
	// Get returns the extension of type id attached to the span, if
	// any.
	Get(id TypeID) (any, bool)
	// Set attaches or replaces the extension of type id.
	Set(id TypeID, value any)
	// Delete removes the extension of type id, if present.
	Delete(id TypeID)
}

// SpanRef is a read reference to a single span as known to the host
// framework's span store.
type SpanRef interface {
	// ID returns the handle this reference was looked up with.
	ID() SpanHandle
	// Parent returns the in-process parent of this span, if any.
	Parent() (SpanHandle, bool)
	// Extensions returns the per-span extension store for this span.
	Extensions() ExtensionStore
}

// SpanStore is the host framework's span lookup capability: given a
// handle, produce a SpanRef. A handle-derived iterator encountering a
// missing span indicates corrupt framework state and is treated as
// fatal by callers (see AncestorsOf).
type SpanStore interface {
	Lookup(handle SpanHandle) (SpanRef, bool)
}

// Dispatcher is the ambient, type-erased collaborator that out-of-band
// helper functions (pkg/tracectx/api) use to recover both the
// lifecycle layer and the registry without depending on the
// reporter's concrete type. The host framework installs exactly one
// Dispatcher process-wide (see pkg/spanhost.SetDispatcher); it is the
// only process-wide mutable state this package relies on.
type Dispatcher interface {
	// Downcast returns a pointer to the receiver's embedded value of
	// type id, if it has one. Implementations typically check id
	// against a small fixed set of TypeIDs (their own, and their
	// embedded Registry's) and return (self, true) or
	// (&self.registry, true) accordingly.
	Downcast(id TypeID) (any, bool)
}

// AncestorsOf returns an iterator, nearest first, over handle and all
// of its in-process ancestors, using store to walk parent links. A
// missing span for a handle already known to the store is a corrupt
// framework state and panics, per spec's panic-safety rule for
// internal invariant failures.
func AncestorsOf(store SpanStore, handle SpanHandle) []SpanRef {
	var chain []SpanRef
	for cur := handle; !cur.IsZero(); {
		ref, ok := store.Lookup(cur)
		if !ok {
			panic("tracectx: span store has no entry for a handle reachable from the ancestor chain")
		}
		chain = append(chain, ref)
		parent, hasParent := ref.Parent()
		if !hasParent {
			break
		}
		cur = parent
	}
	return chain
}
