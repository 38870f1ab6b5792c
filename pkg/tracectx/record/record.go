// Package record defines the immutable payload types handed from the
// lifecycle layer to a reporter when a span closes or an event fires.
package record

import (
	"time"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
)

// SpanRecord carries a finished span's observable data.
type SpanRecord[V any] struct {
	TraceID     ident.TraceID
	SpanID      ident.SpanID
	ParentID    *ident.SpanID
	Name        string
	ServiceName string
	Target      string
	InitTime    time.Time
	Elapsed     time.Duration
	// Metadata is the host framework's opaque per-span metadata
	// pointer (e.g. callsite, level, module path); the core never
	// interprets it, only forwards it.
	Metadata any
	Visitor  V
}

// EventRecord carries a finished event's observable data. Events have
// no duration and always carry a non-nil ParentID: callers that find
// no parent drop the event instead of constructing a record.
type EventRecord[V any] struct {
	TraceID     ident.TraceID
	ParentID    ident.SpanID
	Name        string
	ServiceName string
	Target      string
	InitTime    time.Time
	Metadata    any
	Visitor     V
}
