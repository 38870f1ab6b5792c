// Package teststub provides the mandatory test sink reporter: it
// stores every SpanRecord and EventRecord handed to it in
// mutex-guarded sequences so that tests can assert on exactly what was
// reported, in what order.
package teststub

import (
	"sync"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
)

// Reporter accumulates SpanRecords and EventRecords in the order
// ReportSpan/ReportEvent were called, guarded by a single mutex.
type Reporter struct {
	mu     sync.Mutex
	spans  []record.SpanRecord[visitor.FieldMap]
	events []record.EventRecord[visitor.FieldMap]
}

// New creates an empty Reporter.
func New() *Reporter {
	return &Reporter{}
}

func (r *Reporter) NewVisitor() visitor.FieldMap {
	return visitor.NewFieldMap()
}

func (r *Reporter) ReportSpan(rec record.SpanRecord[visitor.FieldMap]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, rec)
}

func (r *Reporter) ReportEvent(rec record.EventRecord[visitor.FieldMap]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, rec)
}

// Spans returns a snapshot of every SpanRecord reported so far, in
// report order.
func (r *Reporter) Spans() []record.SpanRecord[visitor.FieldMap] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record.SpanRecord[visitor.FieldMap](nil), r.spans...)
}

// Events returns a snapshot of every EventRecord reported so far, in
// report order.
func (r *Reporter) Events() []record.EventRecord[visitor.FieldMap] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record.EventRecord[visitor.FieldMap](nil), r.events...)
}
