// Package stdoutreporter provides the "stdout stub" reporter mandated
// by spec.md's reporter contract section: a reporter for local
// debugging and examples that prints every finished span and event as
// one JSON document per line to an io.Writer.
package stdoutreporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
)

// Configuration controls how Reporter renders records.
type Configuration struct {
	// PrettyPrint indents the printed JSON document for readability.
	PrettyPrint bool
}

// Reporter prints every finished SpanRecord and EventRecord to Writer,
// one JSON document per record. Writes are serialised by a mutex so
// that concurrent spans do not interleave partial lines.
type Reporter struct {
	writer      io.Writer
	prettyPrint bool

	mu sync.Mutex
}

// New creates a Reporter that writes to os.Stdout.
func New(configuration Configuration) *Reporter {
	return NewWithWriter(os.Stdout, configuration)
}

// NewWithWriter creates a Reporter that writes to an arbitrary writer,
// for tests that want to capture the printed output.
func NewWithWriter(w io.Writer, configuration Configuration) *Reporter {
	return &Reporter{writer: w, prettyPrint: configuration.PrettyPrint}
}

func (r *Reporter) NewVisitor() visitor.FieldMap {
	return visitor.NewFieldMap()
}

type spanLine struct {
	Kind        string         `json:"kind"`
	TraceID     string         `json:"trace.trace_id"`
	SpanID      string         `json:"trace.span_id"`
	ParentID    *string        `json:"trace.parent_id,omitempty"`
	Name        string         `json:"name"`
	ServiceName string         `json:"service_name"`
	Target      string         `json:"target"`
	Timestamp   time.Time      `json:"Timestamp"`
	DurationMs  int64          `json:"duration_ms"`
	Fields      visitor.FieldMap `json:"fields"`
}

type eventLine struct {
	Kind        string         `json:"kind"`
	TraceID     string         `json:"trace.trace_id"`
	ParentID    string         `json:"trace.parent_id"`
	Name        string         `json:"name"`
	ServiceName string         `json:"service_name"`
	Target      string         `json:"target"`
	Timestamp   time.Time      `json:"Timestamp"`
	Fields      visitor.FieldMap `json:"fields"`
}

func (r *Reporter) ReportSpan(rec record.SpanRecord[visitor.FieldMap]) {
	var parentID *string
	if rec.ParentID != nil {
		s := rec.ParentID.String()
		parentID = &s
	}
	r.write(spanLine{
		Kind:        "span",
		TraceID:     rec.TraceID.String(),
		SpanID:      rec.SpanID.String(),
		ParentID:    parentID,
		Name:        rec.Name,
		ServiceName: rec.ServiceName,
		Target:      rec.Target,
		Timestamp:   rec.InitTime.UTC(),
		DurationMs:  rec.Elapsed.Milliseconds(),
		Fields:      rec.Visitor,
	})
}

func (r *Reporter) ReportEvent(rec record.EventRecord[visitor.FieldMap]) {
	r.write(eventLine{
		Kind:        "event",
		TraceID:     rec.TraceID.String(),
		ParentID:    rec.ParentID.String(),
		Name:        rec.Name,
		ServiceName: rec.ServiceName,
		Target:      rec.Target,
		Timestamp:   rec.InitTime.UTC(),
		Fields:      rec.Visitor,
	})
}

func (r *Reporter) write(line any) {
	var (
		data []byte
		err  error
	)
	if r.prettyPrint {
		data, err = json.MarshalIndent(line, "", "  ")
	} else {
		data, err = json.Marshal(line)
	}
	if err != nil {
		// Reporter transmit failures are logged and swallowed, never
		// surfaced to the caller (spec §7).
		fmt.Fprintf(os.Stderr, "stdoutreporter: failed to marshal record: %s\n", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.writer.Write(data)
	r.writer.Write([]byte("\n"))
}
