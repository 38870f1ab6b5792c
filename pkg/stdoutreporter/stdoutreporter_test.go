package stdoutreporter_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/buildbarn/bb-disttrace/pkg/stdoutreporter"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
	"github.com/stretchr/testify/require"
)

func TestReportSpanWritesOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	r := stdoutreporter.NewWithWriter(&buf, stdoutreporter.Configuration{})

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	spanID := ident.SpanID{Handle: 1, Nonce: 2}
	parentID := ident.SpanID{Handle: 3, Nonce: 4}

	v := r.NewVisitor()
	v.RecordString("key", "value")

	r.ReportSpan(record.SpanRecord[visitor.FieldMap]{
		TraceID:     traceID,
		SpanID:      spanID,
		ParentID:    &parentID,
		Name:        "my-span",
		ServiceName: "svc",
		Target:      "tgt",
		InitTime:    time.Unix(1000, 0),
		Elapsed:     250 * time.Millisecond,
		Visitor:     v,
	})

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &decoded))
	require.Equal(t, "span", decoded["kind"])
	require.Equal(t, traceID.String(), decoded["trace.trace_id"])
	require.Equal(t, spanID.String(), decoded["trace.span_id"])
	require.Equal(t, parentID.String(), decoded["trace.parent_id"])
	require.Equal(t, "my-span", decoded["name"])
	require.Equal(t, float64(250), decoded["duration_ms"])
}

func TestReportEventWritesOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	r := stdoutreporter.NewWithWriter(&buf, stdoutreporter.Configuration{})

	traceID, err := ident.NewTraceID()
	require.NoError(t, err)
	parentID := ident.SpanID{Handle: 5, Nonce: 6}

	r.ReportEvent(record.EventRecord[visitor.FieldMap]{
		TraceID:     traceID,
		ParentID:    parentID,
		Name:        "my-event",
		ServiceName: "svc",
		Target:      "tgt",
		InitTime:    time.Unix(2000, 0),
		Visitor:     r.NewVisitor(),
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimRight(buf.Bytes(), "\n"), &decoded))
	require.Equal(t, "event", decoded["kind"])
	require.Equal(t, parentID.String(), decoded["trace.parent_id"])
	require.Equal(t, "my-event", decoded["name"])
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	r := stdoutreporter.NewWithWriter(&buf, stdoutreporter.Configuration{})

	const n = 50
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(i int) {
			r.ReportEvent(record.EventRecord[visitor.FieldMap]{
				Name:     "concurrent",
				ParentID: ident.SpanID{Handle: uint64(i + 1), Nonce: 1},
				InitTime: time.Unix(0, 0),
				Visitor:  r.NewVisitor(),
			})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, n)
	for _, line := range lines {
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(line, &decoded))
	}
}
