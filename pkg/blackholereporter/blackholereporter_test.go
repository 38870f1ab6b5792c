package blackholereporter_test

import (
	"testing"

	"github.com/buildbarn/bb-disttrace/pkg/blackholereporter"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
	"github.com/stretchr/testify/require"
)

func TestReporterDiscardsEverything(t *testing.T) {
	r := blackholereporter.New()
	v := r.NewVisitor()
	require.NotNil(t, v)

	v.RecordString("key", "value")

	require.NotPanics(t, func() {
		r.ReportSpan(record.SpanRecord[visitor.FieldMap]{Name: "span", Visitor: v})
		r.ReportEvent(record.EventRecord[visitor.FieldMap]{Name: "event", Visitor: v})
	})
}
