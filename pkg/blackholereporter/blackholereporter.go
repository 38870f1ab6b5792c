// Package blackholereporter provides the mandatory no-op reporter: it
// accepts a visitor.FieldMap and discards every record handed to it.
// Useful as the reporter for a layer that exists only to exercise the
// registry and resolution algorithm in tests.
package blackholereporter

import (
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
)

// Reporter discards every SpanRecord and EventRecord handed to it.
type Reporter struct{}

// New creates a Reporter.
func New() *Reporter {
	return &Reporter{}
}

func (*Reporter) NewVisitor() visitor.FieldMap { return visitor.NewFieldMap() }

func (*Reporter) ReportSpan(record.SpanRecord[visitor.FieldMap]) {}

func (*Reporter) ReportEvent(record.EventRecord[visitor.FieldMap]) {}
