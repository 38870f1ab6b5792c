// Package otelreporter implements the reporter contract on top of the
// OpenTelemetry Go SDK, so that finished SpanRecords and EventRecords
// are exported through any of the SDK's ordinary exporters (OTLP over
// gRPC, Jaeger, ...) rather than a bespoke wire format.
package otelreporter

import (
	"fmt"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
	"go.opentelemetry.io/otel/attribute"
)

// fieldMapToAttributes converts a visitor.FieldMap into OpenTelemetry
// attributes, the same typed fan-out the teacher's
// NewKeyValueListFromProto performs in the opposite direction (proto
// KeyValue -> attribute.KeyValue). Field names have already been
// renamed on collision with reserved names by visitor.FieldMap itself.
func fieldMapToAttributes(fields visitor.FieldMap) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for name, value := range fields {
		switch v := value.(type) {
		case int64:
			attrs = append(attrs, attribute.Int64(name, v))
		case uint64:
			// OTel attributes have no native unsigned type; the
			// teacher's own KeyValue conversion (key_value.go) has
			// the same limitation and downcasts to int64.
			attrs = append(attrs, attribute.Int64(name, int64(v)))
		case bool:
			attrs = append(attrs, attribute.Bool(name, v))
		case string:
			attrs = append(attrs, attribute.String(name, v))
		default:
			attrs = append(attrs, attribute.String(name, fmt.Sprintf("%+v", v)))
		}
	}
	return attrs
}
