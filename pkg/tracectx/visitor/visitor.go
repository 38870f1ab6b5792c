// Package visitor defines the field-collection abstraction that the
// host span framework uses to report typed field values on a span or
// event, and the reserved-name handling shared by every reporter.
package visitor

import "fmt"

// Visitor accepts field records from the host framework. The reporters
// in this module all use FieldMap below and convert it into whatever
// representation their backend wants (a JSON object, an OTel attribute
// set, ...).
type Visitor interface {
	RecordInt64(name string, value int64)
	RecordUint64(name string, value uint64)
	RecordBool(name string, value bool)
	RecordString(name string, value string)
	// RecordDebug records a value for which only a printable
	// ("debug") representation is available; implementations
	// typically call fmt.Sprintf("%+v", value) or equivalent.
	RecordDebug(name string, value any)
}

// ReservedNames are the record field names owned by the reporter
// contract (spec §4.2, §6). A user-supplied field whose name collides
// with one of these is renamed with Rename; FieldMap's Record* methods
// apply Rename themselves.
var ReservedNames = map[string]struct{}{
	"trace.trace_id":  {},
	"trace.span_id":   {},
	"trace.parent_id": {},
	"service_name":    {},
	"duration_ms":     {},
	"level":           {},
	"Timestamp":       {},
	"name":            {},
	"target":          {},
}

// ReservedFieldPrefix distinguishes a user field renamed because it
// collided with a ReservedNames entry.
const ReservedFieldPrefix = "user."

// Rename returns name unchanged unless it collides with a reserved
// record field name, in which case it returns a prefixed form that no
// longer collides.
func Rename(name string) string {
	if _, reserved := ReservedNames[name]; reserved {
		return fmt.Sprintf("%s%s", ReservedFieldPrefix, name)
	}
	return name
}

// FieldMap is the stock Visitor implementation shared by every
// reporter adapter in this module (pkg/blackholereporter,
// pkg/teststub, pkg/stdoutreporter, pkg/otelreporter,
// pkg/honeyreporter): a plain map from (possibly renamed) field name
// to value. Standardising on one Visitor type lets
// pkg/global.ApplyConfiguration build a single
// *layer.Layer[visitor.FieldMap] and switch reporter backends under it
// at runtime, rather than needing one generic instantiation per
// backend chosen only at compile time.
type FieldMap map[string]any

// NewFieldMap creates an empty FieldMap.
func NewFieldMap() FieldMap {
	return FieldMap{}
}

func (f FieldMap) RecordInt64(name string, value int64)   { f[Rename(name)] = value }
func (f FieldMap) RecordUint64(name string, value uint64) { f[Rename(name)] = value }
func (f FieldMap) RecordBool(name string, value bool)     { f[Rename(name)] = value }
func (f FieldMap) RecordString(name string, value string) { f[Rename(name)] = value }
func (f FieldMap) RecordDebug(name string, value any) {
	f[Rename(name)] = fmt.Sprintf("%+v", value)
}
