// Package tracesampler provides the optional sampling gate of
// spec.md §4.7: a predicate installed on a reporter, not on the
// resolution algorithm, that decides whether a given trace should be
// reported.
package tracesampler

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
)

// maxUint32 is the largest value a big-endian uint32 can hold; used as
// the denominator of the acceptance threshold below.
const maxUint32 = ^uint32(0)

// ShouldReport implements the reference deterministic sampler: it
// takes the first 4 bytes of a cryptographic hash of the trace ID's
// external (string) form, interprets them as a big-endian unsigned
// integer, and accepts iff that value is at most max_u32/rate. The
// same trace ID always yields the same answer, so sampling is
// trace-level, not per-event: either every span and event of a trace
// is reported, or none are.
//
// A rate of 1 reports every trace; a rate of 0 reports none.
func ShouldReport(traceID ident.TraceID, rate uint32) bool {
	if rate == 0 {
		return false
	}
	sum := sha256.Sum256([]byte(traceID.String()))
	value := binary.BigEndian.Uint32(sum[:4])
	threshold := maxUint32 / rate
	return value <= threshold
}

// Deterministic adapts ShouldReport to a reusable, rate-bound
// predicate value, for callers that want to install it once on a
// reporter without re-threading the rate at every call site.
type Deterministic struct {
	Rate uint32
}

// ShouldReport reports whether traceID should be sampled at d's rate.
func (d Deterministic) ShouldReport(traceID ident.TraceID) bool {
	return ShouldReport(traceID, d.Rate)
}
