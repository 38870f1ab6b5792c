package tracesampler

import (
	"sync"
	"time"

	"github.com/buildbarn/bb-disttrace/pkg/clock"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
)

// RateLimited caps the number of ShouldReport calls (one per record,
// not per trace) that are granted per epoch, independent of the deterministic per-trace predicate above. Grounded
// on the teacher's epoch-based maximumRateSampler: each epoch grants a
// fixed budget of samples; once it is exhausted, further calls are
// dropped until the next epoch begins.
type RateLimited struct {
	clock           clock.Clock
	samplesPerEpoch int
	epochDuration   time.Duration

	mu               sync.Mutex
	samplesRemaining int
	epochEnd         time.Time
}

// NewRateLimited creates a RateLimited sampler permitting at most
// samplesPerEpoch calls to ShouldReport to return true per epoch. An
// epoch lasts epochDuration and starts at the first call made after
// the previous epoch ended.
func NewRateLimited(clk clock.Clock, samplesPerEpoch int, epochDuration time.Duration) *RateLimited {
	return &RateLimited{
		clock:           clk,
		samplesPerEpoch: samplesPerEpoch,
		epochDuration:   epochDuration,
	}
}

// ShouldReport consumes one unit of the current epoch's budget and
// reports whether it was available. The trace ID is accepted, not
// consulted, so that RateLimited satisfies reporter.Sampler and
// composes with the deterministic per-trace predicate above; rate
// limiting here is purely a function of call volume and wall time.
func (s *RateLimited) ShouldReport(ident.TraceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.samplesRemaining > 0 {
		s.samplesRemaining--
		return true
	}
	if now := s.clock.Now(); s.samplesPerEpoch > 0 && !now.Before(s.epochEnd) {
		s.samplesRemaining = s.samplesPerEpoch - 1
		s.epochEnd = now.Add(s.epochDuration)
		return true
	}
	return false
}
