// Package ident provides the externalisable identifier types used to
// carry distributed-trace identity across process boundaries:
// TraceID and SpanID.
package ident

import (
	"encoding/hex"

	"github.com/buildbarn/bb-disttrace/pkg/util"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HeaderTraceID and HeaderSpanID are the recommended field/header
// names applications may use to carry a TraceID and SpanID across a
// process boundary of their own choosing (HTTP headers, RPC metadata,
// message envelopes).
const (
	HeaderTraceID = "trace-id"
	HeaderSpanID  = "span-id"
)

// TraceID is an opaque, fixed-width distributed trace identifier. Its
// string form round-trips losslessly and carries no ordering
// guarantee.
type TraceID [16]byte

// NewTraceID generates a fresh TraceID using the process-wide random
// UUID generator (util.UUIDGenerator), the same injectable idiom the
// rest of this codebase uses for identifier generation.
func NewTraceID() (TraceID, error) {
	return NewTraceIDFromGenerator(uuid.NewRandom)
}

// NewTraceIDFromGenerator generates a TraceID from an arbitrary
// util.UUIDGenerator, letting tests substitute a deterministic one.
func NewTraceIDFromGenerator(generate util.UUIDGenerator) (TraceID, error) {
	generated, err := generate()
	if err != nil {
		return TraceID{}, util.StatusWrap(err, "Failed to generate trace ID")
	}
	return TraceID(generated), nil
}

// String returns the lowercase hexadecimal form of the TraceID.
func (id TraceID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 16-byte form of the TraceID. (The
// deterministic sampler hashes String(), not Bytes().)
func (id TraceID) Bytes() []byte {
	return id[:]
}

// IsZero returns true for the zero-valued TraceID. NewTraceID never
// produces it; ParseTraceID returns it for an all-zero input.
func (id TraceID) IsZero() bool {
	return id == TraceID{}
}

// ParseTraceID parses the hexadecimal form produced by String.
func ParseTraceID(s string) (TraceID, error) {
	var id TraceID
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return TraceID{}, util.StatusWrapf(err, "Invalid trace ID %#v", s)
	}
	if len(decoded) != len(id) {
		return TraceID{}, status.Errorf(codes.InvalidArgument, "Invalid trace ID %#v: expected %d bytes, got %d", s, len(id), len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}
