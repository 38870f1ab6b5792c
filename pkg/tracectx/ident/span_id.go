package ident

import (
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SpanID is an externalisable span identifier: a pair of the host
// framework's opaque per-span handle value and a process-instance
// nonce, fixed at layer construction. Equality across processes
// therefore requires both a matching handle value and a matching
// instance nonce.
type SpanID struct {
	Handle uint64
	Nonce  uint64
}

// String encodes the SpanID as "{handle}-{nonce}" in base 10.
func (id SpanID) String() string {
	return fmt.Sprintf("%d-%d", id.Handle, id.Nonce)
}

// ParseSpanID parses the "{handle}-{nonce}" form produced by String.
func ParseSpanID(s string) (SpanID, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return SpanID{}, status.Errorf(codes.InvalidArgument, "Invalid span ID %#v: expected \"handle-nonce\"", s)
	}
	handle, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return SpanID{}, status.Errorf(codes.InvalidArgument, "Invalid span ID %#v: malformed handle: %s", s, err)
	}
	nonce, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return SpanID{}, status.Errorf(codes.InvalidArgument, "Invalid span ID %#v: malformed nonce: %s", s, err)
	}
	if handle == 0 {
		return SpanID{}, status.Errorf(codes.InvalidArgument, "Invalid span ID %#v: handle must be non-zero", s)
	}
	return SpanID{Handle: handle, Nonce: nonce}, nil
}

// InstanceNonceGenerator produces the single process-instance nonce
// that a lifecycle layer promotes every SpanHandle with. The reporter
// adapter's tests and the blackhole reporter may fix this to zero;
// production layers draw it from a random source once at construction.
type InstanceNonceGenerator func() (uint64, error)
