package ident_test

import (
	"testing"

	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/stretchr/testify/require"
)

func TestSpanIDRoundTrip(t *testing.T) {
	id := ident.SpanID{Handle: 42, Nonce: 7}
	parsed, err := ident.ParseSpanID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
	require.Equal(t, "42-7", id.String())
}

func TestParseSpanIDRejectsZeroHandle(t *testing.T) {
	_, err := ident.ParseSpanID("0-5")
	require.Error(t, err)
}

func TestParseSpanIDRejectsMalformedInput(t *testing.T) {
	for _, s := range []string{"", "no-dash-missing", "abc-def", "1", "1-"} {
		_, err := ident.ParseSpanID(s)
		require.Error(t, err, s)
	}
}
