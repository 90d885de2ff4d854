package idgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortIDIsDeterministic(t *testing.T) {
	require.Equal(t, ShortID("def-1", 12), ShortID("def-1", 12))
}

func TestShortIDDiffersAcrossInputs(t *testing.T) {
	require.NotEqual(t, ShortID("def-1", 12), ShortID("def-2", 12))
}

func TestShortIDRespectsRequestedLength(t *testing.T) {
	for _, n := range []int{1, 4, 12, 20} {
		require.Len(t, ShortID("some-id", n), n)
	}
}

func TestShortIDIsLowercaseAlphanumeric(t *testing.T) {
	id := ShortID("mixed-CASE-id-123", 16)
	for _, r := range id {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		require.True(t, isLower || isDigit, "unexpected rune %q in short id", r)
	}
}

func TestNewReturnsDistinctIdentifiers(t *testing.T) {
	require.NotEqual(t, New(), New())
}

func TestPortFromDomainIsDeterministicAndInRange(t *testing.T) {
	p1 := PortFromDomain("payments.example.com")
	p2 := PortFromDomain("payments.example.com")
	require.Equal(t, p1, p2)
	require.GreaterOrEqual(t, p1, uint32(20000))
	require.Less(t, p1, uint32(30000))
}

func TestPortFromDomainDiffersAcrossDomains(t *testing.T) {
	require.NotEqual(t, PortFromDomain("a.example.com"), PortFromDomain("b.example.com"))
}
