package bnum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUint64(t *testing.T) {
	v, ok := ParseUint64("")
	require.True(t, ok)
	require.Zero(t, v)

	v, ok = ParseUint64("12000")
	require.True(t, ok)
	require.EqualValues(t, 12000, v)

	v, ok = ParseUint64("0x2ee0")
	require.True(t, ok)
	require.EqualValues(t, 12000, v)

	v, ok = ParseUint64("0X2EE0")
	require.True(t, ok)
	require.EqualValues(t, 12000, v)

	_, ok = ParseUint64("not-a-number")
	require.False(t, ok)
}

func TestHexOrDecimal64UnmarshalText(t *testing.T) {
	var h HexOrDecimal64
	require.NoError(t, h.UnmarshalText([]byte("331337")))
	require.EqualValues(t, 331337, h)

	require.NoError(t, h.UnmarshalText([]byte("0x50e49")))
	require.EqualValues(t, 331337, h)

	require.Error(t, h.UnmarshalText([]byte("bogus")))
}

func TestHexOrDecimal64MarshalText(t *testing.T) {
	h := HexOrDecimal64(331337)
	b, err := h.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "0x50e49", string(b))
}

func TestSafeAdd(t *testing.T) {
	sum, overflow := SafeAdd(1, 2)
	require.False(t, overflow)
	require.EqualValues(t, 3, sum)

	_, overflow = SafeAdd(math.MaxUint64, 1)
	require.True(t, overflow)
}

func TestSafeMul(t *testing.T) {
	product, overflow := SafeMul(100, 12000)
	require.False(t, overflow)
	require.EqualValues(t, 1_200_000, product)

	_, overflow = SafeMul(math.MaxUint64, 2)
	require.True(t, overflow)
}
