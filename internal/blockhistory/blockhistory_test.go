package blockhistory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLatestReflectsMostRecentSet(t *testing.T) {
	c := New[uint64](nil)
	c.Set(1, 100)
	require.Equal(t, uint64(100), *c.Latest())

	c.Set(2, 300)
	require.Equal(t, uint64(300), *c.Latest())
}

func TestSetIsNoOpWhenValueUnchanged(t *testing.T) {
	c := New[uint64](nil)
	c.Set(1, 100)
	c.Set(2, 100) // same value at a later height: must not create a new version
	require.Equal(t, []uint64{0, 1}, c.heights)
}

func TestHistorySizeBounded(t *testing.T) {
	c := New[uint64](nil)
	for i := uint64(0); i < MaxHistorySize+5; i++ {
		c.Set(i+1, i) // distinct value every time so none are deduped away
	}
	require.Len(t, c.heights, MaxHistorySize+1)
}

func TestNoneInitialValue(t *testing.T) {
	c := New[uint64](nil)
	require.Nil(t, c.Latest())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := New[uint64](nil)
	c.Set(1, 100)

	encodeValue := func(v uint64) ([]byte, error) {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[7-i] = byte(v >> (8 * i))
		}
		return b, nil
	}
	decodeValue := func(b []byte) (uint64, error) {
		var v uint64
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
		return v, nil
	}

	encoded, err := c.Encode(encodeValue)
	require.NoError(t, err)

	decoded, err := Decode[uint64](encoded, decodeValue)
	require.NoError(t, err)
	require.Equal(t, uint64(100), *decoded.Latest())
}

func TestReorg(t *testing.T) {
	c := New[uint64](nil)
	c.Set(1, 100)
	c.Set(2, 200)

	c.Reorg(1)
	require.Equal(t, uint64(100), *c.Latest())
}

func TestReorgMultipleBlocks(t *testing.T) {
	c := New[uint64](nil)
	for i := uint64(1); i <= 11; i++ {
		c.Set(i, 100*i)
	}
	c.Reorg(5)
	require.Equal(t, uint64(500), *c.Latest())
}

func TestReorgAllBlocks(t *testing.T) {
	c := New[uint64](nil)
	for i := uint64(1); i <= 11; i++ {
		c.Set(i, 100*i)
	}
	c.Reorg(0)
	require.Nil(t, c.Latest())
}
