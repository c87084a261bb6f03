package pendingpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

func addr(b byte) evmtypes.Address {
	var a evmtypes.Address
	a[19] = b
	return a
}

func tx(nonce uint64) *Tx {
	return &Tx{From: addr(1), Nonce: nonce}
}

func TestPutTakeRoundTrip(t *testing.T) {
	p := New(10)
	p.Put(tx(5), 100)

	got, ok := p.Take(addr(1), 5)
	require.True(t, ok)
	require.EqualValues(t, 5, got.Nonce)

	_, ok = p.Take(addr(1), 5)
	require.False(t, ok)
}

func TestDrainContiguousStopsAtGap(t *testing.T) {
	p := New(10)
	p.Put(tx(2), 0)
	p.Put(tx(3), 0)
	// nonce 4 deliberately missing

	drained := p.DrainContiguous(addr(1), 2)
	require.Len(t, drained, 2)
	require.EqualValues(t, 2, drained[0].Nonce)
	require.EqualValues(t, 3, drained[1].Nonce)

	// nothing left to drain from 4 onward
	require.Empty(t, p.DrainContiguous(addr(1), 4))
}

func TestEvictStaleDropsOldEntries(t *testing.T) {
	p := New(10)
	p.Put(tx(1), 5) // admitted at height 5

	p.EvictStale(15) // 15 - 5 == 10, not yet past maxAge
	_, ok := p.Take(addr(1), 1)
	require.True(t, ok)

	p.Put(tx(1), 5)
	p.EvictStale(16) // 16 - 5 == 11 > maxAge(10)
	_, ok = p.Take(addr(1), 1)
	require.False(t, ok)
}

func TestContentSnapshotIsACopy(t *testing.T) {
	p := New(10)
	p.Put(tx(1), 0)

	snap := p.Content()
	require.Len(t, snap, 1)
	require.Contains(t, snap[addr(1)], uint64(1))

	p.Put(tx(2), 0)
	require.NotContains(t, snap[addr(1)], uint64(2), "snapshot must not alias later pool mutations")
}

func TestRLPRoundTripList(t *testing.T) {
	encoded := rlpEncodeList(rlpUint64(9), rlpBytes([]byte("hello")), rlpBytes(nil))
	item, rest, err := rlpDecode(encoded)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Len(t, item.list, 3)
	require.EqualValues(t, 9, uint64FromBytes(item.list[0].bytes))
	require.Equal(t, []byte("hello"), item.list[1].bytes)
	require.Empty(t, item.list[2].bytes)
}

func TestRLPLongStringLengthPrefix(t *testing.T) {
	long := make([]byte, 60)
	for i := range long {
		long[i] = byte(i)
	}
	encoded := rlpBytes(long)
	item, rest, err := rlpDecode(encoded)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, long, item.bytes)
}

func TestSplitSignatureVRejectsPreEIP155(t *testing.T) {
	_, _, err := splitSignatureV(27)
	require.Error(t, err)
}

func TestSplitSignatureVRecoversChainIDAndRecID(t *testing.T) {
	// chainId=331337, recid=1: v = 331337*2 + 35 + 1 = 662710
	chainID, recID, err := splitSignatureV(662710)
	require.NoError(t, err)
	require.EqualValues(t, 331337, chainID)
	require.EqualValues(t, 1, recID)
}

func TestLegacySigningHashDeterministic(t *testing.T) {
	to := addr(9)
	h1 := legacySigningHash(1, nil, 100000, &to, nil, []byte{1, 2, 3}, 331337)
	h2 := legacySigningHash(1, nil, 100000, &to, nil, []byte{1, 2, 3}, 331337)
	require.Equal(t, h1, h2)

	h3 := legacySigningHash(2, nil, 100000, &to, nil, []byte{1, 2, 3}, 331337)
	require.NotEqual(t, h1, h3)
}
