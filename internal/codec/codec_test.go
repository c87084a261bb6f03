package codec

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(7)
	w.WriteBool(true)
	w.WriteUint32(1234)
	w.WriteUint64(9876543210)
	w.WriteUint256(uint256.NewInt(42))
	w.WriteBytes([]byte("hello"))
	w.WriteString("world")

	r := NewReader(w.Bytes())

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	require.EqualValues(t, 7, u8)

	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	require.EqualValues(t, 1234, u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	require.EqualValues(t, 9876543210, u64)

	u256, err := r.ReadUint256()
	require.NoError(t, err)
	require.True(t, u256.Eq(uint256.NewInt(42)))

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), bs)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "world", s)

	require.Zero(t, r.Remaining())
}

func TestReadStringRejectsInvalidUTF8(t *testing.T) {
	w := NewWriter()
	w.WriteBytes([]byte{0xff, 0xfe, 0xfd})

	r := NewReader(w.Bytes())
	_, err := r.ReadString()
	require.Error(t, err)
}

func TestOptionRoundTrip(t *testing.T) {
	w := NewWriter()
	var present *uint64 = new(uint64)
	*present = 100
	WriteOption(w, present, func(w *Writer, v uint64) { w.WriteUint64(v) })
	WriteOption[uint64](w, nil, func(w *Writer, v uint64) { w.WriteUint64(v) })

	r := NewReader(w.Bytes())
	got, err := ReadOption(r, func(r *Reader) (uint64, error) { return r.ReadUint64() })
	require.NoError(t, err)
	require.NotNil(t, got)
	require.EqualValues(t, 100, *got)

	gotNil, err := ReadOption(r, func(r *Reader) (uint64, error) { return r.ReadUint64() })
	require.NoError(t, err)
	require.Nil(t, gotNil)
}

func TestSeqRoundTrip(t *testing.T) {
	w := NewWriter()
	WriteSeq(w, []uint64{1, 2, 3}, func(w *Writer, v uint64) { w.WriteUint64(v) })

	r := NewReader(w.Bytes())
	got, err := ReadSeq(r, func(r *Reader) (uint64, error) { return r.ReadUint64() })
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, got)
}

func TestShortReadIsAnError(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	_, err := r.ReadUint64()
	require.Error(t, err)
}
