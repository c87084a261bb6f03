// Package codec implements the deterministic binary wire format used by
// every block-versioned value stored by this engine: fixed-width
// big-endian integers, length-prefixed byte strings and UTF-8 strings, a
// one-byte option tag ahead of optional fields, and a uint32 count prefix
// ahead of homogeneous sequences.
//
// Grounded on the shape of Encode/Decode pairs throughout
// original_source/db/src/types and original_source/src/db/types: a value
// either round-trips through Writer/Reader or the codec is wrong, there is
// no partial/streaming mode.
package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

// Writer accumulates a deterministic byte encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteBool appends a single byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteUint32 appends v as 4 big-endian bytes.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint64 appends v as 8 big-endian bytes.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint256 appends v as 32 big-endian bytes.
func (w *Writer) WriteUint256(v *uint256.Int) {
	var b [32]byte
	if v != nil {
		b = v.Bytes32()
	}
	w.buf = append(w.buf, b[:]...)
}

// WriteFixedBytes appends raw bytes with no length prefix. Only safe for
// fields whose length is implied by the schema (hashes, addresses).
func (w *Writer) WriteFixedBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteBytes appends a uint32 length prefix followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString appends a uint32 length prefix followed by the UTF-8 bytes of s.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// WriteSeqLen appends a uint32 count prefix for a sequence of n elements;
// callers then write each element themselves.
func (w *Writer) WriteSeqLen(n int) {
	w.WriteUint32(uint32(n))
}

// Reader consumes a deterministic byte encoding produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("codec: short read: need %d bytes, have %d", n, r.Remaining())
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads a single byte and interprets it as a boolean.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadUint32 reads 4 big-endian bytes.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 reads 8 big-endian bytes.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadUint256 reads 32 big-endian bytes into a *uint256.Int.
func (r *Reader) ReadUint256() (*uint256.Int, error) {
	b, err := r.take(32)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}

// ReadFixedBytes reads exactly n raw bytes with no length prefix.
func (r *Reader) ReadFixedBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadBytes reads a uint32 length prefix followed by that many bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return r.ReadFixedBytes(int(n))
}

// ReadString reads a length-prefixed UTF-8 string, rejecting bytes that are
// not valid UTF-8 rather than silently admitting them.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("codec: string is not valid UTF-8")
	}
	return string(b), nil
}

// ReadSeqLen reads a uint32 sequence-count prefix.
func (r *Reader) ReadSeqLen() (int, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// WriteOption writes the option tag (0 absent, 1 present) followed by the
// encoded value when present.
func WriteOption[T any](w *Writer, v *T, enc func(*Writer, T)) {
	if v == nil {
		w.WriteUint8(0)
		return
	}
	w.WriteUint8(1)
	enc(w, *v)
}

// ReadOption reads an option tag and, if present, decodes the value with dec.
func ReadOption[T any](r *Reader, dec func(*Reader) (T, error)) (*T, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	v, err := dec(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteSeq writes a sequence-count prefix followed by each element.
func WriteSeq[T any](w *Writer, items []T, enc func(*Writer, T)) {
	w.WriteSeqLen(len(items))
	for _, item := range items {
		enc(w, item)
	}
}

// ReadSeq reads a sequence-count prefix followed by that many elements.
func ReadSeq[T any](r *Reader, dec func(*Reader) (T, error)) ([]T, error) {
	n, err := r.ReadSeqLen()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v, err := dec(r)
		if err != nil {
			return nil, fmt.Errorf("codec: element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Encoder is implemented by every value this engine persists.
type Encoder interface {
	Encode() ([]byte, error)
}

// Decoder is implemented by every value this engine persists, via a
// pointer receiver that populates the zero value in place.
type Decoder interface {
	Decode([]byte) error
}
