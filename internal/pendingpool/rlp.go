package pendingpool

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var errMalformedRLP = errors.New("pendingpool: malformed RLP")

// rlpItem is either a byte string (list == nil) or a list of items, the
// same shape the reference client's RLP decoder produces before typed
// field extraction.
type rlpItem struct {
	bytes []byte
	list  []rlpItem
}

// rlpDecode parses the single top-level RLP item at the start of data and
// returns it along with any trailing bytes. Covers exactly the string and
// list encodings a legacy transaction uses; does not attempt arbitrary
// nested depth limits since transaction RLP is shallow by construction.
func rlpDecode(data []byte) (rlpItem, []byte, error) {
	if len(data) == 0 {
		return rlpItem{}, nil, errMalformedRLP
	}
	b0 := data[0]
	switch {
	case b0 < 0x80:
		return rlpItem{bytes: data[:1]}, data[1:], nil
	case b0 < 0xb8:
		n := int(b0 - 0x80)
		if len(data) < 1+n {
			return rlpItem{}, nil, errMalformedRLP
		}
		return rlpItem{bytes: data[1 : 1+n]}, data[1+n:], nil
	case b0 < 0xc0:
		lenOfLen := int(b0 - 0xb7)
		if len(data) < 1+lenOfLen {
			return rlpItem{}, nil, errMalformedRLP
		}
		n := decodeLength(data[1 : 1+lenOfLen])
		start := 1 + lenOfLen
		if len(data) < start+n {
			return rlpItem{}, nil, errMalformedRLP
		}
		return rlpItem{bytes: data[start : start+n]}, data[start+n:], nil
	case b0 < 0xf8:
		n := int(b0 - 0xc0)
		if len(data) < 1+n {
			return rlpItem{}, nil, errMalformedRLP
		}
		items, err := rlpDecodeList(data[1 : 1+n])
		if err != nil {
			return rlpItem{}, nil, err
		}
		return rlpItem{list: items}, data[1+n:], nil
	default:
		lenOfLen := int(b0 - 0xf7)
		if len(data) < 1+lenOfLen {
			return rlpItem{}, nil, errMalformedRLP
		}
		n := decodeLength(data[1 : 1+lenOfLen])
		start := 1 + lenOfLen
		if len(data) < start+n {
			return rlpItem{}, nil, errMalformedRLP
		}
		items, err := rlpDecodeList(data[start : start+n])
		if err != nil {
			return rlpItem{}, nil, err
		}
		return rlpItem{list: items}, data[start+n:], nil
	}
}

func decodeLength(b []byte) int {
	n := 0
	for _, c := range b {
		n = n<<8 | int(c)
	}
	return n
}

func rlpDecodeList(data []byte) ([]rlpItem, error) {
	var items []rlpItem
	for len(data) > 0 {
		item, rest, err := rlpDecode(data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		data = rest
	}
	return items, nil
}

func uint64FromBytes(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func uint256FromBytes(b []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(b)
}

// rlpBytes encodes b as an RLP byte string.
func rlpBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return []byte{b[0]}
	}
	return append(rlpLengthPrefix(0x80, len(b)), b...)
}

func rlpUint(v *uint256.Int) []byte {
	if v == nil || v.IsZero() {
		return []byte{0x80}
	}
	return rlpBytes(v.Bytes())
}

func rlpUint64(v uint64) []byte {
	return rlpUint(new(uint256.Int).SetUint64(v))
}

func rlpEncodeList(items ...[]byte) []byte {
	var body []byte
	for _, it := range items {
		body = append(body, it...)
	}
	return append(rlpLengthPrefix(0xc0, len(body)), body...)
}

func rlpLengthPrefix(base byte, length int) []byte {
	if length < 56 {
		return []byte{base + byte(length)}
	}
	var lenBytes []byte
	n := length
	for n > 0 {
		lenBytes = append([]byte{byte(n & 0xff)}, lenBytes...)
		n >>= 8
	}
	return append([]byte{base + 55 + byte(len(lenBytes))}, lenBytes...)
}

func requireList(item rlpItem, n int) error {
	if item.list == nil || len(item.list) != n {
		return fmt.Errorf("%w: expected %d-element list, got %d", errMalformedRLP, n, len(item.list))
	}
	return nil
}
