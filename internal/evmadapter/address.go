package evmadapter

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// createAddress derives a CREATE contract address as keccak256(rlp([sender,
// nonce]))[12:], matching go-ethereum's crypto.CreateAddress. No RLP library
// exists anywhere in the retrieval pack (erigon-lib's trimmed slice here
// only carries common/math and kv/tables.go), so rlpEncodeList below is a
// small purpose-built encoder covering exactly the two-element
// (address, uint64) list CREATE needs — not a general RLP codec.
func createAddress(sender evmtypes.Address, nonce uint64) evmtypes.Address {
	encoded := rlpEncodeList(rlpBytes(sender[:]), rlpUint64(nonce))
	hash := evmtypes.Keccak256(encoded)
	var addr evmtypes.Address
	copy(addr[:], hash[12:])
	return addr
}

// create2Address derives a CREATE2 contract address as
// keccak256(0xff ++ sender ++ salt ++ keccak256(initCode))[12:].
func create2Address(sender evmtypes.Address, salt *uint256.Int, initCode []byte) evmtypes.Address {
	codeHash := evmtypes.Keccak256(initCode)
	saltBytes := salt.Bytes32()
	buf := make([]byte, 0, 1+20+32+32)
	buf = append(buf, 0xff)
	buf = append(buf, sender[:]...)
	buf = append(buf, saltBytes[:]...)
	buf = append(buf, codeHash[:]...)
	hash := evmtypes.Keccak256(buf)
	var addr evmtypes.Address
	copy(addr[:], hash[12:])
	return addr
}

// rlpBytes encodes b as an RLP byte string.
func rlpBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return []byte{b[0]}
	}
	return append(rlpLengthPrefix(0x80, len(b)), b...)
}

// rlpUint64 encodes v as an RLP byte string of its minimal big-endian
// representation, per RLP's integer encoding rule (no leading zero bytes,
// and zero itself encodes as the empty string).
func rlpUint64(v uint64) []byte {
	if v == 0 {
		return []byte{0x80}
	}
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
	i := 0
	for i < 7 && b[i] == 0 {
		i++
	}
	return rlpBytes(b[i:])
}

// rlpEncodeList wraps already-encoded items in an RLP list prefix.
func rlpEncodeList(items ...[]byte) []byte {
	var body []byte
	for _, it := range items {
		body = append(body, it...)
	}
	return append(rlpLengthPrefix(0xc0, len(body)), body...)
}

// rlpLengthPrefix builds RLP's length-prefix byte(s) for a string (base
// 0x80) or list (base 0xc0) payload of the given length.
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
