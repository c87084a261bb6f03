// Package evmtypes holds the small set of fixed-width value types shared by
// every layer of the execution engine above raw storage: internal/vm,
// internal/precompiles, internal/evmadapter, internal/pendingpool and
// internal/engine all exchange Address and Hash values rather than each
// defining their own, the way erigon-lib/common's Address/Hash are shared
// across erigon's packages.
package evmtypes

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Address is a 20-byte EVM account address.
type Address [20]byte

// Hash is a 32-byte EVM word: a storage slot, a storage value, a block or
// transaction hash.
type Hash [32]byte

// ZeroAddress is the all-zero address used for contract-creation "to" fields.
var ZeroAddress = Address{}

// ZeroHash is the all-zero hash. internal/engine replaces a zero Bitcoin
// block hash argument with a height-derived placeholder (see its
// substituteBlockHash and SPEC_FULL.md §9).
var ZeroHash = Hash{}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// BytesToAddress right-aligns b into an Address, truncating from the left
// if b is longer than 20 bytes (matches go-ethereum/erigon convention).
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > len(a) {
		b = b[len(b)-len(a):]
	}
	copy(a[len(a)-len(b):], b)
	return a
}

// BytesToHash right-aligns b into a Hash, truncating from the left if b is
// longer than 32 bytes.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

// HashFromHex decodes a "0x"-prefixed or bare hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Hash{}, err
	}
	if len(b) != 32 {
		return Hash{}, fmt.Errorf("evmtypes: hash %q is %d bytes, want 32", s, len(b))
	}
	return BytesToHash(b), nil
}

// AddressFromHex decodes a "0x"-prefixed or bare hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Address{}, err
	}
	if len(b) != 20 {
		return Address{}, fmt.Errorf("evmtypes: address %q is %d bytes, want 20", s, len(b))
	}
	return BytesToAddress(b), nil
}

func decodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// Keccak256 is the EVM's hash function, used for contract-address
// derivation, event topics and the transaction/receipt trie roots.
func Keccak256(data ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}
