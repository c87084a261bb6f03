package precompiles

import (
	"encoding/hex"
	"errors"

	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// This file hand-rolls just enough Solidity ABI encoding/decoding for the
// six fixed function signatures in this package. No ABI codec library
// appears anywhere in the retrieval pack (the Rust original leans on
// alloy_sol_types/solabi, both Rust-only), so the wire format here is
// written directly against the ABI spec: 32-byte words for static values,
// and the standard offset-then-length-then-data layout for each dynamic
// bytes/string/array argument.

var errABI = errors.New("precompiles: malformed abi-encoded input")

func hexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

func word32(b []byte) [32]byte {
	var w [32]byte
	if len(b) >= 32 {
		copy(w[:], b[len(b)-32:])
	} else {
		copy(w[32-len(b):], b)
	}
	return w
}

func readWord(data []byte, offset int) ([32]byte, error) {
	if offset < 0 || offset+32 > len(data) {
		return [32]byte{}, errABI
	}
	var w [32]byte
	copy(w[:], data[offset:offset+32])
	return w, nil
}

func readUint256(data []byte, offset int) (*uint256.Int, error) {
	w, err := readWord(data, offset)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(w[:]), nil
}

func readBytes32(data []byte, offset int) ([32]byte, error) {
	return readWord(data, offset)
}

// readDynamicBytes reads a (length-prefixed, 32-byte-padded) bytes/string
// blob whose offset word lives at headOffset.
func readDynamicBytes(data []byte, headOffset int) ([]byte, error) {
	offsetWord, err := readWord(data, headOffset)
	if err != nil {
		return nil, err
	}
	dataOffset := int(new(uint256.Int).SetBytes(offsetWord[:]).Uint64())
	lenWord, err := readWord(data, dataOffset)
	if err != nil {
		return nil, err
	}
	n := int(new(uint256.Int).SetBytes(lenWord[:]).Uint64())
	start := dataOffset + 32
	if start+n > len(data) || n < 0 {
		return nil, errABI
	}
	out := make([]byte, n)
	copy(out, data[start:start+n])
	return out, nil
}

// appendDynamicBytes appends b's length-prefixed, zero-padded-to-32
// representation to buf and returns the extended buffer.
func appendDynamicBytes(buf []byte, b []byte) []byte {
	lenWord := word32(new(uint256.Int).SetUint64(uint64(len(b))).Bytes())
	buf = append(buf, lenWord[:]...)
	buf = append(buf, b...)
	if pad := (32 - len(b)%32) % 32; pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return buf
}

func appendWord(buf []byte, w [32]byte) []byte { return append(buf, w[:]...) }

func appendUint256(buf []byte, v uint64) []byte {
	w := word32(new(uint256.Int).SetUint64(v).Bytes())
	return appendWord(buf, w)
}

// --- getLockedPkscript(string,uint256) returns (string) ---

func decodeGetLockedPkscriptParams(data []byte) (string, uint32, error) {
	if len(data) < 64 {
		return "", 0, errABI
	}
	pkscript, err := readDynamicBytes(data, 0)
	if err != nil {
		return "", 0, err
	}
	count, err := readUint256(data, 32)
	if err != nil {
		return "", 0, err
	}
	return string(pkscript), uint32(count.Uint64()), nil
}

func encodeGetLockedPkscriptReturn(addr string) []byte {
	buf := appendUint256(nil, 32) // single dynamic field's head offset
	buf = appendDynamicBytes(buf, []byte(addr))
	return buf
}

// --- getTxId() returns (bytes32 txid, uint256 vout) ---

func encodeCurrentTxIDReturn(txid evmtypes.Hash, vout uint32) []byte {
	var buf []byte
	buf = appendWord(buf, [32]byte(txid))
	buf = appendUint256(buf, uint64(vout))
	return buf
}

// --- getLastSatLocation(bytes32,uint256,uint256) returns
//     (bytes32,uint256,uint256,bytes,bytes) ---

func decodeGetLastSatLocationParams(data []byte) (txid [32]byte, vout, sat uint64, err error) {
	if len(data) < 96 {
		return [32]byte{}, 0, 0, errABI
	}
	txid, err = readBytes32(data, 0)
	if err != nil {
		return
	}
	voutW, err := readUint256(data, 32)
	if err != nil {
		return
	}
	satW, err := readUint256(data, 64)
	if err != nil {
		return
	}
	return txid, voutW.Uint64(), satW.Uint64(), nil
}

func encodeGetLastSatLocationReturn(txid [32]byte, vout, sat uint64, oldPkscript, newPkscript []byte) []byte {
	var head []byte
	head = appendWord(head, txid)
	head = appendUint256(head, vout)
	head = appendUint256(head, sat)
	head = appendUint256(head, 0) // offset to oldPkscript, filled below
	head = appendUint256(head, 0) // offset to newPkscript, filled below

	tail1 := appendDynamicBytes(nil, oldPkscript)
	offset1 := len(head)
	tail2 := appendDynamicBytes(nil, newPkscript)
	offset2 := offset1 + len(tail1)

	w := word32(new(uint256.Int).SetUint64(uint64(offset1)).Bytes())
	copy(head[96:128], w[:])
	w = word32(new(uint256.Int).SetUint64(uint64(offset2)).Bytes())
	copy(head[128:160], w[:])

	out := append(head, tail1...)
	out = append(out, tail2...)
	return out
}

// --- getTxDetails(bytes32) returns (uint256,bytes32[],uint256[],bytes[],uint256[],bytes[],uint256[]) ---

func decodeGetTxDetailsParams(data []byte) ([32]byte, error) {
	return readBytes32(data, 0)
}

// txDetailsReturn holds the seven return values of getTxDetails before ABI
// encoding; kept as a struct rather than seven positional slices to avoid a
// error-prone seven-argument encode function.
type txDetailsReturn struct {
	BlockHeight      uint64
	VinTxids         [][32]byte
	VinVouts         []uint64
	VinScriptPubKeys [][]byte
	VinValues        []uint64
	VoutScriptPubKeys [][]byte
	VoutValues       []uint64
}

func encodeGetTxDetailsReturn(r txDetailsReturn) []byte {
	// Layout: one static word (blockHeight) + six dynamic-field offsets,
	// then each field's tail in order.
	var head []byte
	head = appendUint256(head, r.BlockHeight)
	offsetSlots := 6
	headerLen := 32 + offsetSlots*32
	offsets := make([]int, offsetSlots)

	var tails []byte
	appendFixedArray := func(idx int, words [][32]byte) {
		offsets[idx] = headerLen + len(tails)
		tails = appendUint256(tails, uint64(len(words)))
		for _, w := range words {
			tails = appendWord(tails, w)
		}
	}
	appendUintArray := func(idx int, vals []uint64) {
		offsets[idx] = headerLen + len(tails)
		tails = appendUint256(tails, uint64(len(vals)))
		for _, v := range vals {
			tails = appendUint256(tails, v)
		}
	}
	appendBytesArray := func(idx int, items [][]byte) {
		offsets[idx] = headerLen + len(tails)
		section := appendUint256(nil, uint64(len(items)))
		elemHeaderLen := 32 * len(items)
		var elemTails []byte
		for _, item := range items {
			section = appendUint256(section, uint64(elemHeaderLen+len(elemTails)))
			elemTails = appendDynamicBytes(elemTails, item)
		}
		section = append(section, elemTails...)
		tails = append(tails, section...)
	}

	appendFixedArray(0, r.VinTxids)
	appendUintArray(1, r.VinVouts)
	appendBytesArray(2, r.VinScriptPubKeys)
	appendUintArray(3, r.VinValues)
	appendBytesArray(4, r.VoutScriptPubKeys)
	appendUintArray(5, r.VoutValues)

	for _, off := range offsets {
		head = appendUint256(head, uint64(off))
	}
	return append(head, tails...)
}

// --- verifyBip322(bytes pkscript, bytes message, bytes signature) returns (bool) ---

func decodeBip322Params(data []byte) (pkscript, message, signature []byte, err error) {
	if len(data) < 96 {
		return nil, nil, nil, errABI
	}
	if pkscript, err = readDynamicBytes(data, 0); err != nil {
		return
	}
	if message, err = readDynamicBytes(data, 32); err != nil {
		return
	}
	signature, err = readDynamicBytes(data, 64)
	return
}

func encodeBoolReturn(ok bool) []byte {
	var w [32]byte
	if ok {
		w[31] = 1
	}
	return w[:]
}

// --- getBrc20Balance(string pkscript, string ticker) returns (uint256) ---

func decodeBrc20BalanceParams(data []byte) (pkscript, ticker string, err error) {
	if len(data) < 64 {
		return "", "", errABI
	}
	pk, err := readDynamicBytes(data, 0)
	if err != nil {
		return
	}
	tk, err := readDynamicBytes(data, 32)
	if err != nil {
		return
	}
	return string(pk), string(tk), nil
}

func encodeUint256Return(v *uint256.Int) []byte {
	return word32(v.Bytes())[:]
}
