package pendingpool

import (
	"errors"
	"fmt"

	"github.com/erigontech/secp256k1"
	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// ErrChainIDMismatch is returned when a decoded transaction's EIP-155
// chain id does not match the engine's configured chain id.
var ErrChainIDMismatch = errors.New("pendingpool: chain id mismatch")

// ErrInvalidSignature is returned when sender recovery fails.
var ErrInvalidSignature = errors.New("pendingpool: invalid signature")

// Tx is a decoded, sender-recovered legacy (pre-EIP-2718) transaction —
// the only transaction type inscriptions carry, per SPEC_FULL §6.2.
type Tx struct {
	From     evmtypes.Address
	To       *evmtypes.Address
	Nonce    uint64
	GasPrice *uint256.Int
	GasLimit uint64
	Value    *uint256.Int
	Data     []byte
	Hash     evmtypes.Hash
	Raw      []byte
}

// DecodeLegacyTx RLP-decodes raw as a legacy Ethereum transaction
// [nonce, gasPrice, gasLimit, to, value, data, v, r, s], recovers its
// sender via ECDSA public-key recovery over the EIP-155 signing hash, and
// checks the recovered chain id against chainID.
func DecodeLegacyTx(raw []byte, chainID uint64) (*Tx, error) {
	top, rest, err := rlpDecode(raw)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after transaction", errMalformedRLP)
	}
	if err := requireList(top, 9); err != nil {
		return nil, err
	}
	f := top.list

	nonce := uint64FromBytes(f[0].bytes)
	gasPrice := uint256FromBytes(f[1].bytes)
	gasLimit := uint64FromBytes(f[2].bytes)

	var to *evmtypes.Address
	if len(f[3].bytes) > 0 {
		var a evmtypes.Address
		copy(a[:], f[3].bytes)
		to = &a
	}

	value := uint256FromBytes(f[4].bytes)
	data := append([]byte(nil), f[5].bytes...)

	v := uint64FromBytes(f[6].bytes)
	r := f[7].bytes
	s := f[8].bytes

	txChainID, recID, err := splitSignatureV(v)
	if err != nil {
		return nil, err
	}
	if txChainID != chainID {
		return nil, fmt.Errorf("%w: tx chain id %d, expected %d", ErrChainIDMismatch, txChainID, chainID)
	}

	signingHash := legacySigningHash(nonce, gasPrice, gasLimit, to, value, data, chainID)

	sig := make([]byte, 65)
	copy(sig[32-len(r):32], r)
	copy(sig[64-len(s):64], s)
	sig[64] = recID

	pubkey, err := secp256k1.RecoverPubkey(signingHash[:], sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	from := pubkeyToAddress(pubkey)

	return &Tx{
		From:     from,
		To:       to,
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Value:    value,
		Data:     data,
		Hash:     evmtypes.Keccak256(raw),
		Raw:      append([]byte(nil), raw...),
	}, nil
}

// splitSignatureV recovers EIP-155's packed (chainId, recoveryID) out of a
// legacy transaction's v field: v = chainId*2 + 35 + recid.
func splitSignatureV(v uint64) (chainID uint64, recID byte, err error) {
	if v == 27 || v == 28 {
		return 0, 0, fmt.Errorf("%w: pre-EIP-155 transaction has no chain id", ErrChainIDMismatch)
	}
	if v < 35 {
		return 0, 0, fmt.Errorf("%w: malformed v value %d", ErrInvalidSignature, v)
	}
	chainID = (v - 35) / 2
	recID = byte((v - 35) % 2)
	return chainID, recID, nil
}

// legacySigningHash is keccak256(rlp([nonce, gasPrice, gasLimit, to, value,
// data, chainId, 0, 0])), the EIP-155 signing preimage.
func legacySigningHash(nonce uint64, gasPrice *uint256.Int, gasLimit uint64, to *evmtypes.Address, value *uint256.Int, data []byte, chainID uint64) evmtypes.Hash {
	toBytes := []byte{}
	if to != nil {
		toBytes = to[:]
	}
	encoded := rlpEncodeList(
		rlpUint64(nonce),
		rlpUint(gasPrice),
		rlpUint64(gasLimit),
		rlpBytes(toBytes),
		rlpUint(value),
		rlpBytes(data),
		rlpUint64(chainID),
		rlpBytes(nil),
		rlpBytes(nil),
	)
	return evmtypes.Keccak256(encoded)
}

// pubkeyToAddress derives an address from an uncompressed 65-byte public
// key the same way go-ethereum's crypto.PubkeyToAddress does: keccak256 of
// the 64-byte X||Y coordinates, low 20 bytes.
func pubkeyToAddress(pubkey []byte) evmtypes.Address {
	body := pubkey
	if len(pubkey) == 65 {
		body = pubkey[1:]
	}
	hash := evmtypes.Keccak256(body)
	var addr evmtypes.Address
	copy(addr[:], hash[12:])
	return addr
}
