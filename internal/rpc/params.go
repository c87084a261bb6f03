package rpc

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// parseBlockNumber accepts the Ethereum JSON-RPC block tag shapes this
// engine can actually answer: a 0x-prefixed hex quantity, or "latest" /
// "pending" (both resolve to the current tip, since this engine has no
// separate notion of a pending block once a call has been admitted).
// "earliest" resolves to block 1 by convention (block 0 is never finalised
// here, the way the Bitcoin tie-in never executes a "genesis" EVM block).
func parseBlockNumber(tag string, latest uint64) (uint64, error) {
	switch tag {
	case "", "latest", "pending":
		return latest, nil
	case "earliest":
		return 1, nil
	}
	trimmed := strings.TrimPrefix(tag, "0x")
	n, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", tag, err)
	}
	return n, nil
}

func parseAddress(s string) (evmtypes.Address, error) {
	return evmtypes.AddressFromHex(s)
}

func parseHash(s string) (evmtypes.Hash, error) {
	return evmtypes.HashFromHex(s)
}

// parseOptionalHash treats an empty string as the zero hash, for brc20_*
// parameters (Bitcoin block hash) an indexer is allowed to omit — the
// engine substitutes a deterministic placeholder for those itself.
func parseOptionalHash(s string) (evmtypes.Hash, error) {
	if s == "" {
		return evmtypes.Hash{}, nil
	}
	return evmtypes.HashFromHex(s)
}

func parseQuantity(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseUint(trimmed, 16, 64)
}

// parseUint256 accepts a 0x-prefixed hex quantity (the eth_call "value"
// shape) or an empty string for zero.
func parseUint256(s string) (*uint256.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return uint256.NewInt(0), nil
	}
	v, err := uint256.FromHex("0x" + trimmed)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func parseBytes(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return nil, nil
	}
	return hex.DecodeString(trimmed)
}

// hexQuantity renders v as a 0x-prefixed minimal hex quantity, matching
// go-ethereum/erigon's `eth_*` JSON-RPC number encoding.
func hexQuantity(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// hexBytes renders b as a 0x-prefixed hex string, or "0x" for nil/empty.
func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
