package vm

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// CallContext is everything specific to one call frame: who's calling whom,
// with what value and input, running which code, how deep in the call
// stack, and whether writes are forbidden (STATICCALL and its descendants).
type CallContext struct {
	Caller   evmtypes.Address
	Address  evmtypes.Address
	Input    []byte
	Value    *uint256.Int
	Gas      uint64
	Code     []byte
	Depth    int
	ReadOnly bool
}

// maxCallDepth mirrors the standard EVM's 1024-deep call stack limit.
const maxCallDepth = 1024
