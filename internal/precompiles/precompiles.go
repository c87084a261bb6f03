// Package precompiles implements the six stateful precompiled contracts
// this engine exposes to EVM bytecode at the reserved address range
// 0x...fa-0x...ff: a current-transaction-id oracle, a Taproot locked-pkscript
// builder, a Bitcoin-RPC-backed last-sat-location walker, a Bitcoin-RPC-backed
// tx-details reader, a BIP-322 signature verifier, and an external BRC-20
// balance oracle. Grounded on original_source/src/evm/precompiles/*.rs and
// original_source/src/engine/precompiles/*.rs — the newer engine/precompiles
// tree's PrecompileCall/gas-charging shape, reproduced here as the Call
// struct and the Run return convention.
package precompiles

import (
	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// Address is the fixed 20-byte address a precompile is dispatched at.
type Address = evmtypes.Address

var (
	AddressCurrentTxID    = mustAddr(0xfa)
	AddressLockedPkscript = mustAddr(0xfb)
	AddressLastSatLoc     = mustAddr(0xfc)
	AddressBTCTxDetails   = mustAddr(0xfd)
	AddressBIP322         = mustAddr(0xfe)
	AddressBRC20Balance   = mustAddr(0xff)
)

func mustAddr(last byte) Address {
	var a Address
	a[19] = last
	return a
}

// Call carries a precompile invocation's ABI-encoded input, the gas budget
// available to it, and the block height the call is executing at (used by
// the Bitcoin-RPC-backed precompiles to reject not-yet-confirmed lookups).
type Call struct {
	Input       []byte
	GasLimit    uint64
	BlockHeight uint64
	// TxID/TxVoutIndex identify the inscription-carrying transaction the
	// currently executing call originated from; only AddressCurrentTxID
	// reads these.
	TxID       evmtypes.Hash
	TxVoutIndex uint32
}

// Result is a precompile's outcome: Output on success, GasUsed always set
// (even on failure, since gas already spent before an error is not
// refunded), and Err non-nil on any failure (bad input, RPC failure,
// insufficient gas).
type Result struct {
	Output  []byte
	GasUsed uint64
	Err     error
}

// Precompile is one callable entry in the registry.
type Precompile interface {
	Run(call Call) Result
}

// Registry returns every precompile keyed by its fixed address. cfg supplies
// the shared dependencies (Bitcoin RPC client, BRC-20 indexer HTTP client,
// per-call gas costs) that individual precompiles need.
func Registry(cfg Config) map[Address]Precompile {
	return map[Address]Precompile{
		AddressCurrentTxID:    currentTxIDPrecompile{},
		AddressLockedPkscript: lockedPkscriptPrecompile{network: cfg.Network},
		AddressLastSatLoc:     lastSatLocationPrecompile{rpc: cfg.BitcoinRPC, gasPerCall: cfg.GasPerBitcoinRPCCall},
		AddressBTCTxDetails:   btcTxDetailsPrecompile{rpc: cfg.BitcoinRPC, gasPerCall: cfg.GasPerBitcoinRPCCall},
		AddressBIP322:         bip322Precompile{network: cfg.Network},
		AddressBRC20Balance:   brc20BalancePrecompile{client: cfg.BalanceIndexer},
	}
}

// Config is the shared, engine-supplied dependency set every precompile in
// the registry may draw from.
type Config struct {
	Network               BitcoinNetwork
	BitcoinRPC            BitcoinRPC
	BalanceIndexer        BalanceIndexerClient
	GasPerBitcoinRPCCall  uint64
}
