package vm

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// Host is everything the interpreter needs from the world outside one call
// frame: account/storage reads and writes, and the ability to dispatch a
// nested CALL/CREATE back into the same execution engine. internal/evmadapter
// implements Host by wiring internal/statestore reads/writes and internal/
// precompiles dispatch together; vm itself has no dependency on either, the
// same separation core/vm keeps from StateDB and the EVM's call dispatcher
// in the corpus's go-ethereum-family references.
type Host interface {
	GetBalance(addr evmtypes.Address) (*uint256.Int, error)
	GetCodeSize(addr evmtypes.Address) (int, error)
	GetCodeHash(addr evmtypes.Address) (evmtypes.Hash, error)
	GetCode(addr evmtypes.Address) ([]byte, error)
	GetStorage(addr evmtypes.Address, slot evmtypes.Hash) (evmtypes.Hash, error)
	SetStorage(addr evmtypes.Address, slot, value evmtypes.Hash) error
	GetBlockHash(number uint64) (evmtypes.Hash, error)
	AddLog(addr evmtypes.Address, topics []evmtypes.Hash, data []byte)

	// Call dispatches a CALL/CALLCODE/DELEGATECALL/STATICCALL from inside
	// this frame; kind distinguishes which of the four so Host can apply
	// the right value/storage-context rules (internal/evmadapter owns that
	// logic, not the interpreter).
	Call(kind CallKind, caller, addr evmtypes.Address, input []byte, gas uint64, value *uint256.Int, readOnly bool) (ret []byte, leftOverGas uint64, err error)

	// Create dispatches CREATE/CREATE2 from inside this frame.
	Create(kind CallKind, caller evmtypes.Address, code []byte, gas uint64, value *uint256.Int, salt *uint256.Int) (newAddr evmtypes.Address, ret []byte, leftOverGas uint64, err error)

	// SelfDestruct schedules addr's removal at the end of the top-level call.
	SelfDestruct(addr, beneficiary evmtypes.Address) error
}

// CallKind distinguishes the four call-like opcodes and the two
// create-like opcodes for Host.
type CallKind int

const (
	CallKindCall CallKind = iota
	CallKindCallCode
	CallKindDelegateCall
	CallKindStaticCall
	CallKindCreate
	CallKindCreate2
)

// BlockContext is the block-wide, call-independent environment.
type BlockContext struct {
	Coinbase    evmtypes.Address
	Number      uint64
	Timestamp   uint64
	GasLimit    uint64
	ChainID     uint64
	BaseFee     *uint256.Int
}

// TxContext is the transaction-wide, call-independent environment.
type TxContext struct {
	Origin   evmtypes.Address
	GasPrice *uint256.Int
}
