// Package evmadapter wires internal/vm's interpreter to internal/statestore
// and internal/precompiles. It implements vm.Host so CALL/CREATE can
// recurse back into a fresh interpreter frame without the interpreter
// itself ever depending on storage or precompile dispatch.
//
// original_source/src/engine/engine.rs moves its DB out of a RwLock guard
// with core/mem::take, hands the owned value to a freshly built revm EVM,
// runs the call, then swaps the (possibly mutated) DB back in — because
// revm's EVM type owns its DB by value. Go's statestore.StateStore is a
// plain struct behind a mdbx transaction, not something an interpreter
// needs to own, so there is nothing to move: an Adapter simply borrows the
// *storage.Tx and *statestore.StateStore for the call's duration. The
// caller (internal/engine) holds the single write lock that makes "exactly
// one call executing at a time" true, which is what the Rust move/swap
// dance was really protecting.
package evmadapter

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/precompiles"
	"github.com/erigontech/brc20-prog/internal/statestore"
	"github.com/erigontech/brc20-prog/internal/storage"
	"github.com/erigontech/brc20-prog/internal/vm"
)

// Adapter is one block's (or one eth_call's) execution context: it reads
// and writes through store/tx, dispatches precompiles, and tracks the
// inscription-originating txid the current transaction's call chain may
// need to answer the current-tx-id precompile.
type Adapter struct {
	store       *statestore.StateStore
	tx          *storage.Tx
	reader      *statestore.Reader
	precompiles map[precompiles.Address]precompiles.Precompile
	block       vm.BlockContext
	txCtx       vm.TxContext
	blockNumber uint64

	// commit, when false, routes every storage write into dirty instead
	// of statestore.SetStorage — the dry-run/eth_call path.
	commit bool
	dirty  map[dirtyKey]evmtypes.Hash

	// logs accumulates every LOG opcode emitted by the top-level call and
	// its descendants, in emission order.
	logs []statestore.Log

	currentTxID     evmtypes.Hash
	currentTxVout   uint32
	createdContract *evmtypes.Address

	// trace, when non-nil, collects a geth-style callTracer tree: every
	// Call/Create pushes a frame onto traceStack before recursing and pops
	// it (filling in gas used/output/error) on return. Only built when the
	// caller asks for it (Config.EVMRecordTraces), since walking the stack
	// on every opcode-level sub-call is wasted work otherwise.
	trace      *CallTrace
	traceStack []*CallTrace
}

// CallTrace is one frame of a geth-style callTracer result: a call's type,
// participants, value, gas accounting, input/output, any nested calls it
// made, and any logs it emitted directly.
type CallTrace struct {
	Type    string           `json:"type"`
	From    evmtypes.Address `json:"from"`
	To      evmtypes.Address `json:"to"`
	Value   string           `json:"value,omitempty"`
	Gas     uint64           `json:"gas"`
	GasUsed uint64           `json:"gasUsed"`
	Input   []byte           `json:"input,omitempty"`
	Output  []byte           `json:"output,omitempty"`
	Error   string           `json:"error,omitempty"`
	Calls   []*CallTrace     `json:"calls,omitempty"`
	Logs    []statestore.Log `json:"logs,omitempty"`
}

type dirtyKey struct {
	addr evmtypes.Address
	slot evmtypes.Hash
}

// New builds an Adapter bound to one block's write transaction. commit
// controls whether SSTORE effects are persisted (AddRawTxToBlock/
// AddTxToBlock) or held in memory and discarded (ReadContract/eth_call).
func New(store *statestore.StateStore, tx *storage.Tx, block vm.BlockContext, txCtx vm.TxContext, pc map[precompiles.Address]precompiles.Precompile, commit bool) *Adapter {
	return &Adapter{
		store:       store,
		tx:          tx,
		reader:      statestore.NewReader(store, tx, false, nil),
		precompiles: pc,
		block:       block,
		txCtx:       txCtx,
		blockNumber: block.Number,
		commit:      commit,
		dirty:       make(map[dirtyKey]evmtypes.Hash),
	}
}

// SetCurrentTx records the Bitcoin txid/vout the running call chain
// originated from, for the current-tx-id precompile.
func (a *Adapter) SetCurrentTx(txid evmtypes.Hash, vout uint32) {
	a.currentTxID = txid
	a.currentTxVout = vout
}

// EnableTrace turns on call-tree collection for this Adapter's next
// Execute — the replay-with-inspector call shape, gated on
// Config.EVMRecordTraces. Must be called before Execute.
func (a *Adapter) EnableTrace() {
	a.traceStack = []*CallTrace{}
}

// Trace returns the root of the collected call tree, or nil if EnableTrace
// was never called.
func (a *Adapter) Trace() *CallTrace { return a.trace }

func (a *Adapter) tracing() bool { return a.traceStack != nil }

// pushTrace starts a new frame for a Call/Create, linking it under the
// currently-executing frame (if any), and returns it so the caller can
// fill in GasUsed/Output/Error once the call returns.
func (a *Adapter) pushTrace(kind vm.CallKind, from, to evmtypes.Address, value *uint256.Int, gas uint64, input []byte) *CallTrace {
	if !a.tracing() {
		return nil
	}
	frame := &CallTrace{Type: traceType(kind), From: from, To: to, Gas: gas, Input: append([]byte(nil), input...)}
	if value != nil && !value.IsZero() {
		frame.Value = value.Hex()
	}
	if len(a.traceStack) > 0 {
		parent := a.traceStack[len(a.traceStack)-1]
		parent.Calls = append(parent.Calls, frame)
	} else {
		a.trace = frame
	}
	a.traceStack = append(a.traceStack, frame)
	return frame
}

// popTrace closes the most recently pushed frame with its outcome.
func (a *Adapter) popTrace(frame *CallTrace, gasUsed uint64, output []byte, err error) {
	if frame == nil {
		return
	}
	frame.GasUsed = gasUsed
	frame.Output = append([]byte(nil), output...)
	if err != nil {
		frame.Error = err.Error()
	}
	a.traceStack = a.traceStack[:len(a.traceStack)-1]
}

func traceType(kind vm.CallKind) string {
	switch kind {
	case vm.CallKindCall:
		return "CALL"
	case vm.CallKindCallCode:
		return "CALLCODE"
	case vm.CallKindDelegateCall:
		return "DELEGATECALL"
	case vm.CallKindStaticCall:
		return "STATICCALL"
	case vm.CallKindCreate:
		return "CREATE"
	case vm.CallKindCreate2:
		return "CREATE2"
	default:
		return "CALL"
	}
}

// CreatedContract returns the address of a contract created by the
// top-level call, if any — used to link an inscription id to its deployed
// contract the way engine.rs's traces.get_created_contract() does.
func (a *Adapter) CreatedContract() *evmtypes.Address { return a.createdContract }

// Logs returns every log emitted so far, for receipt construction.
func (a *Adapter) Logs() []statestore.Log { return a.logs }

// ExecutionResult is what a top-level Execute call returns.
type ExecutionResult struct {
	ReturnData []byte
	GasUsed    uint64
	Reverted   bool
	Err        error
}

// Execute runs one top-level call (a contract invocation, or a contract
// creation when to == nil) and returns its outcome. When a.commit is false
// (the engine's dry run), storage writes are held in the Adapter's
// in-memory dirty map: later reads through the same Adapter see them, and
// they never reach the store.
func (a *Adapter) Execute(caller evmtypes.Address, to *evmtypes.Address, value *uint256.Int, input []byte, gasLimit uint64) ExecutionResult {
	var ret []byte
	var leftOver uint64
	var err error

	if to == nil {
		_, ret, leftOver, err = a.create(vm.CallKindCreate, caller, input, gasLimit, value, nil)
	} else {
		ret, leftOver, err = a.call(vm.CallKindCall, caller, *to, input, gasLimit, value, false)
	}

	gasUsed := gasLimit - leftOver
	if err != nil && errors.Is(err, vm.ErrExecutionReverted) {
		return ExecutionResult{ReturnData: ret, GasUsed: gasUsed, Reverted: true, Err: err}
	}
	if err != nil {
		return ExecutionResult{GasUsed: gasUsed, Err: err}
	}
	return ExecutionResult{ReturnData: ret, GasUsed: gasUsed}
}

// --- vm.Host ---

func (a *Adapter) GetBalance(addr evmtypes.Address) (*uint256.Int, error) {
	acct, err := a.reader.Basic(addr)
	if err != nil {
		return nil, err
	}
	bal := acct.Balance
	return &bal, nil
}

func (a *Adapter) GetCodeSize(addr evmtypes.Address) (int, error) {
	code, err := a.getCode(addr)
	if err != nil {
		return 0, err
	}
	return len(code), nil
}

func (a *Adapter) GetCodeHash(addr evmtypes.Address) (evmtypes.Hash, error) {
	acct, err := a.reader.Basic(addr)
	if err != nil {
		return evmtypes.Hash{}, err
	}
	return acct.CodeHash, nil
}

func (a *Adapter) GetCode(addr evmtypes.Address) ([]byte, error) {
	return a.getCode(addr)
}

func (a *Adapter) getCode(addr evmtypes.Address) ([]byte, error) {
	acct, err := a.reader.Basic(addr)
	if err != nil {
		return nil, err
	}
	return a.reader.CodeByHash(acct.CodeHash)
}

func (a *Adapter) GetStorage(addr evmtypes.Address, slot evmtypes.Hash) (evmtypes.Hash, error) {
	if !a.commit {
		if v, ok := a.dirty[dirtyKey{addr, slot}]; ok {
			return v, nil
		}
	}
	return a.reader.Storage(addr, slot)
}

func (a *Adapter) SetStorage(addr evmtypes.Address, slot, value evmtypes.Hash) error {
	if !a.commit {
		a.dirty[dirtyKey{addr, slot}] = value
		return nil
	}
	return a.store.SetStorage(a.tx, a.blockNumber, addr, slot, value)
}

func (a *Adapter) GetBlockHash(number uint64) (evmtypes.Hash, error) {
	return a.reader.BlockHash(number)
}

func (a *Adapter) AddLog(addr evmtypes.Address, topics []evmtypes.Hash, data []byte) {
	log := statestore.Log{Address: addr, Topics: topics, Data: append([]byte(nil), data...)}
	a.logs = append(a.logs, log)
	if a.tracing() && len(a.traceStack) > 0 {
		frame := a.traceStack[len(a.traceStack)-1]
		frame.Logs = append(frame.Logs, log)
	}
}

func (a *Adapter) Call(kind vm.CallKind, caller, addr evmtypes.Address, input []byte, gas uint64, value *uint256.Int, readOnly bool) ([]byte, uint64, error) {
	return a.call(kind, caller, addr, input, gas, value, readOnly)
}

func (a *Adapter) Create(kind vm.CallKind, caller evmtypes.Address, code []byte, gas uint64, value *uint256.Int, salt *uint256.Int) (evmtypes.Address, []byte, uint64, error) {
	return a.create(kind, caller, code, gas, value, salt)
}

func (a *Adapter) SelfDestruct(addr, beneficiary evmtypes.Address) error {
	if !a.commit {
		return nil
	}
	acct, err := a.reader.Basic(addr)
	if err != nil {
		return err
	}
	if !acct.Balance.IsZero() && beneficiary != addr {
		benef, err := a.reader.Basic(beneficiary)
		if err != nil {
			return err
		}
		benef.Balance.Add(&benef.Balance, &acct.Balance)
		if err := a.store.SetAccount(a.tx, a.blockNumber, beneficiary, benef); err != nil {
			return err
		}
	}
	return a.store.DeleteAccount(a.tx, a.blockNumber, addr)
}

func (a *Adapter) call(kind vm.CallKind, caller, addr evmtypes.Address, input []byte, gas uint64, value *uint256.Int, readOnly bool) ([]byte, uint64, error) {
	frame := a.pushTrace(kind, caller, addr, value, gas, input)

	if p, ok := a.precompiles[addr]; ok {
		res := p.Run(precompiles.Call{
			Input:       input,
			GasLimit:    gas,
			BlockHeight: a.blockNumber,
			TxID:        a.currentTxID,
			TxVoutIndex: a.currentTxVout,
		})
		leftOver := gas - res.GasUsed
		a.popTrace(frame, res.GasUsed, res.Output, res.Err)
		if res.Err != nil {
			return nil, leftOver, res.Err
		}
		return res.Output, leftOver, nil
	}

	code, err := a.getCode(addr)
	if err != nil {
		a.popTrace(frame, 0, nil, err)
		return nil, gas, err
	}

	execAddr, execCode, execCaller := addr, code, caller
	if kind == vm.CallKindDelegateCall || kind == vm.CallKindCallCode {
		execAddr = caller
		if kind == vm.CallKindDelegateCall {
			execCaller = caller
		}
	}

	interp := vm.NewInterpreter(a, a.block, a.txCtx)
	ret, leftOver, err := interp.Run(&vm.CallContext{
		Caller:   execCaller,
		Address:  execAddr,
		Input:    input,
		Value:    value,
		Gas:      gas,
		Code:     execCode,
		ReadOnly: readOnly,
	})
	a.popTrace(frame, gas-leftOver, ret, err)
	return ret, leftOver, err
}

func (a *Adapter) create(kind vm.CallKind, caller evmtypes.Address, initCode []byte, gas uint64, value *uint256.Int, salt *uint256.Int) (evmtypes.Address, []byte, uint64, error) {
	callerAcct, err := a.reader.Basic(caller)
	if err != nil {
		return evmtypes.Address{}, nil, gas, err
	}

	var newAddr evmtypes.Address
	if kind == vm.CallKindCreate2 && salt != nil {
		newAddr = create2Address(caller, salt, initCode)
	} else {
		newAddr = createAddress(caller, callerAcct.Nonce)
	}

	frame := a.pushTrace(kind, caller, newAddr, value, gas, initCode)

	interp := vm.NewInterpreter(a, a.block, a.txCtx)
	ret, leftOver, err := interp.Run(&vm.CallContext{
		Caller:  caller,
		Address: newAddr,
		Value:   value,
		Gas:     gas,
		Code:    initCode,
	})
	if err != nil {
		a.popTrace(frame, gas-leftOver, ret, err)
		return evmtypes.Address{}, ret, leftOver, err
	}

	if a.commit {
		codeHash, err := a.store.SetCode(a.tx, ret)
		if err != nil {
			a.popTrace(frame, gas-leftOver, ret, err)
			return evmtypes.Address{}, nil, leftOver, err
		}
		if err := a.store.SetAccount(a.tx, a.blockNumber, newAddr, statestore.Account{CodeHash: codeHash}); err != nil {
			a.popTrace(frame, gas-leftOver, ret, err)
			return evmtypes.Address{}, nil, leftOver, err
		}
	}
	a.createdContract = &newAddr
	a.popTrace(frame, gas-leftOver, nil, nil)

	return newAddr, nil, leftOver, nil
}
