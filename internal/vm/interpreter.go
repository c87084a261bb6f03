package vm

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// ErrExecutionReverted is returned when the contract itself executed REVERT;
// ret still carries the revert reason and the unused gas is returned to the
// caller as leftOverGas.
var ErrExecutionReverted = errors.New("vm: execution reverted")

// ErrOutOfGas is returned when an opcode's charge cannot be paid for out of
// the current call's remaining gas.
var ErrOutOfGas = errors.New("vm: out of gas")

// Interpreter runs one call frame's bytecode to completion.
type Interpreter struct {
	host  Host
	block BlockContext
	tx    TxContext
}

// NewInterpreter builds an interpreter bound to a Host and the block/tx
// environment every call frame it runs will see.
func NewInterpreter(host Host, block BlockContext, tx TxContext) *Interpreter {
	return &Interpreter{host: host, block: block, tx: tx}
}

// Run executes call's code from program counter 0 until STOP, RETURN,
// REVERT, SELFDESTRUCT, or an error. ret is the returned/reverted output
// data; leftOverGas is what remained of call.Gas when execution stopped.
func (in *Interpreter) Run(call *CallContext) (ret []byte, leftOverGas uint64, err error) {
	if call.Depth > maxCallDepth {
		return nil, call.Gas, fmt.Errorf("vm: max call depth exceeded")
	}
	if len(call.Code) == 0 {
		return nil, call.Gas, nil
	}

	stack := newStack()
	mem := newMemory()
	gas := call.Gas
	pc := uint64(0)

	charge := func(n uint64) error {
		if gas < n {
			gas = 0
			return ErrOutOfGas
		}
		gas -= n
		return nil
	}

	for {
		if pc >= uint64(len(call.Code)) {
			return nil, gas, nil
		}
		op := OpCode(call.Code[pc])

		if call.ReadOnly && isStateModifying(op) {
			return nil, gas, fmt.Errorf("vm: %s not allowed in a static call", opName(op))
		}

		if err := charge(constGas(op)); err != nil {
			return nil, 0, err
		}

		switch {
		case op.IsPush():
			n := op.PushSize()
			end := pc + 1 + uint64(n)
			var buf [32]byte
			if end > uint64(len(call.Code)) {
				copy(buf[32-n:], call.Code[pc+1:])
			} else {
				copy(buf[32-n:], call.Code[pc+1:end])
			}
			var v uint256.Int
			v.SetBytes(buf[:])
			if err := stack.push(&v); err != nil {
				return nil, 0, err
			}
			pc = end
			continue

		case op.IsDup():
			if err := stack.dup(op.DupDepth()); err != nil {
				return nil, 0, err
			}
			pc++
			continue

		case op.IsSwap():
			if err := stack.swap(op.SwapDepth()); err != nil {
				return nil, 0, err
			}
			pc++
			continue

		case op.IsLog():
			n := op.LogTopicCount()
			if err := charge(uint64(n) * gasLogTopic); err != nil {
				return nil, 0, err
			}
			offset, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			size, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			topics := make([]evmtypes.Hash, n)
			for i := 0; i < n; i++ {
				t, err := stack.pop()
				if err != nil {
					return nil, 0, err
				}
				topics[i] = evmtypes.Hash(t.Bytes32())
			}
			data, err := in.readMemory(mem, &gas, offset.Uint64(), size.Uint64())
			if err != nil {
				return nil, 0, err
			}
			if err := charge(wordGas(size.Uint64(), gasLogData)); err != nil {
				return nil, 0, err
			}
			in.host.AddLog(call.Address, topics, data)
			pc++
			continue
		}

		switch op {
		case STOP:
			return nil, gas, nil

		case ADD, MUL, SUB, DIV, SDIV, MOD, SMOD, ADDMOD, MULMOD, EXP, SIGNEXTEND,
			LT, GT, SLT, SGT, EQ, AND, OR, XOR, BYTE, SHL, SHR, SAR:
			if err := in.execBinary(op, stack, &gas); err != nil {
				return nil, 0, err
			}

		case ISZERO, NOT:
			if err := in.execUnary(op, stack); err != nil {
				return nil, 0, err
			}

		case SHA3:
			offset, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			size, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			data, err := in.readMemory(mem, &gas, offset.Uint64(), size.Uint64())
			if err != nil {
				return nil, 0, err
			}
			if err := charge(wordGas(size.Uint64(), gasSha3Word)); err != nil {
				return nil, 0, err
			}
			h := evmtypes.Keccak256(data)
			var v uint256.Int
			v.SetBytes(h[:])
			if err := stack.push(&v); err != nil {
				return nil, 0, err
			}

		case ADDRESS:
			if err := pushAddress(stack, call.Address); err != nil {
				return nil, 0, err
			}
		case CALLER:
			if err := pushAddress(stack, call.Caller); err != nil {
				return nil, 0, err
			}
		case ORIGIN:
			if err := pushAddress(stack, in.tx.Origin); err != nil {
				return nil, 0, err
			}
		case CALLVALUE:
			if err := stack.push(call.Value); err != nil {
				return nil, 0, err
			}
		case CALLDATASIZE:
			if err := pushUint64(stack, uint64(len(call.Input))); err != nil {
				return nil, 0, err
			}
		case CALLDATALOAD:
			offset, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			var buf [32]byte
			copyPadded(buf[:], call.Input, offset.Uint64())
			var v uint256.Int
			v.SetBytes(buf[:])
			if err := stack.push(&v); err != nil {
				return nil, 0, err
			}
		case CALLDATACOPY:
			if err := in.execMemCopy(stack, mem, &gas, call.Input); err != nil {
				return nil, 0, err
			}
		case CODESIZE:
			if err := pushUint64(stack, uint64(len(call.Code))); err != nil {
				return nil, 0, err
			}
		case CODECOPY:
			if err := in.execMemCopy(stack, mem, &gas, call.Code); err != nil {
				return nil, 0, err
			}
		case GASPRICE:
			if err := stack.push(in.tx.GasPrice); err != nil {
				return nil, 0, err
			}
		case EXTCODESIZE:
			a, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			size, err := in.host.GetCodeSize(uint256ToAddress(&a))
			if err != nil {
				return nil, 0, err
			}
			if err := pushUint64(stack, uint64(size)); err != nil {
				return nil, 0, err
			}
		case EXTCODEHASH:
			a, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			h, err := in.host.GetCodeHash(uint256ToAddress(&a))
			if err != nil {
				return nil, 0, err
			}
			var v uint256.Int
			v.SetBytes(h[:])
			if err := stack.push(&v); err != nil {
				return nil, 0, err
			}
		case EXTCODECOPY:
			a, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			code, err := in.host.GetCode(uint256ToAddress(&a))
			if err != nil {
				return nil, 0, err
			}
			if err := in.execMemCopy(stack, mem, &gas, code); err != nil {
				return nil, 0, err
			}
		case RETURNDATASIZE:
			if err := pushUint64(stack, 0); err != nil {
				return nil, 0, err
			}
		case RETURNDATACOPY:
			if err := in.execMemCopy(stack, mem, &gas, nil); err != nil {
				return nil, 0, err
			}

		case BLOCKHASH:
			n, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			h, err := in.host.GetBlockHash(n.Uint64())
			if err != nil {
				return nil, 0, err
			}
			var v uint256.Int
			v.SetBytes(h[:])
			if err := stack.push(&v); err != nil {
				return nil, 0, err
			}
		case COINBASE:
			if err := pushAddress(stack, in.block.Coinbase); err != nil {
				return nil, 0, err
			}
		case TIMESTAMP:
			if err := pushUint64(stack, in.block.Timestamp); err != nil {
				return nil, 0, err
			}
		case NUMBER:
			if err := pushUint64(stack, in.block.Number); err != nil {
				return nil, 0, err
			}
		case DIFFICULTY:
			if err := pushUint64(stack, 0); err != nil {
				return nil, 0, err
			}
		case GASLIMIT:
			if err := pushUint64(stack, in.block.GasLimit); err != nil {
				return nil, 0, err
			}
		case CHAINID:
			if err := pushUint64(stack, in.block.ChainID); err != nil {
				return nil, 0, err
			}
		case SELFBALANCE:
			bal, err := in.host.GetBalance(call.Address)
			if err != nil {
				return nil, 0, err
			}
			if err := stack.push(bal); err != nil {
				return nil, 0, err
			}
		case BASEFEE:
			if in.block.BaseFee == nil {
				if err := pushUint64(stack, 0); err != nil {
					return nil, 0, err
				}
			} else if err := stack.push(in.block.BaseFee); err != nil {
				return nil, 0, err
			}
		case BALANCE:
			a, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			bal, err := in.host.GetBalance(uint256ToAddress(&a))
			if err != nil {
				return nil, 0, err
			}
			if err := stack.push(bal); err != nil {
				return nil, 0, err
			}

		case POP:
			if _, err := stack.pop(); err != nil {
				return nil, 0, err
			}
		case MLOAD:
			offset, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			data, err := in.readMemory(mem, &gas, offset.Uint64(), 32)
			if err != nil {
				return nil, 0, err
			}
			var v uint256.Int
			v.SetBytes(data)
			if err := stack.push(&v); err != nil {
				return nil, 0, err
			}
		case MSTORE:
			offset, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			v, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			b := v.Bytes32()
			if err := in.writeMemory(mem, &gas, offset.Uint64(), b[:]); err != nil {
				return nil, 0, err
			}
		case MSTORE8:
			offset, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			v, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			if err := in.writeMemory(mem, &gas, offset.Uint64(), []byte{byte(v.Uint64())}); err != nil {
				return nil, 0, err
			}
		case SLOAD:
			slot, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			val, err := in.host.GetStorage(call.Address, evmtypes.Hash(slot.Bytes32()))
			if err != nil {
				return nil, 0, err
			}
			var v uint256.Int
			v.SetBytes(val[:])
			if err := stack.push(&v); err != nil {
				return nil, 0, err
			}
		case SSTORE:
			slot, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			val, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			current, err := in.host.GetStorage(call.Address, evmtypes.Hash(slot.Bytes32()))
			if err != nil {
				return nil, 0, err
			}
			valBytes := val.Bytes32()
			cost := gasSstoreReset
			if current == (evmtypes.Hash{}) && valBytes != ([32]byte{}) {
				cost = gasSstoreSet
			} else if current != (evmtypes.Hash{}) && valBytes == ([32]byte{}) {
				cost = gasSstoreClear
			}
			if err := charge(cost); err != nil {
				return nil, 0, err
			}
			if err := in.host.SetStorage(call.Address, evmtypes.Hash(slot.Bytes32()), evmtypes.Hash(valBytes)); err != nil {
				return nil, 0, err
			}
		case JUMP:
			dest, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			pc, err = in.jumpTo(call.Code, dest.Uint64())
			if err != nil {
				return nil, 0, err
			}
			continue
		case JUMPI:
			dest, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			cond, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			if !cond.IsZero() {
				pc, err = in.jumpTo(call.Code, dest.Uint64())
				if err != nil {
					return nil, 0, err
				}
				continue
			}
		case PC:
			if err := pushUint64(stack, pc); err != nil {
				return nil, 0, err
			}
		case MSIZE:
			if err := pushUint64(stack, mem.len()); err != nil {
				return nil, 0, err
			}
		case GAS:
			if err := pushUint64(stack, gas); err != nil {
				return nil, 0, err
			}
		case JUMPDEST:
			// no-op, just a valid jump target marker

		case RETURN, REVERT:
			offset, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			size, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			data, err := in.readMemory(mem, &gas, offset.Uint64(), size.Uint64())
			if err != nil {
				return nil, 0, err
			}
			if op == REVERT {
				return data, gas, ErrExecutionReverted
			}
			return data, gas, nil

		case INVALID:
			return nil, 0, fmt.Errorf("vm: invalid opcode at pc %d", pc)

		case CREATE, CREATE2:
			if err := in.execCreate(op, call, stack, mem, &gas); err != nil {
				return nil, 0, err
			}

		case CALL, CALLCODE, DELEGATECALL, STATICCALL:
			if err := in.execCall(op, call, stack, mem, &gas); err != nil {
				return nil, 0, err
			}

		case SELFDESTRUCT:
			a, err := stack.pop()
			if err != nil {
				return nil, 0, err
			}
			if err := in.host.SelfDestruct(call.Address, uint256ToAddress(&a)); err != nil {
				return nil, 0, err
			}
			return nil, gas, nil

		default:
			return nil, 0, fmt.Errorf("vm: unknown opcode 0x%x at pc %d", byte(op), pc)
		}

		pc++
	}
}

func isStateModifying(op OpCode) bool {
	switch op {
	case SSTORE, LOG0, LOG1, LOG2, LOG3, LOG4, CREATE, CREATE2, SELFDESTRUCT:
		return true
	}
	return false
}

func opName(op OpCode) string {
	return fmt.Sprintf("0x%x", byte(op))
}

func pushAddress(stack *Stack, a evmtypes.Address) error {
	var buf [32]byte
	copy(buf[12:], a[:])
	var v uint256.Int
	v.SetBytes(buf[:])
	return stack.push(&v)
}

func pushUint64(stack *Stack, n uint64) error {
	v := uint256.NewInt(n)
	return stack.push(v)
}

func uint256ToAddress(v *uint256.Int) evmtypes.Address {
	b := v.Bytes32()
	return evmtypes.BytesToAddress(b[12:])
}

func copyPadded(dst []byte, src []byte, offset uint64) {
	if offset >= uint64(len(src)) {
		return
	}
	copy(dst, src[offset:])
}

func (in *Interpreter) readMemory(mem *Memory, gas *uint64, offset, size uint64) ([]byte, error) {
	if err := in.chargeMemory(mem, gas, offset, size); err != nil {
		return nil, err
	}
	return mem.get(offset, size)
}

func (in *Interpreter) writeMemory(mem *Memory, gas *uint64, offset uint64, value []byte) error {
	if err := in.chargeMemory(mem, gas, offset, uint64(len(value))); err != nil {
		return err
	}
	return mem.set(offset, uint64(len(value)), value)
}

func (in *Interpreter) chargeMemory(mem *Memory, gas *uint64, offset, size uint64) error {
	if size == 0 {
		return nil
	}
	oldWords := (mem.len() + 31) / 32
	newWords := (offset + size + 31) / 32
	cost := memoryExpansionGas(oldWords*32, newWords*32)
	if *gas < cost {
		*gas = 0
		return ErrOutOfGas
	}
	*gas -= cost
	return nil
}

func (in *Interpreter) execMemCopy(stack *Stack, mem *Memory, gas *uint64, src []byte) error {
	destOffset, err := stack.pop()
	if err != nil {
		return err
	}
	srcOffset, err := stack.pop()
	if err != nil {
		return err
	}
	size, err := stack.pop()
	if err != nil {
		return err
	}
	buf := make([]byte, size.Uint64())
	copyPadded(buf, src, srcOffset.Uint64())
	if err := in.chargeMemory(mem, gas, destOffset.Uint64(), size.Uint64()); err != nil {
		return err
	}
	if *gas < wordGas(size.Uint64(), gasCopyWord) {
		*gas = 0
		return ErrOutOfGas
	}
	*gas -= wordGas(size.Uint64(), gasCopyWord)
	return mem.set(destOffset.Uint64(), size.Uint64(), buf)
}

func (in *Interpreter) jumpTo(code []byte, dest uint64) (uint64, error) {
	if dest >= uint64(len(code)) || OpCode(code[dest]) != JUMPDEST {
		return 0, fmt.Errorf("vm: invalid jump destination %d", dest)
	}
	return dest, nil
}

func (in *Interpreter) execCreate(op OpCode, call *CallContext, stack *Stack, mem *Memory, gas *uint64) error {
	value, err := stack.pop()
	if err != nil {
		return err
	}
	offset, err := stack.pop()
	if err != nil {
		return err
	}
	size, err := stack.pop()
	if err != nil {
		return err
	}
	var salt *uint256.Int
	if op == CREATE2 {
		s, err := stack.pop()
		if err != nil {
			return err
		}
		salt = &s
	}
	code, err := in.readMemory(mem, gas, offset.Uint64(), size.Uint64())
	if err != nil {
		return err
	}
	kind := CallKindCreate
	if op == CREATE2 {
		kind = CallKindCreate2
	}
	newAddr, ret, leftOverGas, err := in.host.Create(kind, call.Address, code, *gas, &value, salt)
	*gas = leftOverGas
	if err != nil && !errors.Is(err, ErrExecutionReverted) {
		return stack.push(uint256.NewInt(0))
	}
	_ = ret
	return pushAddress(stack, newAddr)
}

func (in *Interpreter) execCall(op OpCode, call *CallContext, stack *Stack, mem *Memory, gas *uint64) error {
	var gasArg, valueArg uint256.Int
	var err error
	gasArg, err = stack.pop()
	if err != nil {
		return err
	}
	addr, err := stack.pop()
	if err != nil {
		return err
	}
	if op == CALL || op == CALLCODE {
		valueArg, err = stack.pop()
		if err != nil {
			return err
		}
	}
	inOffset, err := stack.pop()
	if err != nil {
		return err
	}
	inSize, err := stack.pop()
	if err != nil {
		return err
	}
	outOffset, err := stack.pop()
	if err != nil {
		return err
	}
	outSize, err := stack.pop()
	if err != nil {
		return err
	}

	input, err := in.readMemory(mem, gas, inOffset.Uint64(), inSize.Uint64())
	if err != nil {
		return err
	}

	if call.ReadOnly && op == CALL && !valueArg.IsZero() {
		return fmt.Errorf("vm: CALL with value not allowed in a static call")
	}

	var kind CallKind
	switch op {
	case CALL:
		kind = CallKindCall
	case CALLCODE:
		kind = CallKindCallCode
	case DELEGATECALL:
		kind = CallKindDelegateCall
	case STATICCALL:
		kind = CallKindStaticCall
	}

	readOnly := call.ReadOnly || kind == CallKindStaticCall
	callerForCallback := call.Address
	ret, leftOverGas, callErr := in.host.Call(kind, callerForCallback, uint256ToAddress(&addr), input, gasArg.Uint64(), &valueArg, readOnly)

	refund := gasArg.Uint64() - leftOverGas
	if *gas < refund {
		*gas = 0
	} else {
		*gas -= refund
	}

	if err := in.writeMemory(mem, gas, outOffset.Uint64(), padOrTrim(ret, outSize.Uint64())); err != nil {
		return err
	}

	if callErr != nil && !errors.Is(callErr, ErrExecutionReverted) {
		return stack.push(uint256.NewInt(0))
	}
	return stack.push(uint256.NewInt(1))
}

func padOrTrim(data []byte, size uint64) []byte {
	out := make([]byte, size)
	copy(out, data)
	return out
}
