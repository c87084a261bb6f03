package vm

import (
	"github.com/holiman/uint256"
)

// execBinary implements every two-operand arithmetic, comparison, and
// bitwise opcode. The EVM stack convention is top-of-stack first: for
// non-commutative ops like SUB and DIV the first pop is the left operand.
func (in *Interpreter) execBinary(op OpCode, stack *Stack, gas *uint64) error {
	if op == EXP {
		base, err := stack.pop()
		if err != nil {
			return err
		}
		exp, err := stack.pop()
		if err != nil {
			return err
		}
		cost := gasSlowStep + gasExtStep*uint64(byteLen(&exp))
		if *gas < cost {
			*gas = 0
			return ErrOutOfGas
		}
		*gas -= cost
		var out uint256.Int
		out.Exp(&base, &exp)
		return stack.push(&out)
	}

	a, err := stack.pop()
	if err != nil {
		return err
	}
	b, err := stack.pop()
	if err != nil {
		return err
	}

	var out uint256.Int
	switch op {
	case ADD:
		out.Add(&a, &b)
	case MUL:
		out.Mul(&a, &b)
	case SUB:
		out.Sub(&a, &b)
	case DIV:
		out.Div(&a, &b)
	case SDIV:
		out.SDiv(&a, &b)
	case MOD:
		out.Mod(&a, &b)
	case SMOD:
		out.SMod(&a, &b)
	case LT:
		out.SetBool(a.Lt(&b))
	case GT:
		out.SetBool(a.Gt(&b))
	case SLT:
		out.SetBool(a.Slt(&b))
	case SGT:
		out.SetBool(a.Sgt(&b))
	case EQ:
		out.SetBool(a.Eq(&b))
	case AND:
		out.And(&a, &b)
	case OR:
		out.Or(&a, &b)
	case XOR:
		out.Xor(&a, &b)
	case BYTE:
		// a is the index (0 = most significant byte), b is the word.
		out.SetBytes(byteAt(&b, &a))
	case SHL:
		if a.LtUint64(256) {
			out.Lsh(&b, uint(a.Uint64()))
		}
	case SHR:
		if a.LtUint64(256) {
			out.Rsh(&b, uint(a.Uint64()))
		}
	case SAR:
		if a.LtUint64(256) {
			out.SRsh(&b, uint(a.Uint64()))
		} else if b.Sign() < 0 {
			out.SetAllOne()
		}
	case ADDMOD:
		mod, err := stack.pop()
		if err != nil {
			return err
		}
		out.AddMod(&a, &b, &mod)
	case MULMOD:
		mod, err := stack.pop()
		if err != nil {
			return err
		}
		out.MulMod(&a, &b, &mod)
	case SIGNEXTEND:
		out.ExtendSign(&b, &a)
	}
	return stack.push(&out)
}

func (in *Interpreter) execUnary(op OpCode, stack *Stack) error {
	a, err := stack.pop()
	if err != nil {
		return err
	}
	var out uint256.Int
	switch op {
	case ISZERO:
		out.SetBool(a.IsZero())
	case NOT:
		out.Not(&a)
	}
	return stack.push(&out)
}

func byteLen(v *uint256.Int) int {
	return (v.BitLen() + 7) / 8
}

// byteAt returns the single byte at index idx (0 = most significant) of
// word as a left-padded 32-byte slice, EVM BYTE opcode semantics.
func byteAt(word *uint256.Int, idx *uint256.Int) []byte {
	if idx.GtUint64(31) {
		return make([]byte, 32)
	}
	b := word.Bytes32()
	out := make([]byte, 32)
	out[31] = b[idx.Uint64()]
	return out
}
