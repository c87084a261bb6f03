package vm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// maxStackDepth mirrors the standard EVM's 1024-item stack limit.
const maxStackDepth = 1024

// Stack is the interpreter's 256-bit word stack.
type Stack struct {
	data []uint256.Int
}

func newStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

func (s *Stack) push(v *uint256.Int) error {
	if len(s.data) >= maxStackDepth {
		return fmt.Errorf("vm: stack overflow")
	}
	s.data = append(s.data, *v)
	return nil
}

func (s *Stack) pop() (uint256.Int, error) {
	if len(s.data) == 0 {
		return uint256.Int{}, fmt.Errorf("vm: stack underflow")
	}
	v := s.data[len(s.data)-1]
	s.data = s.data[:len(s.data)-1]
	return v, nil
}

func (s *Stack) peek(depth int) (*uint256.Int, error) {
	if depth < 1 || depth > len(s.data) {
		return nil, fmt.Errorf("vm: stack index %d out of range (depth %d)", depth, len(s.data))
	}
	return &s.data[len(s.data)-depth], nil
}

func (s *Stack) dup(depth int) error {
	v, err := s.peek(depth)
	if err != nil {
		return err
	}
	return s.push(v)
}

func (s *Stack) swap(depth int) error {
	top, err := s.peek(1)
	if err != nil {
		return err
	}
	other, err := s.peek(depth + 1)
	if err != nil {
		return err
	}
	*top, *other = *other, *top
	return nil
}

func (s *Stack) len() int { return len(s.data) }
