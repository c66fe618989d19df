package interp

import "github.com/holiman/uint256"

// Stack is the interpreter's 256-bit operand stack.
type Stack struct {
	data []uint256.Int
}

func newStack() *Stack { return &Stack{} }

// NewStackFromUint64 builds a stack from plain uint64 values, top-of-stack
// last, for synthesizing interp.StepContext values in tests that live
// outside this package (e.g. middleware unit tests).
func NewStackFromUint64(vals ...uint64) *Stack {
	s := &Stack{}
	for _, v := range vals {
		var x uint256.Int
		x.SetUint64(v)
		s.push(&x)
	}
	return s
}

func (s *Stack) push(v *uint256.Int) { s.data = append(s.data, *v) }

func (s *Stack) pop() uint256.Int {
	v := s.data[len(s.data)-1]
	s.data = s.data[:len(s.data)-1]
	return v
}

func (s *Stack) peek() *uint256.Int { return &s.data[len(s.data)-1] }

// Back returns the n-th element from the top without popping (0 = top).
func (s *Stack) Back(n int) *uint256.Int { return &s.data[len(s.data)-1-n] }

// Len reports the current depth.
func (s *Stack) Len() int { return len(s.data) }

// Set overwrites the n-th element from the top (0 = top) — the one
// sanctioned middleware mutation (§4.B point 2).
func (s *Stack) Set(n int, v *uint256.Int) { s.data[len(s.data)-1-n] = *v }

// Clone deep-copies the stack (used for continuation snapshots, §3).
func (s *Stack) Clone() *Stack {
	cp := &Stack{data: make([]uint256.Int, len(s.data))}
	copy(cp.data, s.data)
	return cp
}
