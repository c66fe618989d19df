package middleware

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/greyboxfuzz/evmfuzz/solver"
	"github.com/stretchr/testify/require"
)

// fakeSolverBackend always reports a fixed solution, standing in for a real
// SMT backend so the concolic pipeline can be exercised without cgo_z3.
type fakeSolverBackend struct{ sol solver.Solution }

func (b fakeSolverBackend) Solve(solver.SolveQuery) (solver.Solution, bool, error) {
	return b.sol, true, nil
}
func (fakeSolverBackend) Close() error { return nil }

func newTestConcolic(t *testing.T, sol solver.Solution) *Concolic {
	pool, err := solver.NewPool(1, func() (solver.Backend, error) { return fakeSolverBackend{sol: sol}, nil })
	require.NoError(t, err)
	dedup, err := solver.NewDedup(16)
	require.NoError(t, err)
	return NewConcolic(pool, dedup)
}

func TestConcolicSolvesSymbolicJumpiCondition(t *testing.T) {
	want := solver.Solution{InputBytes: []byte{0xAA}, Caller: common.Address{0x01}}
	c := newTestConcolic(t, want)
	h := &interp.Host{}

	c.BeforeExecute(h, &interp.ExecuteContext{})
	c.OnStep(h, &interp.StepContext{Op: evmvm.CALLDATALOAD, Stack: newStack(0)}) // symbolic operand
	c.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1})                           // comparison literal
	c.OnStep(h, &interp.StepContext{Op: evmvm.EQ})
	c.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1}) // JUMPI dest

	stack := newStack(0, 1) // cond=0 (branch not taken live), dest=1
	c.OnStep(h, &interp.StepContext{Op: evmvm.JUMPI, Stack: stack})

	sol, ok := c.PopSolution()
	require.True(t, ok)
	require.Equal(t, want, sol)
}

func TestConcolicDedupSkipsRepeatedCondition(t *testing.T) {
	c := newTestConcolic(t, solver.Solution{InputBytes: []byte{0x01}})
	h := &interp.Host{}
	c.BeforeExecute(h, &interp.ExecuteContext{})

	run := func() {
		c.OnStep(h, &interp.StepContext{Op: evmvm.CALLDATALOAD, Stack: newStack(0)})
		c.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1})
		c.OnStep(h, &interp.StepContext{Op: evmvm.EQ})
		c.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1})
		c.OnStep(h, &interp.StepContext{Op: evmvm.JUMPI, Stack: newStack(0, 1)})
	}
	run()
	_, ok := c.PopSolution()
	require.True(t, ok)

	run()
	_, ok = c.PopSolution()
	require.False(t, ok, "identical canonical condition must be deduped, not resolved twice")
}

func TestConcolicConcreteConditionNeverSolved(t *testing.T) {
	c := newTestConcolic(t, solver.Solution{InputBytes: []byte{0x01}})
	h := &interp.Host{}
	c.BeforeExecute(h, &interp.ExecuteContext{})

	c.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1}) // concrete cond
	c.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1}) // dest
	c.OnStep(h, &interp.StepContext{Op: evmvm.JUMPI, Stack: newStack(0, 1)})

	_, ok := c.PopSolution()
	require.False(t, ok)
}

func TestCanonicalizeIsStableAcrossEquivalentTrees(t *testing.T) {
	a := solver.BinOp{Op: "EQ", Left: solver.ByteInput{Offset: 4}, Right: solver.Const{}}
	b := solver.BinOp{Op: "EQ", Left: solver.ByteInput{Offset: 4}, Right: solver.Const{}}
	require.Equal(t, canonicalize(a), canonicalize(b))
}
