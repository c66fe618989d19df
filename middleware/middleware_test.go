package middleware

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
	"github.com/stretchr/testify/require"
)

func newStack(vals ...uint64) *interp.Stack {
	return interp.NewStackFromUint64(vals...)
}

func TestCoverageJumpiIncrements(t *testing.T) {
	cov := NewCoverage()
	h := &interp.Host{}
	ctx := &interp.StepContext{PC: 10, Op: evmvm.JUMPI, Stack: newStack(1, 20)}
	cov.OnStep(h, ctx)
	cov.OnStep(h, ctx)

	total := 0
	for _, b := range cov.JmpMap {
		total += int(b)
	}
	require.Equal(t, 2, total)
}

func TestCmpTracksMinDistance(t *testing.T) {
	c := NewCmp()
	h := &interp.Host{}
	ctx := &interp.StepContext{PC: 5, Op: evmvm.LT, Stack: newStack(100, 90)}
	c.OnStep(h, ctx)
	idx := mapIndex(uint64(5))
	require.Equal(t, uint64(10), c.Map[idx])

	ctx2 := &interp.StepContext{PC: 5, Op: evmvm.LT, Stack: newStack(100, 95)}
	c.OnStep(h, ctx2)
	require.Equal(t, uint64(5), c.Map[idx], "distance should only decrease")
}

func TestDataflowInterestingOnNovelCombo(t *testing.T) {
	global := make([][4]bool, MapSize)
	d := NewDataflow(global)
	h := &interp.Host{}

	// SLOAD slot 7 then SSTORE slot 7 with a small value (bucket 0).
	d.OnStep(h, &interp.StepContext{Op: evmvm.SLOAD, Stack: newStack(7)})
	d.OnStep(h, &interp.StepContext{Op: evmvm.SSTORE, Stack: newStack(1, 7)})
	require.True(t, d.Interesting)

	d.BeforeExecute(h, &interp.ExecuteContext{})
	require.False(t, d.Interesting)

	// Same (slot, bucket) again must not be interesting a second time.
	d.OnStep(h, &interp.StepContext{Op: evmvm.SLOAD, Stack: newStack(7)})
	d.OnStep(h, &interp.StepContext{Op: evmvm.SSTORE, Stack: newStack(1, 7)})
	require.False(t, d.Interesting)
}

func TestReentrancyMiddlewareGluesWitness(t *testing.T) {
	state := vmstate.NewEmptySeed()
	h := interp.NewHost(state, interp.NewChain(), interp.DefaultConfig())
	r := NewReentrancy()

	addr := [20]byte{1}
	h.Chain.Use(r)

	r.OnStep(h, &interp.StepContext{Op: evmvm.SLOAD, Stack: newStack(3), Addr: addr, Depth: 0})
	r.OnStep(h, &interp.StepContext{Op: evmvm.SLOAD, Stack: newStack(3), Addr: addr, Depth: 1})
	r.OnStep(h, &interp.StepContext{Op: evmvm.SSTORE, Stack: newStack(9, 3), Addr: addr, Depth: 0})

	key := vmstate.StorageKey{Addr: common.Address(addr), Slot: common.Hash{31: 3}}
	require.True(t, state.Reentrancy.Found.Contains(key))
}

func TestCheatcodeWarpAndAssert(t *testing.T) {
	c := NewCheatcode()
	h := interp.NewHost(vmstate.NewEmptySeed(), interp.NewChain(), interp.DefaultConfig())

	input := append(selectorBytes("warp(uint256)"), make([]byte, 32)...)
	input[35] = 0x7b // 123
	_, ok := c.Run(h, common.Address{}, input)
	require.True(t, ok)
	require.Equal(t, uint64(123), c.Warp.Uint64())

	trueArgs := append(selectorBytes("assertTrue(bool)"), make([]byte, 32)...)
	trueArgs[35] = 0x00 // false
	c.Run(h, common.Address{}, trueArgs)
	require.Len(t, c.Failures, 1)
}

func selectorBytes(sig string) []byte {
	s := selector(sig)
	return append([]byte(nil), s[:]...)
}

// TestCheatcodeDispatchesThroughCallAddress routes a cheat call through
// Host.Call/Interpreter.Precompiles at the real CheatcodeAddress, exercising
// the same dispatch path a contract's CALL opcode uses (interp/host.go's
// precompile lookup) rather than calling c.Run directly, so a regression in
// CheatcodeAddress itself would fail this test.
func TestCheatcodeDispatchesThroughCallAddress(t *testing.T) {
	c := NewCheatcode()
	in := interp.NewInterpreter()
	in.Precompiles[CheatcodeAddress] = c
	h := interp.NewHost(vmstate.NewEmptySeed(), interp.NewChain(), interp.DefaultConfig())

	input := append(selectorBytes("warp(uint256)"), make([]byte, 32)...)
	input[35] = 0x7b // 123

	res, err := h.Call(in, common.Address{}, CheatcodeAddress, nil, input, false)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, uint64(123), c.Warp.Uint64())
}

// TestCheatcodeUnknownSelectorRevertsWithErrorPrefix checks that a malformed
// cheat call is made to revert with ERROR_PREFIX rather than silently
// succeeding or returning an unrelated payload.
func TestCheatcodeUnknownSelectorRevertsWithErrorPrefix(t *testing.T) {
	c := NewCheatcode()
	in := interp.NewInterpreter()
	in.Precompiles[CheatcodeAddress] = c
	h := interp.NewHost(vmstate.NewEmptySeed(), interp.NewChain(), interp.DefaultConfig())

	res, err := h.Call(in, common.Address{}, CheatcodeAddress, nil, []byte{0xde, 0xad, 0xbe, 0xef}, false)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, errorPrefix[:], res.ReturnData)
	require.True(t, c.CheatError)
}

// TestTaintSha3SurvivesThroughComparisonToJumpi reproduces the realistic
// KECCAK256 -> EQ -> JUMPI pattern: the hash-derived bit must still be set by
// the time JUMPI observes it, through the intervening EQ, for the §4.C.4
// bypass to rewrite the branch condition.
func TestTaintSha3SurvivesThroughComparisonToJumpi(t *testing.T) {
	tt := NewTaint(1024, 0xAB)
	h := &interp.Host{}

	tt.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1})
	tt.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1})
	tt.OnStep(h, &interp.StepContext{Op: evmvm.KECCAK256})
	tt.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1})
	tt.OnStep(h, &interp.StepContext{Op: evmvm.EQ})
	tt.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1}) // JUMPI's dest operand

	stack := newStack(5, 99) // cond (from EQ) below dest, dest on top
	ctx := &interp.StepContext{Op: evmvm.JUMPI, Stack: stack}
	tt.OnStep(h, ctx)

	require.Equal(t, uint64(0xAB), stack.Back(1).Uint64(), "JUMPI must rewrite the SHA3-derived condition")
}

// TestTaintCalldataConditionNotRewrittenBySha3Bypass confirms a
// calldata-tainted (but not SHA3-derived) JUMPI condition is left alone: the
// bypass is specific to hash-gated branches, not every tainted branch.
func TestTaintCalldataConditionNotRewrittenBySha3Bypass(t *testing.T) {
	tt := NewTaint(1024, 0xAB)
	h := &interp.Host{}

	tt.OnStep(h, &interp.StepContext{Op: evmvm.CALLDATALOAD, Stack: newStack(0)}) // cond: tainted, not SHA3-derived
	tt.OnStep(h, &interp.StepContext{Op: evmvm.PUSH1})                           // dest

	stack := newStack(5, 99)
	ctx := &interp.StepContext{Op: evmvm.JUMPI, Stack: stack}
	tt.OnStep(h, ctx)

	require.Equal(t, uint64(5), stack.Back(1).Uint64(), "non-SHA3-derived condition must not be rewritten")
}
