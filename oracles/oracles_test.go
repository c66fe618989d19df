package oracles

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/greyboxfuzz/evmfuzz/feedback"
	"github.com/greyboxfuzz/evmfuzz/middleware"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBugIDPrefixSeparation(t *testing.T) {
	a := feedback.BugID(PrefixAssertion, 5)
	b := feedback.BugID(PrefixERC20, 5)
	require.NotEqual(t, a, b)
	require.Equal(t, uint64(PrefixAssertion), a>>56)
}

func TestAssertionOracleReportsEachFailure(t *testing.T) {
	c := middleware.NewCheatcode()
	c.Failures = append(c.Failures, errors.New("assertTrue: condition false"))
	o := &AssertionOracle{Cheats: c}

	ids := o.Detect(&feedback.ExecContext{}, 0)
	require.Len(t, ids, 1)
	require.Equal(t, uint64(PrefixAssertion), ids[0]>>56)
}

func TestERC20OracleFiresAboveThreshold(t *testing.T) {
	state := vmstate.NewEmptySeed()
	state.Flashloan.Earned, _ = uint256.FromDecimal("20000000000000000000")
	state.Flashloan.Owed, _ = uint256.FromDecimal("1000000000000000000")

	o := &ERC20Oracle{State: state}
	ids := o.Detect(&feedback.ExecContext{}, 0)
	require.Len(t, ids, 1)
}

func TestERC20OracleSilentBelowThreshold(t *testing.T) {
	state := vmstate.NewEmptySeed()
	state.Flashloan.Earned, _ = uint256.FromDecimal("100")
	state.Flashloan.Owed, _ = uint256.FromDecimal("0")

	o := &ERC20Oracle{State: state}
	require.Empty(t, o.Detect(&feedback.ExecContext{}, 0))
}

func TestV2PairOracleFlagsLargeRatioShift(t *testing.T) {
	state := vmstate.NewEmptySeed()
	pool := common.Address{0xAA}
	state.Flashloan.PrevReserves[pool] = vmstate.Reserves{R0: uint256.NewInt(1000), R1: uint256.NewInt(1000)}

	o := &V2PairOracle{State: state, RatioShiftBP: 2000}
	require.Empty(t, o.Detect(&feedback.ExecContext{}, 0), "first observation only seeds the baseline")

	state.Flashloan.PrevReserves[pool] = vmstate.Reserves{R0: uint256.NewInt(2000), R1: uint256.NewInt(500)}
	ids := o.Detect(&feedback.ExecContext{}, 0)
	require.Len(t, ids, 1)
}

func TestReserveProducerRefreshesPrevReservesFromBatchCall(t *testing.T) {
	state := vmstate.NewEmptySeed()
	pool := common.Address{0xBB}

	word := func(v uint64) []byte {
		b := make([]byte, 32)
		b[31] = byte(v)
		return b
	}
	encoded := append(word(111), word(222)...)

	p := &ReserveProducer{Pools: []common.Address{pool}}
	ctx := &feedback.ExecContext{
		State: state,
		CallPostBatch: func(calls []feedback.BatchCall) [][]byte {
			require.Len(t, calls, 1)
			require.Equal(t, pool, calls[0].Target)
			return [][]byte{encoded}
		},
	}
	p.Produce(ctx)

	got, ok := state.Flashloan.PrevReserves[pool]
	require.True(t, ok)
	require.Equal(t, uint64(111), got.R0.Uint64())
	require.Equal(t, uint64(222), got.R1.Uint64())
}

func TestReserveProducerSkipsWithoutBatchHook(t *testing.T) {
	state := vmstate.NewEmptySeed()
	p := &ReserveProducer{Pools: []common.Address{{0xCC}}}
	require.NotPanics(t, func() {
		p.Produce(&feedback.ExecContext{State: state})
	})
}

func TestFunctionOracleDisabledByDefault(t *testing.T) {
	o := &FunctionOracle{Failed: func() bool { return true }}
	require.Empty(t, o.Detect(&feedback.ExecContext{}, 0))

	o.Enabled = true
	require.NotEmpty(t, o.Detect(&feedback.ExecContext{}, 0))
}

func TestStateCompOracleFiresOnceOnContainment(t *testing.T) {
	state := vmstate.NewEmptySeed()
	desired := vmstate.NewEmptySeed()
	o := &StateCompOracle{State: state, Desired: desired, Mode: vmstate.Exact, LocalID: 1}

	require.Len(t, o.Detect(&feedback.ExecContext{}, 0), 1)
	require.Empty(t, o.Detect(&feedback.ExecContext{}, 0), "must not re-fire once already reported")
}
