package mutate

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/greyboxfuzz/evmfuzz/abiinput"
	"github.com/greyboxfuzz/evmfuzz/txinput"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func testInput() *txinput.Input {
	leaf := &abiinput.Fixed256{}
	tuple := &abiinput.Tuple{Children: []abiinput.Node{leaf}}
	return &txinput.Input{
		Caller:             common.Address{1},
		Value:              uint256.NewInt(0),
		LiquidationPercent: 0,
		Randomness:         []byte{0x00},
		Repeat:             1,
		Payload:            txinput.Payload{Tree: &abiinput.Root{Args: tuple}},
	}
}

func alwaysPick(idx int) SnapshotPicker {
	return func(r *rand.Rand) (int, bool) { return idx, true }
}

func TestMutateNeverSkipsWithFullMenuAvailable(t *testing.T) {
	d := &Driver{
		Rand:          rand.New(rand.NewSource(1)),
		Snapshots:     alwaysPick(7),
		CorpusCallers: []common.Address{{1}, {2}, {3}},
		MaxValue:      uint256.NewInt(1_000_000),
	}
	in := testInput()
	changed := d.Mutate(in, true)
	require.True(t, changed)
}

func TestSnapshotSwapSkipsWhenSchedulerReturnsSameIndex(t *testing.T) {
	d := &Driver{Rand: rand.New(rand.NewSource(2)), Snapshots: alwaysPick(3)}
	in := testInput()
	in.SnapshotIndex = 3
	require.False(t, d.snapshotSwap(in))
}

func TestLiquidationChangeStaysInBounds(t *testing.T) {
	d := &Driver{Rand: rand.New(rand.NewSource(3))}
	in := testInput()
	for i := 0; i < 50; i++ {
		d.liquidationChange(in)
		require.GreaterOrEqual(t, in.LiquidationPercent, 0)
		require.LessOrEqual(t, in.LiquidationPercent, 10)
	}
}

func TestRandomnessFlipTogglesABit(t *testing.T) {
	d := &Driver{Rand: rand.New(rand.NewSource(4))}
	in := testInput()
	before := in.Randomness[0]
	d.randomnessFlip(in)
	require.NotEqual(t, before, in.Randomness[0])
}

func TestUninitializedSeedResamplesSnapshot(t *testing.T) {
	d := &Driver{Rand: rand.New(rand.NewSource(5)), Snapshots: alwaysPick(42)}
	in := testInput()
	in.SnapshotIndex = 0
	d.Mutate(in, false)
	require.Equal(t, 42, in.SnapshotIndex)
}
