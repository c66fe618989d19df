package fuzzer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/greyboxfuzz/evmfuzz/abiinput"
	"github.com/greyboxfuzz/evmfuzz/txinput"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunPlainHonorsRepeat(t *testing.T) {
	e := newTestEngine(t)
	x := NewExecutor(e)

	in := &txinput.Input{
		Kind:   txinput.ABICall,
		Caller: common.Address{0x02},
		Target: target,
		Value:  uint256.NewInt(0),
		Payload: txinput.Payload{
			Tree: &abiinput.Root{Args: &abiinput.Tuple{Children: []abiinput.Node{&abiinput.Fixed256{}}}},
		},
		Repeat: 3,
	}
	kind, err := x.Run(in)
	require.NoError(t, err)
	require.Equal(t, 0, int(kind))
}

func TestExecutorRunPlainAlwaysRunsTheGivenInput(t *testing.T) {
	e := newTestEngine(t)
	x := NewExecutor(e)

	// A second target whose code is a bare REVERT with no stack operands
	// (stack underflow, ErrorKindOpcode). The pre-registered seed input
	// targets the STOP contract (clean, ErrorKindNone), so any run that
	// dispatched to it instead of the given Input would not observe this
	// error — pinning down that runPlain always executes the exact Input
	// passed in, not whichever the vote scheduler happens to pick.
	target2 := common.Address{0xcc}
	e.Snapshots[0].Account(target2).Code = []byte{0xfd}

	in := &txinput.Input{
		Kind:   txinput.ABICall,
		Caller: common.Address{0x03},
		Target: target2,
		Value:  uint256.NewInt(0),
		Payload: txinput.Payload{
			Tree: &abiinput.Root{Args: &abiinput.Tuple{Children: []abiinput.Node{&abiinput.Fixed256{}}}},
		},
		Repeat: 5,
	}
	kind, err := x.Run(in)
	require.NoError(t, err)
	require.Equal(t, 1, int(kind)) // ErrorKindOpcode, every one of the 5 repeats
}

func TestExecutorResumeRejectsFlatSnapshot(t *testing.T) {
	e := newTestEngine(t)
	x := NewExecutor(e)

	seedIdx, _ := e.SnapCorpus.Sched.Select()
	in := &txinput.Input{
		Kind:          txinput.ResumeContinuation,
		SnapshotIndex: seedIdx,
		Repeat:        1,
	}
	_, err := x.Run(in)
	require.Error(t, err)
}

func TestExecutorRejectsUnknownKind(t *testing.T) {
	e := newTestEngine(t)
	x := NewExecutor(e)

	_, err := x.Run(&txinput.Input{Kind: txinput.Kind(99), Repeat: 1})
	require.Error(t, err)
}
