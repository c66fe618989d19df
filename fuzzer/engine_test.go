package fuzzer

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/greyboxfuzz/evmfuzz/abiinput"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/greyboxfuzz/evmfuzz/txinput"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var target = common.Address{0xaa}

func newTestEngine(t *testing.T) *Engine {
	e := NewEngine(rand.New(rand.NewSource(1)), interp.DefaultConfig())

	// STOP at the target so the interpreter returns cleanly without needing
	// a real contract's worth of bytecode.
	seedIdx, ok := e.SnapCorpus.Sched.Select()
	require.True(t, ok)
	e.Snapshots[seedIdx].Account(target).Code = []byte{0x00}

	in := &txinput.Input{
		Kind:   txinput.ABICall,
		Caller: common.Address{0x01},
		Target: target,
		Value:  uint256.NewInt(0),
		Payload: txinput.Payload{
			Tree: &abiinput.Root{Args: &abiinput.Tuple{Children: []abiinput.Node{&abiinput.Fixed256{}}}},
		},
		Repeat: 1,
	}
	e.AddSeedInput(in)
	e.RegisterOracles()
	return e
}

func TestRunIterationOnStopOpcodeIsClean(t *testing.T) {
	e := newTestEngine(t)
	kind, err := e.RunIteration()
	require.NoError(t, err)
	require.Equal(t, 0, int(kind))
}

func TestRunIterationTenRunsKeepCorpusNonEmpty(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 10; i++ {
		_, err := e.RunIteration()
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, e.TxSched.Len(), 1)
}

func TestRunIterationReportsHostErrorOnUnknownTarget(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(2)), interp.Config{MaxCallDepth: 8, Fetcher: failFetcher{}})
	in := &txinput.Input{
		Kind:   txinput.ABICall,
		Caller: common.Address{0x01},
		Target: common.Address{0xbb},
		Value:  uint256.NewInt(0),
		Payload: txinput.Payload{
			Tree: &abiinput.Root{Args: &abiinput.Tuple{Children: []abiinput.Node{&abiinput.Fixed256{}}}},
		},
		Repeat: 1,
	}
	e.AddSeedInput(in)
	e.RegisterOracles()

	kind, err := e.RunIteration()
	require.NoError(t, err)
	require.Equal(t, 2, int(kind)) // ErrorKindHost
}

type failFetcher struct{}

func (failFetcher) FetchCode(addr common.Address) ([]byte, error) {
	return nil, errFetch
}

var errFetch = &fetchErr{}

type fetchErr struct{}

func (*fetchErr) Error() string { return "fetch failed" }
