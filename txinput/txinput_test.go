package txinput

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestValidateLiquidationBounds(t *testing.T) {
	in := &Input{Kind: ABICall, LiquidationPercent: 11, Repeat: 1}
	require.Error(t, in.Validate(false))

	in.LiquidationPercent = 10
	require.NoError(t, in.Validate(false))
}

func TestValidateResumeRequiresContinuation(t *testing.T) {
	in := &Input{Kind: ResumeContinuation, Repeat: 1}
	require.Error(t, in.Validate(false))
	require.NoError(t, in.Validate(true))
}

func TestCloneIndependence(t *testing.T) {
	in := &Input{
		Value:      uint256.NewInt(5),
		Randomness: []byte{1, 2, 3},
		Repeat:     1,
	}
	cp := in.Clone()
	cp.Value.AddUint64(cp.Value, 1)
	cp.Randomness[0] = 9

	require.Equal(t, uint64(5), in.Value.Uint64())
	require.Equal(t, byte(1), in.Randomness[0])
}

func TestPrettyPrintIncludesSenderAndInfo(t *testing.T) {
	trace := []Concise{
		ToConcise(&Input{Caller: common.HexToAddress("0x1"), Target: common.HexToAddress("0x2"), Value: uint256.NewInt(0)}, 0, nil, ""),
		ToConcise(&Input{Caller: common.HexToAddress("0x2"), Target: common.HexToAddress("0x3"), Value: uint256.NewInt(0)}, 1, nil, "nested"),
	}
	out := PrettyPrint(trace)
	require.Contains(t, out, "nested")
	require.Contains(t, out, "0x0000000000000000000000000000000000000001")
}
