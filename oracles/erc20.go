package oracles

import (
	"github.com/greyboxfuzz/evmfuzz/feedback"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
	"github.com/holiman/uint256"
)

// FundLossThreshold is the ETH-scaled bug threshold named in §4.C.8 /
// E3: earned-owed must reach 10^19 wei (greater than or equal) to be reported.
var FundLossThreshold = mustUint256("10000000000000000000")

func mustUint256(dec string) *uint256.Int {
	v, err := uint256.FromDecimal(dec)
	if err != nil {
		panic(err)
	}
	return v
}

// ERC20Oracle reports a "Fund Loss" bug when the flashloan ledger's net gain
// reaches FundLossThreshold (§4.C.8, E3).
type ERC20Oracle struct {
	State *vmstate.VMState
}

func (o *ERC20Oracle) Kind() string { return "erc20" }

func (o *ERC20Oracle) Transition(ctx *feedback.ExecContext, stage int) int { return stage }

func (o *ERC20Oracle) Detect(ctx *feedback.ExecContext, stage int) []uint64 {
	gain, ok := o.State.Flashloan.NetGain()
	if !ok || gain.Cmp(FundLossThreshold) < 0 {
		return nil
	}
	// The recorded bug id is derived from the gain magnitude (truncated to
	// 64 bits) so identical-magnitude drains dedupe, per §8 property 9
	// (bug-id stability for a fixed oracle body and input).
	return []uint64{feedback.BugID(PrefixERC20, gain.Uint64())}
}

// EthFigure reports (earned-owed)/10^21 to 3 decimals as milli-ETH*1000,
// matching E3's "3-decimal formatting" requirement without pulling in a
// decimal/float dependency the corpus doesn't otherwise use.
func EthFigure(gain *uint256.Int) (wholeMilliEth uint64) {
	denom := mustUint256("1000000000000000000") // 10^18; result is in milli-ETH units (10^21/10^3)
	scaled := new(uint256.Int).Div(gain, denom)
	return scaled.Uint64()
}
