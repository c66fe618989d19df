package vmstate

import (
	"github.com/ethereum/go-ethereum/common"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
)

// Reserves is the (r0, r1) reserve pair of a Uniswap-style pool, tracked so
// the ERC20/v2-pair oracles (§4.C.8, §6) can diff against the previous
// observation.
type Reserves struct {
	R0, R1 *uint256.Int
}

// FlashloanAccount tracks the earn/owe accounting that the flashloan
// middleware (§4.C.8) accumulates across a transaction sequence. Earned and
// Owed are monotonic per execution (§3 invariant).
type FlashloanAccount struct {
	Earned *uint256.Int // 256-bit; RecordDelta saturates at the maximum instead of wrapping.
	Owed   *uint256.Int

	OracleRecheckBalance mapset.Set[common.Address]
	OracleRecheckReserve mapset.Set[common.Address]

	PrevReserves       map[common.Address]Reserves
	UnliquidatedTokens map[common.Address]*uint256.Int
}

// NewFlashloanAccount returns a zeroed flashloan accounting block.
func NewFlashloanAccount() *FlashloanAccount {
	return &FlashloanAccount{
		Earned:               new(uint256.Int),
		Owed:                 new(uint256.Int),
		OracleRecheckBalance: mapset.NewSet[common.Address](),
		OracleRecheckReserve: mapset.NewSet[common.Address](),
		PrevReserves:         make(map[common.Address]Reserves),
		UnliquidatedTokens:   make(map[common.Address]*uint256.Int),
	}
}

// Clone deep-copies the flashloan accounting block.
func (f *FlashloanAccount) Clone() *FlashloanAccount {
	if f == nil {
		return nil
	}
	cp := &FlashloanAccount{
		Earned:               new(uint256.Int).Set(f.Earned),
		Owed:                 new(uint256.Int).Set(f.Owed),
		OracleRecheckBalance: f.OracleRecheckBalance.Clone(),
		OracleRecheckReserve: f.OracleRecheckReserve.Clone(),
		PrevReserves:         make(map[common.Address]Reserves, len(f.PrevReserves)),
		UnliquidatedTokens:   make(map[common.Address]*uint256.Int, len(f.UnliquidatedTokens)),
	}
	for k, v := range f.PrevReserves {
		cp.PrevReserves[k] = Reserves{R0: new(uint256.Int).Set(v.R0), R1: new(uint256.Int).Set(v.R1)}
	}
	for k, v := range f.UnliquidatedTokens {
		cp.UnliquidatedTokens[k] = new(uint256.Int).Set(v)
	}
	return cp
}

// RecordDelta folds a balanceOf delta observed for `caller` into the earn/owe
// ledger: positive deltas accrue as earned, negative as owed, per §4.C.8.
func (f *FlashloanAccount) RecordDelta(delta *uint256.Int, negative bool) {
	if negative {
		if _, overflow := f.Owed.AddOverflow(f.Owed, delta); overflow {
			f.Owed.SetAllOne()
		}
		return
	}
	if _, overflow := f.Earned.AddOverflow(f.Earned, delta); overflow {
		f.Earned.SetAllOne()
	}
}

// NetGain returns Earned-Owed, or zero (with ok=false) if Owed exceeds
// Earned (there is no loss reported by this ledger, only gain).
func (f *FlashloanAccount) NetGain() (gain *uint256.Int, ok bool) {
	if f.Owed.Cmp(f.Earned) > 0 {
		return new(uint256.Int), false
	}
	return new(uint256.Int).Sub(f.Earned, f.Owed), true
}
