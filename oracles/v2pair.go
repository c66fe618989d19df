package oracles

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/greyboxfuzz/evmfuzz/feedback"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
	"github.com/holiman/uint256"
)

// getReservesSelector is keccak256("getReserves()")[:4], the Uniswap-v2-pair
// read this producer batches against every registered pool (§4.I "ctx.
// call_post_batch").
var getReservesSelector = func() [4]byte {
	h := crypto.Keccak256([]byte("getReserves()"))
	var s [4]byte
	copy(s[:], h[:4])
	return s
}()

// ReserveProducer implements feedback.Producer: it refreshes
// VMState.Flashloan.PrevReserves from a read-only getReserves() batch call
// against each registered pool before the oracle stage runs, so V2PairOracle
// always compares against this execution's post-state reserves rather than
// a stale observation (§4.I ordering).
type ReserveProducer struct {
	Pools []common.Address
}

func (p *ReserveProducer) Produce(ctx *feedback.ExecContext) {
	if ctx.CallPostBatch == nil || len(p.Pools) == 0 {
		return
	}
	calls := make([]feedback.BatchCall, len(p.Pools))
	for i, addr := range p.Pools {
		calls[i] = feedback.BatchCall{Target: addr, Data: getReservesSelector[:]}
	}
	results := ctx.CallPostBatch(calls)
	for i, ret := range results {
		if len(ret) < 64 {
			continue
		}
		r0 := new(uint256.Int).SetBytes(ret[0:32])
		r1 := new(uint256.Int).SetBytes(ret[32:64])
		ctx.State.Flashloan.PrevReserves[p.Pools[i]] = vmstate.Reserves{R0: r0, R1: r1}
	}
}

// NotifyEnd implements feedback.Producer; ReserveProducer has no per-stage
// scratch state to clear since it writes straight into the snapshot's own
// Flashloan ledger.
func (p *ReserveProducer) NotifyEnd(ctx *feedback.ExecContext) {}

// V2PairOracle watches Uniswap-v2-style (r0, r1) reserve pairs for an
// imbalance consistent with the flashloan price-manipulation pattern named
// in §4.C.8. A pool is flagged once its reserve ratio moves more than
// RatioShiftBP (basis points) against the previous observation within a
// single execution. PrevReserves is refreshed by a ReserveProducer
// (feedback.Producer) before the oracle stage runs (§4.I ordering); the
// oracle keeps its own last-flagged-against baseline so a single one-time
// shift is reported once, not every execution after.
type V2PairOracle struct {
	State        *vmstate.VMState
	RatioShiftBP uint64 // e.g. 2000 = 20%

	baseline map[common.Address]vmstate.Reserves
}

func (o *V2PairOracle) Kind() string { return "v2pair" }

func (o *V2PairOracle) Transition(ctx *feedback.ExecContext, stage int) int { return stage }

func (o *V2PairOracle) Detect(ctx *feedback.ExecContext, stage int) []uint64 {
	var ids []uint64
	for addr := range o.State.Flashloan.PrevReserves {
		if o.shifted(addr) {
			ids = append(ids, feedback.BugID(PrefixV2Pair, addrLocalID(addr)))
		}
	}
	return ids
}

func (o *V2PairOracle) shifted(addr common.Address) bool {
	if o.baseline == nil {
		o.baseline = make(map[common.Address]vmstate.Reserves)
	}
	cur, ok := o.State.Flashloan.PrevReserves[addr]
	if !ok || cur.R0.IsZero() || cur.R1.IsZero() {
		return false
	}
	base, seen := o.baseline[addr]
	if !seen || base.R0.IsZero() || base.R1.IsZero() {
		o.baseline[addr] = cur
		return false
	}

	// Cross-multiply to compare r0/r1 ratios without floating point:
	// shift_bp = |r0*baseR1 - baseR0*r1| * 10000 / (baseR0*baseR1).
	lhs := new(uint256.Int).Mul(cur.R0, base.R1)
	rhs := new(uint256.Int).Mul(base.R0, cur.R1)
	var diff uint256.Int
	if lhs.Cmp(rhs) >= 0 {
		diff.Sub(lhs, rhs)
	} else {
		diff.Sub(rhs, lhs)
	}
	denom := new(uint256.Int).Mul(base.R0, base.R1)
	if denom.IsZero() {
		return false
	}
	shiftBP := new(uint256.Int).Mul(&diff, uint256.NewInt(10000))
	shiftBP.Div(shiftBP, denom)

	if shiftBP.Uint64() > o.RatioShiftBP {
		o.baseline[addr] = cur
		return true
	}
	return false
}

func addrLocalID(addr common.Address) uint64 {
	var v uint64
	for _, b := range addr[14:] {
		v = v<<8 | uint64(b)
	}
	return v
}
