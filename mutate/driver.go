// Package mutate implements the mutation driver of §4.G: the havoc-cycle
// wrapper around a fixed menu of sub-mutations applied to a txinput.Input.
package mutate

import (
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/greyboxfuzz/evmfuzz/abiinput"
	"github.com/greyboxfuzz/evmfuzz/solver"
	"github.com/greyboxfuzz/evmfuzz/txinput"
	"github.com/holiman/uint256"
)

// HavocProbability is q₁ of §4.G step 2: the chance of running a multi-step
// havoc cycle instead of a single sub-mutation.
const HavocProbability = 0.60

// MaxHavocSteps bounds the havoc cycle's sub-mutation count (the "N" of
// "1..=N sub-mutations").
const MaxHavocSteps = 8

// MaxSubMutationTries is the skip threshold of §4.G step 3.
const MaxSubMutationTries = 20

// SnapshotSwapProbability is the "≤5%" weight given to the snapshot-swap
// sub-mutation among the uniform menu — implemented by assigning it a small
// slice of the uniform draw rather than an equal 1/6 share.
const SnapshotSwapProbability = 0.05

// SnapshotPicker selects a (possibly different) snapshot index, mirroring
// the scheduler's Select (§4.G step 4); the driver is decoupled from
// scheduler.SortedDropping to avoid an import cycle with the fuzzer glue.
type SnapshotPicker func(r *rand.Rand) (int, bool)

// Constants supplies harvested PUSH-immediate values for ABI constant
// injection (interp.ScanConstants output, threaded in by the caller).
type Constants func() [][]byte

// ConcolicSolutions pops one pending concolic Solution, if the pool's
// dispatcher has produced one, for splicing into the next mutated input
// (§4.C.5 "splices accepted Solutions into child transactions via the
// mutator").
type ConcolicSolutions func() (solver.Solution, bool)

// Driver holds the knobs and collaborators the mutation driver needs beyond
// the input itself.
type Driver struct {
	Rand      *rand.Rand
	Snapshots SnapshotPicker
	Constants Constants
	Solutions ConcolicSolutions

	// CorpusCallers and MaxValue bound the ranges the caller-change and
	// value-change sub-mutations draw from.
	CorpusCallers []common.Address
	MaxValue      *uint256.Int
}

// Mutate applies §4.G to t in place, returning false ("skipped") iff no
// sub-mutation reported a change: in the havoc branch, none of its
// 1..MaxHavocSteps steps; otherwise, none of up to MaxSubMutationTries tries.
func (d *Driver) Mutate(t *txinput.Input, initialized bool) bool {
	if t.SnapshotIndex == 0 && !initialized {
		if idx, ok := d.Snapshots(d.Rand); ok {
			t.SnapshotIndex = idx
		}
	}

	if d.Rand.Float64() < HavocProbability {
		steps := 1 + d.Rand.Intn(MaxHavocSteps)
		any := false
		for i := 0; i < steps; i++ {
			if d.oneSubMutation(t) {
				any = true
			}
		}
		return any
	}
	return d.oneSubMutationWithRetries(t)
}

func (d *Driver) oneSubMutationWithRetries(t *txinput.Input) bool {
	for i := 0; i < MaxSubMutationTries; i++ {
		if d.oneSubMutation(t) {
			return true
		}
	}
	return false
}

// oneSubMutation draws one sub-mutation uniformly from the menu of §4.G
// step 3 and applies it, reporting whether it actually changed the input.
func (d *Driver) oneSubMutation(t *txinput.Input) bool {
	if d.Solutions != nil {
		if sol, ok := d.Solutions(); ok {
			return d.spliceSolution(t, sol)
		}
	}
	if d.Rand.Float64() < SnapshotSwapProbability {
		return d.snapshotSwap(t)
	}
	switch d.Rand.Intn(5) {
	case 0:
		return d.callerChange(t)
	case 1:
		return d.valueChange(t)
	case 2:
		return d.liquidationChange(t)
	case 3:
		return d.randomnessFlip(t)
	default:
		return d.abiPayloadMutate(t)
	}
}

// spliceSolution overwrites t's payload/caller/value with a solved concolic
// path-condition witness, discarding the ABI tree in favor of the solver's
// raw bytes since the solution was derived against the concrete calldata
// layout, not the tree's typed fields.
func (d *Driver) spliceSolution(t *txinput.Input, sol solver.Solution) bool {
	changed := false
	if sol.InputBytes != nil {
		t.Payload.Tree = nil
		t.Payload.Raw = append([]byte(nil), sol.InputBytes...)
		changed = true
	}
	if sol.Caller != (common.Address{}) && sol.Caller != t.Caller {
		t.Caller = sol.Caller
		changed = true
	}
	if sol.Value != nil && (t.Value == nil || !t.Value.Eq(sol.Value)) {
		t.Value = sol.Value
		changed = true
	}
	return changed
}

func (d *Driver) snapshotSwap(t *txinput.Input) bool {
	idx, ok := d.Snapshots(d.Rand)
	if !ok || idx == t.SnapshotIndex {
		return false
	}
	t.SnapshotIndex = idx
	return true
}

func (d *Driver) callerChange(t *txinput.Input) bool {
	if len(d.CorpusCallers) == 0 {
		return false
	}
	next := d.CorpusCallers[d.Rand.Intn(len(d.CorpusCallers))]
	if next == t.Caller {
		return false
	}
	t.Caller = next
	return true
}

func (d *Driver) valueChange(t *txinput.Input) bool {
	max := d.MaxValue
	if max == nil || max.IsZero() {
		return false
	}
	next := new(uint256.Int).Mod(randUint256(d.Rand), max)
	if t.Value != nil && t.Value.Eq(next) {
		return false
	}
	t.Value = next
	return true
}

func (d *Driver) liquidationChange(t *txinput.Input) bool {
	next := d.Rand.Intn(11)
	if next == t.LiquidationPercent {
		return false
	}
	t.LiquidationPercent = next
	return true
}

func (d *Driver) randomnessFlip(t *txinput.Input) bool {
	if len(t.Randomness) == 0 {
		t.Randomness = []byte{0}
	}
	i := d.Rand.Intn(len(t.Randomness))
	bit := byte(1) << uint(d.Rand.Intn(8))
	t.Randomness[i] ^= bit
	return true
}

func (d *Driver) abiPayloadMutate(t *txinput.Input) bool {
	if t.Payload.Tree == nil {
		return false
	}
	var constants [][]byte
	if d.Constants != nil {
		constants = d.Constants()
	}
	var slot [32]byte
	return abiinput.MutateNode(d.Rand, t.Payload.Tree.Args, constants, &slot, 0.1, 4096)
}

func randUint256(r *rand.Rand) *uint256.Int {
	var buf [32]byte
	r.Read(buf[:])
	v := new(uint256.Int)
	v.SetBytes(buf[:])
	return v
}
