package vmstate

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	mapset "github.com/deckarep/golang-set/v2"
)

// StorageKey identifies a single (address, slot) storage cell, the unit the
// reentrancy witness (§4.C.7) and dataflow maps operate over.
type StorageKey struct {
	Addr common.Address
	Slot common.Hash
}

// ReentrancyWitness implements §4.C.7 and testable property 7: a cell is
// "found" iff some depth read it, a shallower depth also read it earlier,
// and the shallower depth later wrote it back — i.e. state read before an
// external call was relied upon after the call returned.
type ReentrancyWitness struct {
	Reads       map[StorageKey][]int // sorted, deduped call-depths that read this cell
	NeedWrites  map[StorageKey]mapset.Set[int]
	Found       mapset.Set[StorageKey]
}

// NewReentrancyWitness returns an empty witness tracker.
func NewReentrancyWitness() *ReentrancyWitness {
	return &ReentrancyWitness{
		Reads:      make(map[StorageKey][]int),
		NeedWrites: make(map[StorageKey]mapset.Set[int]),
		Found:      mapset.NewSet[StorageKey](),
	}
}

// Clone deep-copies the witness state.
func (w *ReentrancyWitness) Clone() *ReentrancyWitness {
	if w == nil {
		return nil
	}
	cp := NewReentrancyWitness()
	for k, v := range w.Reads {
		cp.Reads[k] = append([]int(nil), v...)
	}
	for k, v := range w.NeedWrites {
		cp.NeedWrites[k] = v.Clone()
	}
	cp.Found = w.Found.Clone()
	return cp
}

// OnSLoad records a read of (addr, slot) at the given call depth. Every
// shallower depth that already read the same cell becomes a candidate for
// the "need write" set: if it later writes, a reentrancy witness is formed.
func (w *ReentrancyWitness) OnSLoad(addr common.Address, slot common.Hash, depth int) {
	key := StorageKey{Addr: addr, Slot: slot}
	depths := w.Reads[key]

	// Any prior read at a shallower depth is now "owed" a write once we
	// unwind back to it.
	for _, d := range depths {
		if d < depth {
			if w.NeedWrites[key] == nil {
				w.NeedWrites[key] = mapset.NewSet[int]()
			}
			w.NeedWrites[key].Add(d)
		}
	}

	if !containsInt(depths, depth) {
		depths = append(depths, depth)
		sort.Ints(depths)
		w.Reads[key] = depths
	}
}

// OnSStore records a write of (addr, slot) at the given call depth. If that
// depth is owed a write (per OnSLoad), the cell is flagged found.
func (w *ReentrancyWitness) OnSStore(addr common.Address, slot common.Hash, depth int) {
	key := StorageKey{Addr: addr, Slot: slot}
	if need, ok := w.NeedWrites[key]; ok && need.Contains(depth) {
		w.Found.Add(key)
	}
}

// PruneDepthsAbove drops need-write entries deeper than currentDepth: the
// post-execution unwound past them, so they can never produce a witness
// (§4.C.7 "before_execute prunes need_writes entries with depth > current
// depth").
func (w *ReentrancyWitness) PruneDepthsAbove(currentDepth int) {
	for key, set := range w.NeedWrites {
		filtered := mapset.NewSet[int]()
		set.Each(func(d int) bool {
			if d <= currentDepth {
				filtered.Add(d)
			}
			return false
		})
		if filtered.Cardinality() == 0 {
			delete(w.NeedWrites, key)
			continue
		}
		w.NeedWrites[key] = filtered
	}
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
