package scheduler

import "github.com/greyboxfuzz/evmfuzz/vmstate"

// SnapshotCorpus composes a SortedDropping selector with a DependencyTree so
// that eviction of a snapshot never destroys an ancestor a still-useful
// descendant depends on (§4.H "DependencyTree integration").
type SnapshotCorpus struct {
	Sched *SortedDropping
	Deps  *vmstate.DependencyTree
}

func NewSnapshotCorpus(sched *SortedDropping) *SnapshotCorpus {
	return &SnapshotCorpus{Sched: sched, Deps: vmstate.NewDependencyTree()}
}

// Add registers a new snapshot as a child of parent, wiring both the vote
// scheduler and the dependency tree, then sweeps GC.
func (c *SnapshotCorpus) Add(parent int, permanent bool) int {
	idx := c.Sched.OnAdd(permanent)
	c.Deps.OnAdd(idx, parent)
	c.Deps.GC()
	return idx
}

// MarkInteresting votes the snapshot up and marks its whole ancestor chain
// never-delete — an "interesting" snapshot per oracle feedback (§4.H).
func (c *SnapshotCorpus) MarkInteresting(idx int) {
	c.Sched.Vote(idx, InitialVotes)
	c.Deps.MarkNeverDelete(idx)
}

// Prune evicts the lowest-scoring entries via the vote scheduler, then
// mirrors each eviction into the dependency tree (deferred actual deletion
// until refcount reaches zero) and sweeps GC.
func (c *SnapshotCorpus) Prune(keep int) []int {
	removed := c.Sched.PruneLowestScoring(keep)
	for _, idx := range removed {
		c.Deps.OnRemove(idx)
	}
	c.Deps.GC()
	return removed
}
