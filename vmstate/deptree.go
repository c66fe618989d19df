package vmstate

import (
	"sort"

	"golang.org/x/exp/maps"
)

// DepNode is one node of the snapshot dependency forest (§3). Invariant:
// Refcount = 1 (self) + sum over live descendants' refcounts contributed
// through this node; a node is removable iff Refcount == 0 && PendingDelete
// && !NeverDelete (testable property 5).
type DepNode struct {
	ParentID      int
	Refcount      int
	PendingDelete bool
	NeverDelete   bool
	children      map[int]bool
}

// DependencyTree tracks parent/child relationships between snapshot ids so
// that eviction (§4.H "On-remove") never destroys a snapshot that an
// ancestor chain still needs (§8 property 5).
type DependencyTree struct {
	nodes map[int]*DepNode
}

// NewDependencyTree returns an empty tree seeded with the root (id 0, the
// empty seed), which is never deleted.
func NewDependencyTree() *DependencyTree {
	t := &DependencyTree{nodes: make(map[int]*DepNode)}
	t.nodes[0] = &DepNode{ParentID: 0, Refcount: 1, NeverDelete: true, children: make(map[int]bool)}
	return t
}

// OnAdd inserts a new child node under parent and increments Refcount up the
// parent chain to the root (§4.H).
func (t *DependencyTree) OnAdd(child, parent int) {
	if _, ok := t.nodes[parent]; !ok {
		t.nodes[parent] = &DepNode{ParentID: parent, Refcount: 1, children: make(map[int]bool)}
	}
	t.nodes[parent].children[child] = true
	t.nodes[child] = &DepNode{ParentID: parent, Refcount: 1, children: make(map[int]bool)}
	t.bumpAncestors(parent, 1)
}

func (t *DependencyTree) bumpAncestors(id int, delta int) {
	for {
		node, ok := t.nodes[id]
		if !ok {
			return
		}
		node.Refcount += delta
		if id == 0 {
			return
		}
		id = node.ParentID
	}
}

// OnRemove marks a node pending-delete and decrements refcounts up-chain.
// Actual erasure is deferred to GC, which only removes nodes whose refcount
// has dropped to zero.
func (t *DependencyTree) OnRemove(id int) {
	node, ok := t.nodes[id]
	if !ok {
		return
	}
	node.PendingDelete = true
	t.bumpAncestors(node.ParentID, -1)
	node.Refcount--
}

// MarkNeverDelete flags id and its entire ancestor chain as never-delete —
// used when an "interesting" snapshot is voted by oracle feedback (§4.H).
func (t *DependencyTree) MarkNeverDelete(id int) {
	for {
		node, ok := t.nodes[id]
		if !ok {
			return
		}
		node.NeverDelete = true
		if id == 0 {
			return
		}
		id = node.ParentID
	}
}

// Removable reports whether id can be garbage collected right now.
func (t *DependencyTree) Removable(id int) bool {
	node, ok := t.nodes[id]
	if !ok {
		return false
	}
	return node.Refcount <= 0 && node.PendingDelete && !node.NeverDelete
}

// GC sweeps every removable node and returns their ids. Call after each
// OnAdd/OnRemove, per §4.H "Garbage collection sweeps removable nodes after
// each add."
func (t *DependencyTree) GC() []int {
	// Sweep in a deterministic id order rather than Go's randomized map
	// iteration: two runs with identical input sequences must evict
	// snapshots in the same order for replay to be exact (§8 reproducibility).
	ids := maps.Keys(t.nodes)
	sort.Ints(ids)

	var removed []int
	for _, id := range ids {
		if id == 0 {
			continue
		}
		node := t.nodes[id]
		if node.Refcount <= 0 && node.PendingDelete && !node.NeverDelete {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		node := t.nodes[id]
		if parent, ok := t.nodes[node.ParentID]; ok {
			delete(parent.children, id)
		}
		delete(t.nodes, id)
	}
	return removed
}

// Node exposes a node's bookkeeping fields for tests and diagnostics.
func (t *DependencyTree) Node(id int) (DepNode, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return DepNode{}, false
	}
	return *n, true
}
