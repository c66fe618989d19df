package solver

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDedupSize bounds how many canonical path-conditions are remembered
// as already-solved before the oldest entries are evicted, per §4.C.5
// "the set is size-bounded by LRU."
const DefaultDedupSize = 1 << 14

// Dedup tracks which canonical path-condition strings have already been
// submitted to the pool, so a JUMPI seen repeatedly across many executions
// of the same contract is only ever solved once.
type Dedup struct {
	seen *lru.Cache[string, struct{}]
}

// NewDedup builds a Dedup bounded to size entries.
func NewDedup(size int) (*Dedup, error) {
	if size <= 0 {
		size = DefaultDedupSize
	}
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Dedup{seen: c}, nil
}

// Seen reports whether canonical was already marked solved, and marks it as
// seen regardless — mirroring a "check-and-set" dedup gate in front of the
// solver pool.
func (d *Dedup) Seen(canonical string) bool {
	if _, ok := d.seen.Get(canonical); ok {
		RecordDeduped()
		return true
	}
	d.seen.Add(canonical, struct{}{})
	return false
}

// Len reports how many canonical conditions are currently cached.
func (d *Dedup) Len() int {
	return d.seen.Len()
}
