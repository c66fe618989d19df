package vmstate

import (
	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
)

// CodeCache is a bounded, address-keyed cache of fetched contract bytecode,
// shared across every VMState clone the run produces. Cloning a snapshot
// deep-copies each Account's Code slice (see Account.Clone), so without a
// shared cache a long run refetches and re-duplicates the same deployed
// bytecode once per descendant snapshot; this mirrors the teacher's use of
// VictoriaMetrics/fastcache as the account cache backing *state.StateDB.
type CodeCache struct {
	cache *fastcache.Cache
}

// NewCodeCache allocates a cache bounded to roughly maxBytes of backing
// storage (fastcache.New rounds up internally).
func NewCodeCache(maxBytes int) *CodeCache {
	return &CodeCache{cache: fastcache.New(maxBytes)}
}

// Get returns the cached code for addr, if present.
func (c *CodeCache) Get(addr common.Address) ([]byte, bool) {
	return c.cache.HasGet(nil, addr.Bytes())
}

// Set stores code under addr, overwriting any previous entry.
func (c *CodeCache) Set(addr common.Address, code []byte) {
	c.cache.Set(addr.Bytes(), code)
}
