package solver

import (
	"sync"
	"sync/atomic"
)

// handleMap registers live Backend instances under a stable uintptr handle,
// mirroring revm_bridge's handleMap: Z3's error-handler callback can only
// carry an opaque pointer-sized token, not a Go interface value, across the
// FFI boundary, so the token is resolved back to a *z3Backend here rather
// than passed directly.
var handleMap sync.Map // map[uintptr]Backend

var handleSeq uintptr

// registerHandle stores b under a freshly minted handle and returns it.
func registerHandle(b Backend) uintptr {
	h := atomic.AddUintptr(&handleSeq, 1)
	handleMap.Store(h, b)
	return h
}

// releaseHandle forgets the handle. Safe to call more than once.
func releaseHandle(h uintptr) {
	handleMap.Delete(h)
}

// lookupHandle resolves a handle back to its Backend, if still registered.
func lookupHandle(h uintptr) (Backend, bool) {
	if v, ok := handleMap.Load(h); ok {
		return v.(Backend), true
	}
	return nil, false
}
