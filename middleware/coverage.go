// Package middleware implements the concrete interp.Middleware instances of
// §4.C: coverage, comparison-distance, dataflow, taint/SHA3-bypass,
// reentrancy-witness and flashloan-accounting glue, and the cheatcode
// precompile.
package middleware

import (
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
)

// MapBits is 2^k, the shared size of every fixed feedback map (§4.C.1-3).
const MapBits = 16
const MapSize = 1 << MapBits

func mapIndex(vs ...uint64) int {
	h := fnvSeed
	for _, v := range vs {
		h = (h ^ v) * fnvPrime
	}
	return int(h & (MapSize - 1))
}

const (
	fnvSeed  = 1469598103934665603
	fnvPrime = 1099511628211
)

// Coverage maintains jmp_map and the state_changed flag (§4.C.1).
type Coverage struct {
	JmpMap       []byte
	StateChanged bool
}

// NewCoverage returns a fresh, zeroed coverage tracker.
func NewCoverage() *Coverage {
	return &Coverage{JmpMap: make([]byte, MapSize)}
}

func (c *Coverage) Kind() string { return "coverage" }

func (c *Coverage) OnStep(h *interp.Host, ctx *interp.StepContext) {
	switch ctx.Op {
	case evmvm.JUMPI:
		if ctx.Stack.Len() < 2 {
			return
		}
		dest := ctx.Stack.Back(0)
		cond := ctx.Stack.Back(1)
		taken := uint64(0)
		if !cond.IsZero() {
			taken = 1
		}
		i := mapIndex(ctx.PC, dest.Uint64(), taken)
		if c.JmpMap[i] < 255 {
			c.JmpMap[i]++
		}
	case evmvm.SSTORE, evmvm.LOG0, evmvm.LOG1, evmvm.LOG2, evmvm.LOG3, evmvm.LOG4,
		evmvm.SELFDESTRUCT, evmvm.CREATE, evmvm.CREATE2:
		c.StateChanged = true
	}
}

func (c *Coverage) OnReturn(h *interp.Host, ctx *interp.ReturnContext) {}

func (c *Coverage) BeforeExecute(h *interp.Host, ctx *interp.ExecuteContext) {
	c.StateChanged = false
}

// Reset zeroes the per-execution map; feedback.Producer owns the persistent
// global map and diffs against it before calling Reset.
func (c *Coverage) Reset() {
	for i := range c.JmpMap {
		c.JmpMap[i] = 0
	}
	c.StateChanged = false
}
