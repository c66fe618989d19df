package middleware

import (
	"github.com/ethereum/go-ethereum/common"
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
)

// Reentrancy adapts vmstate.ReentrancyWitness (the data structure) into an
// interp.Middleware by feeding it SLOAD/SSTORE events off the live stack
// (§4.C.7).
type Reentrancy struct{}

func NewReentrancy() *Reentrancy { return &Reentrancy{} }

func (r *Reentrancy) Kind() string { return "reentrancy" }

func (r *Reentrancy) OnStep(h *interp.Host, ctx *interp.StepContext) {
	switch ctx.Op {
	case evmvm.SLOAD:
		if ctx.Stack.Len() < 1 {
			return
		}
		slot := ctx.Stack.Back(0).Bytes32()
		h.State.Reentrancy.OnSLoad(common.Address(ctx.Addr), common.Hash(slot), ctx.Depth)
	case evmvm.SSTORE:
		if ctx.Stack.Len() < 1 {
			return
		}
		slot := ctx.Stack.Back(0).Bytes32()
		h.State.Reentrancy.OnSStore(common.Address(ctx.Addr), common.Hash(slot), ctx.Depth)
	}
}

func (r *Reentrancy) OnReturn(h *interp.Host, ctx *interp.ReturnContext) {}

// BeforeExecute prunes need_writes entries deeper than the depth this
// execution resumes at (§4.C.7).
func (r *Reentrancy) BeforeExecute(h *interp.Host, ctx *interp.ExecuteContext) {
	h.State.Reentrancy.PruneDepthsAbove(h.Depth())
}
