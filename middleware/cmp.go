package middleware

import (
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/holiman/uint256"
)

// Cmp maintains cmp_map: the minimum observed operand distance at each
// LT/GT/SLT/SGT/EQ site (§4.C.2).
type Cmp struct {
	Map []uint64
}

func NewCmp() *Cmp {
	m := make([]uint64, MapSize)
	for i := range m {
		m[i] = ^uint64(0)
	}
	return &Cmp{Map: m}
}

func (c *Cmp) Kind() string { return "cmp" }

func (c *Cmp) OnStep(h *interp.Host, ctx *interp.StepContext) {
	switch ctx.Op {
	case evmvm.LT, evmvm.GT, evmvm.SLT, evmvm.SGT, evmvm.EQ:
	default:
		return
	}
	if ctx.Stack.Len() < 2 {
		return
	}
	a, b := *ctx.Stack.Back(0), *ctx.Stack.Back(1)
	dist := distance(&a, &b, ctx.Op)

	i := mapIndex(ctx.PC)
	if dist < c.Map[i] {
		c.Map[i] = dist
	}
}

func (c *Cmp) OnReturn(h *interp.Host, ctx *interp.ReturnContext)      {}
func (c *Cmp) BeforeExecute(h *interp.Host, ctx *interp.ExecuteContext) {}

// distance computes |a-b| as a bounded uint64, using two's-complement
// absolute value for the signed comparisons (§4.C.2).
func distance(a, b *uint256.Int, op evmvm.OpCode) uint64 {
	switch op {
	case evmvm.SLT, evmvm.SGT:
		var diff uint256.Int
		if a.Sgt(b) {
			diff.Sub(a, b)
		} else {
			diff.Sub(b, a)
		}
		return saturateUint64(&diff)
	default:
		var diff uint256.Int
		if a.Gt(b) {
			diff.Sub(a, b)
		} else {
			diff.Sub(b, a)
		}
		return saturateUint64(&diff)
	}
}

func saturateUint64(v *uint256.Int) uint64 {
	if v.IsUint64() {
		return v.Uint64()
	}
	return ^uint64(0)
}
