package interp

import (
	evmvm "github.com/ethereum/go-ethereum/core/vm"
)

// Phase enumerates the points at which the host invokes the middleware
// chain (§4.A "run_middlewares(phase, interp_state)").
type Phase int

const (
	PhasePreStep Phase = iota
	PhasePostStep
	PhaseOnReturn
	PhaseBeforeExecute
)

// StepContext is the read-mostly view of interpreter state a middleware
// observes at pre-step, before the opcode executes. A middleware may overwrite the top of the
// stack (§4.B point 2, used by the SHA3-bypass middleware) — that is the one
// sanctioned mutation.
type StepContext struct {
	PC     uint64
	Op     evmvm.OpCode
	Stack  *Stack
	Memory *Memory
	Depth  int
	Addr   [20]byte // executing contract
}

// ReturnContext is passed to OnReturn; ReturnBytes is nil for a plain STOP.
type ReturnContext struct {
	ReturnBytes []byte
	Reverted    bool
	Err         error
	Depth       int
}

// ExecuteContext is passed to BeforeExecute, once per transaction, before
// any opcode runs — middlewares use it to prune per-execution bookkeeping
// (§4.C.7 "before_execute prunes need_writes").
type ExecuteContext struct {
	IsStep   bool // true iff this invocation resumes a continuation
	Calldata []byte
	Depth    int
}

// Middleware is the single narrow trait every hook object implements (§4.C,
// §9 "define a single trait with narrow surface"). The host iterates the
// chain in insertion order for OnStep/BeforeExecute and in reverse insertion
// order for OnReturn (§5 "Ordering guarantees").
type Middleware interface {
	Kind() string
	OnStep(h *Host, ctx *StepContext)
	OnReturn(h *Host, ctx *ReturnContext)
	BeforeExecute(h *Host, ctx *ExecuteContext)
}

// Chain holds an ordered list of middlewares and fans a phase out to each of
// them, respecting the LIFO rule for OnReturn.
type Chain struct {
	middlewares []Middleware
}

// NewChain returns an empty middleware chain.
func NewChain() *Chain { return &Chain{} }

// Use appends a middleware, preserving insertion order.
func (c *Chain) Use(m Middleware) { c.middlewares = append(c.middlewares, m) }

// Len reports how many middlewares are registered.
func (c *Chain) Len() int { return len(c.middlewares) }

// Run dispatches a phase to every middleware, in insertion order for
// pre-step/before-execute and reverse insertion order for on-return (§5).
// OnStep is called at pre-step only; post-step has no Middleware hook, so
// each opcode reaches OnStep exactly once.
func (c *Chain) Run(phase Phase, h *Host, step *StepContext, ret *ReturnContext, exec *ExecuteContext) {
	switch phase {
	case PhasePreStep:
		for _, m := range c.middlewares {
			m.OnStep(h, step)
		}
	case PhaseBeforeExecute:
		for _, m := range c.middlewares {
			m.BeforeExecute(h, exec)
		}
	case PhaseOnReturn:
		for i := len(c.middlewares) - 1; i >= 0; i-- {
			c.middlewares[i].OnReturn(h, ret)
		}
	}
}
