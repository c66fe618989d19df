package middleware

import (
	"fmt"

	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/greyboxfuzz/evmfuzz/solver"
	"github.com/holiman/uint256"
)

// DefaultMaxQueriesPerTx bounds how many JUMPI sites a single transaction may
// submit to the solver pool, since every query blocks on a worker (§4.C.5
// "optional pass" — this keeps a pathologically branchy contract from
// stalling the hot loop).
const DefaultMaxQueriesPerTx = 4

// Concolic mirrors the operand stack as symbolic expressions and, at JUMPI
// sites whose condition is not a plain literal, asks the solver pool for a
// witness to the branch not taken this execution (§4.C.5). Accepted
// solutions are queued for PopSolution, which mutate.Driver polls to splice
// one into a later child transaction instead of a blind sub-mutation.
type Concolic struct {
	Pool       *solver.Pool
	Dedup      *solver.Dedup
	MaxQueries int

	shadow  []solver.Expr
	saved   [][]solver.Expr
	queries int

	solutions chan solver.Solution
}

// NewConcolic builds a Concolic middleware around a worker pool and a
// solved-path-condition dedup cache.
func NewConcolic(pool *solver.Pool, dedup *solver.Dedup) *Concolic {
	return &Concolic{
		Pool:       pool,
		Dedup:      dedup,
		MaxQueries: DefaultMaxQueriesPerTx,
		solutions:  make(chan solver.Solution, 16),
	}
}

func (c *Concolic) Kind() string { return "concolic" }

func (c *Concolic) push(e solver.Expr) { c.shadow = append(c.shadow, e) }

func (c *Concolic) pop() solver.Expr {
	if len(c.shadow) == 0 {
		return solver.Const{}
	}
	e := c.shadow[len(c.shadow)-1]
	c.shadow = c.shadow[:len(c.shadow)-1]
	return e
}

func (c *Concolic) peek(n int) solver.Expr {
	i := len(c.shadow) - 1 - n
	if i < 0 {
		return solver.Const{}
	}
	return c.shadow[i]
}

func isConcreteExpr(e solver.Expr) bool {
	_, ok := e.(solver.Const)
	return ok
}

// OnStep mirrors every opcode the taint shadow already classifies as unary or
// binary, plus the calldata/environment sources a symbolic expression can
// originate from; everything else degrades to an opaque Const, matching the
// "concrete unless proven otherwise" default of §4.C.5.
func (c *Concolic) OnStep(h *interp.Host, ctx *interp.StepContext) {
	switch {
	case ctx.Op >= evmvm.PUSH1 && ctx.Op <= evmvm.PUSH32:
		c.push(solver.Const{})
	case ctx.Op == evmvm.CALLDATALOAD:
		var offset int
		if ctx.Stack.Len() > 0 {
			offset = int(ctx.Stack.Back(0).Uint64())
		}
		c.pop()
		c.push(solver.ByteInput{Offset: offset})
	case ctx.Op == evmvm.CALLDATACOPY || ctx.Op == evmvm.CALLDATASIZE:
		c.push(solver.ByteInput{})
	case ctx.Op == evmvm.CALLER:
		c.push(solver.Var{Name: "caller"})
	case ctx.Op == evmvm.ORIGIN:
		c.push(solver.Var{Name: "origin"})
	case ctx.Op == evmvm.CALLVALUE:
		c.push(solver.Var{Name: "value"})
	case ctx.Op == evmvm.KECCAK256:
		c.pop()
		c.pop()
		c.push(solver.Const{}) // hash result: opaque to the solver, see middleware/taint.go for the bypass path
	case isUnary(ctx.Op):
		a := c.pop()
		c.push(solver.UnOp{Op: ctx.Op.String(), Operand: a})
	case isBinary(ctx.Op):
		a, b := c.pop(), c.pop()
		c.push(solver.BinOp{Op: ctx.Op.String(), Left: a, Right: b})
	case ctx.Op == evmvm.JUMPI:
		cond := c.peek(1)
		if !isConcreteExpr(cond) && ctx.Stack.Len() >= 2 {
			c.maybeSolve(cond, ctx.Stack.Back(1))
		}
		c.pop()
		c.pop()
	case ctx.Op == evmvm.DUP1:
		c.push(c.peek(0))
	case ctx.Op >= evmvm.DUP2 && ctx.Op <= evmvm.DUP16:
		c.push(c.peek(int(ctx.Op - evmvm.DUP1)))
	case ctx.Op >= evmvm.SWAP1 && ctx.Op <= evmvm.SWAP16:
		n := int(ctx.Op-evmvm.SWAP1) + 1
		i, j := len(c.shadow)-1, len(c.shadow)-1-n
		if i >= 0 && j >= 0 {
			c.shadow[i], c.shadow[j] = c.shadow[j], c.shadow[i]
		}
	case ctx.Op == evmvm.POP:
		c.pop()
	default:
		c.push(solver.Const{})
	}
}

// maybeSolve dedups cond's canonical form and, if unseen, submits a query
// asserting the branch not taken this execution (the live, concrete value of
// cond decides which branch that is).
func (c *Concolic) maybeSolve(cond solver.Expr, live *uint256.Int) {
	if c.Pool == nil || c.Dedup == nil {
		return
	}
	if c.queries >= c.MaxQueries {
		return
	}
	canonical := canonicalize(cond)
	if c.Dedup.Seen(canonical) {
		return
	}
	c.queries++

	var assert solver.Expr = cond
	if !live.IsZero() {
		assert = solver.UnOp{Op: "ISZERO", Operand: cond}
	}

	q := solver.SolveQuery{
		Condition: solver.PathCondition{Canonical: canonical, Assert: assert},
		Timeout:   50,
	}
	sol, ok, err := c.Pool.Solve(q)
	if err != nil || !ok {
		return
	}
	select {
	case c.solutions <- sol:
	default:
	}
}

// PopSolution returns the oldest queued solution, if any, for mutate.Driver
// to splice into a transaction.
func (c *Concolic) PopSolution() (solver.Solution, bool) {
	select {
	case s := <-c.solutions:
		return s, true
	default:
		return solver.Solution{}, false
	}
}

func (c *Concolic) OnReturn(h *interp.Host, ctx *interp.ReturnContext) {
	if len(c.saved) > 0 {
		c.shadow = c.saved[len(c.saved)-1]
		c.saved = c.saved[:len(c.saved)-1]
	}
}

// BeforeExecute pushes a fresh shadow frame around the upcoming external call
// (mirroring middleware/taint.go) and, at the top-level call (Depth == 0),
// resets the per-transaction query budget.
func (c *Concolic) BeforeExecute(h *interp.Host, ctx *interp.ExecuteContext) {
	if ctx.Depth == 0 {
		c.queries = 0
		c.shadow = nil
		c.saved = nil
	}
	c.saved = append(c.saved, append([]solver.Expr(nil), c.shadow...))
}

// canonicalize renders an Expr as a deterministic string for the dedup
// cache (§4.C.5 "canonical string hash").
func canonicalize(e solver.Expr) string {
	switch v := e.(type) {
	case solver.Const:
		return "c"
	case solver.ByteInput:
		return fmt.Sprintf("b%d", v.Offset)
	case solver.Var:
		return "v:" + v.Name
	case solver.BinOp:
		return fmt.Sprintf("(%s %s %s)", canonicalize(v.Left), v.Op, canonicalize(v.Right))
	case solver.UnOp:
		return fmt.Sprintf("(%s %s)", v.Op, canonicalize(v.Operand))
	default:
		return "?"
	}
}
