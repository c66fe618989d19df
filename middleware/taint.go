package middleware

import (
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/holiman/uint256"
)

// Taint shadows the operand stack with a calldata-derived bit and a second,
// parallel "derived from SHA3" bit, so a hash result can be tracked through
// an intervening comparison (e.g. KECCAK256 → EQ → JUMPI) and the branch that
// finally consumes it can be bypassed deterministically (§4.C.4).
type Taint struct {
	MaxDepth int
	Rand     byte // single byte of randomness used to rewrite bypassed branches

	shadow    []bool   // calldata-taint, mirrors the live stack
	sha3      []bool   // "derived from a SHA3 result", mirrors the live stack the same way
	saved     [][]bool // pushed/popped around external calls
	savedSha3 [][]bool
	suspended bool
}

func NewTaint(maxDepth int, randByte byte) *Taint {
	return &Taint{MaxDepth: maxDepth, Rand: randByte}
}

func (t *Taint) Kind() string { return "taint" }

func (t *Taint) push(tainted, fromSha3 bool) {
	t.shadow = append(t.shadow, tainted)
	t.sha3 = append(t.sha3, fromSha3)
}

func (t *Taint) pop() (tainted, fromSha3 bool) {
	if len(t.shadow) == 0 {
		return false, false
	}
	tainted = t.shadow[len(t.shadow)-1]
	fromSha3 = t.sha3[len(t.sha3)-1]
	t.shadow = t.shadow[:len(t.shadow)-1]
	t.sha3 = t.sha3[:len(t.sha3)-1]
	return tainted, fromSha3
}

func (t *Taint) peek(n int) (tainted, fromSha3 bool) {
	i := len(t.shadow) - 1 - n
	if i < 0 {
		return false, false
	}
	return t.shadow[i], t.sha3[i]
}

// OnStep propagates taint by opcode arity: a result is tainted (or
// SHA3-derived) iff any popped input was. Depth-limited per §4.C.4.
func (t *Taint) OnStep(h *interp.Host, ctx *interp.StepContext) {
	if ctx.Depth > t.MaxDepth {
		t.suspended = true
		return
	}
	t.suspended = false

	switch {
	case ctx.Op >= evmvm.PUSH1 && ctx.Op <= evmvm.PUSH32:
		t.push(false, false)
	case ctx.Op == evmvm.CALLDATALOAD || ctx.Op == evmvm.CALLDATACOPY || ctx.Op == evmvm.CALLDATASIZE:
		if ctx.Op != evmvm.CALLDATACOPY {
			t.pop()
		}
		t.push(true, false)
	case ctx.Op == evmvm.KECCAK256:
		t.pop()
		t.pop()
		t.push(true, true) // tainted, and flagged as a hash site
	case isUnary(ctx.Op):
		a, aSha3 := t.pop()
		t.push(a, aSha3)
	case isBinary(ctx.Op):
		a, aSha3 := t.pop()
		b, bSha3 := t.pop()
		t.push(a || b, aSha3 || bSha3)
	case ctx.Op == evmvm.JUMPI:
		cond, condSha3 := t.peek(1)
		if cond && condSha3 && ctx.Stack.Len() >= 2 {
			// Bypass: deterministically rewrite the branch condition from a
			// single byte of randomness instead of following the hash compare.
			var v [32]byte
			v[31] = t.Rand
			var rewritten uint256.Int
			rewritten.SetBytes(v[:])
			ctx.Stack.Set(1, &rewritten)
		}
		t.pop()
		t.pop()
	case ctx.Op == evmvm.DUP1:
		a, aSha3 := t.peek(0)
		t.push(a, aSha3)
	case ctx.Op >= evmvm.DUP2 && ctx.Op <= evmvm.DUP16:
		n := int(ctx.Op - evmvm.DUP1)
		a, aSha3 := t.peek(n)
		t.push(a, aSha3)
	case ctx.Op >= evmvm.SWAP1 && ctx.Op <= evmvm.SWAP16:
		n := int(ctx.Op-evmvm.SWAP1) + 1
		i, j := len(t.shadow)-1, len(t.shadow)-1-n
		if i >= 0 && j >= 0 {
			t.shadow[i], t.shadow[j] = t.shadow[j], t.shadow[i]
			t.sha3[i], t.sha3[j] = t.sha3[j], t.sha3[i]
		}
	case ctx.Op == evmvm.POP:
		t.pop()
	}
}

func (t *Taint) OnReturn(h *interp.Host, ctx *interp.ReturnContext) {
	if len(t.saved) > 0 {
		t.shadow = t.saved[len(t.saved)-1]
		t.saved = t.saved[:len(t.saved)-1]
		t.sha3 = t.savedSha3[len(t.savedSha3)-1]
		t.savedSha3 = t.savedSha3[:len(t.savedSha3)-1]
	}
}

// BeforeExecute pushes a fresh shadow frame around the upcoming external
// call, restored symmetrically on OnReturn (§4.C.4 "pushed/popped around
// every external call").
func (t *Taint) BeforeExecute(h *interp.Host, ctx *interp.ExecuteContext) {
	t.saved = append(t.saved, append([]bool(nil), t.shadow...))
	t.savedSha3 = append(t.savedSha3, append([]bool(nil), t.sha3...))
}

func isUnary(op evmvm.OpCode) bool {
	switch op {
	case evmvm.ISZERO, evmvm.NOT:
		return true
	}
	return false
}

func isBinary(op evmvm.OpCode) bool {
	switch op {
	case evmvm.ADD, evmvm.SUB, evmvm.MUL, evmvm.DIV, evmvm.MOD, evmvm.AND, evmvm.OR, evmvm.XOR,
		evmvm.LT, evmvm.GT, evmvm.SLT, evmvm.SGT, evmvm.EQ:
		return true
	}
	return false
}
