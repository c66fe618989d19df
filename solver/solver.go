// Package solver implements the concolic solver pool of §4.C.5 / §5
// Exception 1: a bounded set of workers, each fronting an external SMT
// backend through a narrow interface, draining path-condition solve jobs and
// publishing solutions the mutator splices into child transactions. The
// dispatch-by-build-tag pattern (stub vs cgo_z3) is grounded on the
// teacher's dispatcher_goevm.go/dispatcher_revm.go dual-backend split.
package solver

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PathCondition is the symbolic expression tree over calldata bytes, caller,
// origin, value and balance that the concolic middleware mirrors alongside
// the concrete stack (§4.C.5).
type PathCondition struct {
	// Canonical is a deterministic string form used for dedup (§4.C.5
	// "already-solved path-conditions are deduplicated by canonical string
	// hash").
	Canonical string
	Assert    Expr
}

// Expr is the narrow symbolic-expression interface; concrete node kinds live
// in expr.go.
type Expr interface {
	isExpr()
}

// SolveQuery is one enqueued job: assert the opposite branch of a JUMPI
// whose condition is symbolic, per §4.C.5.
type SolveQuery struct {
	Condition PathCondition
	Timeout   int // milliseconds
}

// Solution is the concrete tuple a successful solve yields, ready to splice
// into a child transaction's input.
type Solution struct {
	InputBytes []byte
	Caller     common.Address
	Origin     common.Address
	Value      *uint256.Int
}

// Backend is the narrow interface a concrete SMT engine implements — the
// "external SMT backend" of §4.C.5/§6, fronted by build-tag-selected
// dispatch exactly as Executor/TxExecutor front REVM in the teacher.
type Backend interface {
	Solve(q SolveQuery) (Solution, bool, error)
	Close() error
}
