package solver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubBackendReportsNoSolution(t *testing.T) {
	b, err := NewBackend()
	require.NoError(t, err)
	defer b.Close()

	sol, ok, err := b.Solve(SolveQuery{Condition: PathCondition{Canonical: "(assert (= x 1))"}})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Solution{}, sol)
}

func TestPoolSolveRoutesThroughBackend(t *testing.T) {
	ResetMetrics()
	p, err := NewPool(2, NewBackend)
	require.NoError(t, err)
	defer p.Close()

	_, ok, err := p.Solve(SolveQuery{Condition: PathCondition{Canonical: "(assert true)"}})
	require.NoError(t, err)
	require.False(t, ok)

	total, solved, _ := Counters()
	require.Equal(t, int64(1), total)
	require.Equal(t, int64(0), solved)
}

func TestPoolReusesFreeBackends(t *testing.T) {
	p, err := NewPool(1, NewBackend)
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 5; i++ {
		_, _, err := p.Solve(SolveQuery{Condition: PathCondition{Canonical: "(assert true)"}})
		require.NoError(t, err)
	}
	require.Len(t, p.free, 1)
}

func TestDedupSkipsRepeatedCanonicalForm(t *testing.T) {
	d, err := NewDedup(16)
	require.NoError(t, err)

	require.False(t, d.Seen("cond-a"))
	require.True(t, d.Seen("cond-a"))
	require.Equal(t, 1, d.Len())
}

func TestDedupEvictsBeyondCapacity(t *testing.T) {
	d, err := NewDedup(2)
	require.NoError(t, err)

	d.Seen("a")
	d.Seen("b")
	d.Seen("c")
	require.Equal(t, 2, d.Len())
}

func TestExprNodeKindsSatisfyExpr(t *testing.T) {
	var nodes = []Expr{
		Const{Value: [32]byte{1}},
		ByteInput{Offset: 4},
		Var{Name: "caller"},
		BinOp{Op: "ADD", Left: Const{}, Right: Const{}},
		UnOp{Op: "ISZERO", Operand: Const{}},
	}
	require.Len(t, nodes, 5)
}
