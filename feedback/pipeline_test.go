package feedback

import (
	"math/rand"
	"testing"

	"github.com/greyboxfuzz/evmfuzz/middleware"
	"github.com/greyboxfuzz/evmfuzz/scheduler"
	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	kind string
	ids  []uint64
}

func (s *stubOracle) Kind() string                                { return s.kind }
func (s *stubOracle) Transition(ctx *ExecContext, stage int) int    { return stage + 1 }
func (s *stubOracle) Detect(ctx *ExecContext, stage int) []uint64  { return s.ids }

func TestPipelinePromotesNewBugIDsOnce(t *testing.T) {
	p := NewPipeline()
	p.Oracles = append(p.Oracles, &stubOracle{kind: "test", ids: []uint64{BugID(1, 42)}})

	sched := scheduler.New(rand.New(rand.NewSource(1)))
	corpus := scheduler.NewSnapshotCorpus(sched)
	idx := corpus.Add(0, true)

	cov := middleware.NewCoverage()
	cmp := middleware.NewCmp()
	df := middleware.NewDataflow(make([][4]bool, middleware.MapSize))

	v1 := p.Run(cov, cmp, df, corpus, idx, &ExecContext{}, false)
	require.Len(t, v1.NewBugIDs, 1)

	v2 := p.Run(cov, cmp, df, corpus, idx, &ExecContext{}, false)
	require.Empty(t, v2.NewBugIDs, "already-known bug id must not be reported again")
}

func TestPipelineCoverageIncreaseIsInteresting(t *testing.T) {
	p := NewPipeline()
	sched := scheduler.New(rand.New(rand.NewSource(2)))
	corpus := scheduler.NewSnapshotCorpus(sched)
	idx := corpus.Add(0, true)

	cov := middleware.NewCoverage()
	cov.JmpMap[5] = 1
	cmp := middleware.NewCmp()
	df := middleware.NewDataflow(make([][4]bool, middleware.MapSize))

	v := p.Run(cov, cmp, df, corpus, idx, &ExecContext{}, false)
	require.True(t, v.CoverageInteresting)
}

func TestPipelineTracksApproximateEdgeCount(t *testing.T) {
	p := NewPipeline()
	sched := scheduler.New(rand.New(rand.NewSource(4)))
	corpus := scheduler.NewSnapshotCorpus(sched)
	idx := corpus.Add(0, true)

	cov := middleware.NewCoverage()
	cov.JmpMap[5] = 1
	cov.JmpMap[9] = 3
	cmp := middleware.NewCmp()
	df := middleware.NewDataflow(make([][4]bool, middleware.MapSize))

	p.Run(cov, cmp, df, corpus, idx, &ExecContext{}, false)
	require.Equal(t, uint64(2), p.EdgesEverSeen())

	// Re-observing the same two edges must not inflate the estimate.
	p.Run(cov, cmp, df, corpus, idx, &ExecContext{}, false)
	require.Equal(t, uint64(2), p.EdgesEverSeen())
}

func TestPipelineSkipsOraclesDuringPausedContinuation(t *testing.T) {
	p := NewPipeline()
	p.Oracles = append(p.Oracles, &stubOracle{kind: "test", ids: []uint64{BugID(2, 1)}})

	sched := scheduler.New(rand.New(rand.NewSource(3)))
	corpus := scheduler.NewSnapshotCorpus(sched)
	idx := corpus.Add(0, true)

	cov := middleware.NewCoverage()
	cmp := middleware.NewCmp()
	df := middleware.NewDataflow(make([][4]bool, middleware.MapSize))

	v := p.Run(cov, cmp, df, corpus, idx, &ExecContext{}, true)
	require.Empty(t, v.NewBugIDs)
}
