package feedback

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/greyboxfuzz/evmfuzz/middleware"
	"github.com/greyboxfuzz/evmfuzz/scheduler"
	"github.com/holiman/bloomfilter/v2"
)

// edgeBloomM/K size the novel-edge estimator below for roughly one million
// distinct (pc,branch) edges at a ~2% false-positive rate — enough headroom
// for a long-running campaign without the exact GlobalJmpMap byte array
// growing (it is already fixed-size; the bloom filter is a cheap secondary
// "roughly how many distinct edges have we ever hit" counter for metrics/
// logging, not a correctness-bearing structure).
const (
	edgeBloomM = 1 << 23
	edgeBloomK = 4
)

// Verdict is what Pipeline.Run hands back to the fuzzer's main loop: which
// corpora the just-finished execution should be admitted to.
type Verdict struct {
	CoverageInteresting bool
	DataflowInteresting bool
	VotedSnapshot       bool
	NewBugIDs           []uint64
}

// Pipeline runs the fixed-order coverage → cmp → dataflow → oracle
// composition of §4.I. Every stage after the first assumes its predecessors
// already updated their shared maps this execution (§9 "two-phase
// feedback").
type Pipeline struct {
	GlobalJmpMap []byte
	GlobalCmpMin []uint64

	Producers []Producer
	Oracles   []Oracle
	Stages    map[string]int // per-oracle opaque stage, keyed by Oracle.Kind()

	KnownBugs mapset.Set[uint64]

	// edgeBloom estimates the distinct-edge count across the whole run for
	// reporting (EdgesEverSeen); approximate by construction.
	edgeBloom     *bloomfilter.Filter
	edgesEverSeen uint64
}

func NewPipeline() *Pipeline {
	bloom, err := bloomfilter.New(edgeBloomM, edgeBloomK)
	if err != nil {
		panic(err) // fixed, compile-time-valid parameters; only fails on invalid m/k.
	}
	return &Pipeline{
		GlobalJmpMap: make([]byte, middleware.MapSize),
		GlobalCmpMin: func() []uint64 {
			m := make([]uint64, middleware.MapSize)
			for i := range m {
				m[i] = ^uint64(0)
			}
			return m
		}(),
		Stages:    make(map[string]int),
		KnownBugs: mapset.NewSet[uint64](),
		edgeBloom: bloom,
	}
}

// EdgesEverSeen returns the approximate count of distinct (pc,branch) edges
// observed across the run's lifetime.
func (p *Pipeline) EdgesEverSeen() uint64 { return p.edgesEverSeen }

// Run folds one execution's middleware output into the global maps and the
// scheduler, then runs the oracle stage (§4.I).
//
// snapshotIdx identifies the snapshot corpus slot the cmp/dataflow stages
// should vote/add; pausedContinuation disables oracle-driven promotion per
// §4.I point 4 ("not during a paused continuation").
func (p *Pipeline) Run(cov *middleware.Coverage, cmp *middleware.Cmp, df *middleware.Dataflow,
	snapshots *scheduler.SnapshotCorpus, snapshotIdx int, ctx *ExecContext, pausedContinuation bool) Verdict {

	var v Verdict

	// 1. Coverage feedback.
	for i, b := range cov.JmpMap {
		if b == 0 {
			continue
		}
		h := uint64(i)
		if !p.edgeBloom.Contains(h) {
			p.edgeBloom.Add(h)
			p.edgesEverSeen++
		}
		if b > p.GlobalJmpMap[i] {
			p.GlobalJmpMap[i] = b
			v.CoverageInteresting = true
		}
	}

	// 2. CMP feedback.
	for i, d := range cmp.Map {
		if d < p.GlobalCmpMin[i] {
			p.GlobalCmpMin[i] = d
			snapshots.Sched.Vote(snapshotIdx, scheduler.InitialVotes)
			v.VotedSnapshot = true
		}
	}

	// 3. Dataflow feedback.
	if df.Interesting {
		v.DataflowInteresting = true
	}

	// 4. Oracle feedback.
	for _, pr := range p.Producers {
		pr.Produce(ctx)
	}
	if !pausedContinuation {
		for _, o := range p.Oracles {
			stage := p.Stages[o.Kind()]
			for _, id := range o.Detect(ctx, stage) {
				if !p.KnownBugs.Contains(id) {
					p.KnownBugs.Add(id)
					v.NewBugIDs = append(v.NewBugIDs, id)
				}
			}
			p.Stages[o.Kind()] = o.Transition(ctx, stage)
		}
	}
	for _, pr := range p.Producers {
		pr.NotifyEnd(ctx)
	}

	if v.DataflowInteresting || v.CoverageInteresting || len(v.NewBugIDs) > 0 {
		snapshots.MarkInteresting(snapshotIdx)
	}

	return v
}
