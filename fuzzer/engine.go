// Package fuzzer wires the host, interpreter, middleware chain, schedulers,
// mutation driver and feedback pipeline into the single per-iteration loop
// of §2: "scheduler H picks (snapshot s, txn t) → G mutates t → I hands t to
// B running under A+C using s → I reads coverage/cmp/dataflow maps, consults
// §7 error kinds, may add new t′ to corpus and new s′ to snapshot corpus,
// votes via H." Grounded on core/tx_executor.go's TxExecutor adapter (the
// stub chain-context / build-tag-selected-engine shape), generalized from
// one fixed Go-EVM/REVM choice to the fuzzer's Host+Interpreter pair.
package fuzzer

import (
	"fmt"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/greyboxfuzz/evmfuzz/feedback"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/greyboxfuzz/evmfuzz/middleware"
	"github.com/greyboxfuzz/evmfuzz/mutate"
	"github.com/greyboxfuzz/evmfuzz/oracles"
	"github.com/greyboxfuzz/evmfuzz/scheduler"
	"github.com/greyboxfuzz/evmfuzz/solver"
	"github.com/greyboxfuzz/evmfuzz/tracing"
	"github.com/greyboxfuzz/evmfuzz/txinput"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
	"github.com/holiman/uint256"
)

// ConcolicWorkers is the default worker pool size for the concolic solver
// (§5 Exception 1's bounded-pool sizing applied to the fuzzer's own hot loop
// rather than a long-running service).
const ConcolicWorkers = 4

// Engine drives the fuzz loop over the transaction and snapshot corpora;
// SortedDropping itself is storage-agnostic (§4.H), so the engine keeps the
// backing Inputs and Snapshots maps keyed by scheduler index.
type Engine struct {
	Rand *rand.Rand

	HostConfig interp.Config
	Interp     *interp.Interpreter

	TxSched    *scheduler.SortedDropping
	Inputs     map[int]*txinput.Input
	SnapCorpus *scheduler.SnapshotCorpus
	Snapshots  map[int]*vmstate.VMState

	Mutator  *mutate.Driver
	Pipeline *feedback.Pipeline
	Cheats   *middleware.Cheatcode
	Concolic *middleware.Concolic

	globalWriteMap  [][4]bool
	flashloanTokens []common.Address

	// constants accumulates harvested PUSH-immediates across every analyzed
	// contract, fed to the mutator's ABI constant-injection sub-mutation
	// (§4.G, §9 "constant pool enrichment").
	constants [][]byte

	Iteration int
}

// NewEngine builds an Engine around a fresh empty-seed snapshot and a
// default middleware chain (coverage, cmp, dataflow, taint, reentrancy,
// flashloan, cheatcodes), ready to accept an initial corpus via AddSeedInput.
func NewEngine(rng *rand.Rand, cfg interp.Config, flashloanTokens ...common.Address) *Engine {
	e := &Engine{
		Rand:            rng,
		HostConfig:      cfg,
		Interp:          interp.NewInterpreter(),
		TxSched:         scheduler.New(rng),
		Inputs:          make(map[int]*txinput.Input),
		SnapCorpus:      scheduler.NewSnapshotCorpus(scheduler.New(rng)),
		Snapshots:       make(map[int]*vmstate.VMState),
		Pipeline:        feedback.NewPipeline(),
		Cheats:          middleware.NewCheatcode(),
		globalWriteMap:  make([][4]bool, middleware.MapSize),
		flashloanTokens: flashloanTokens,
	}

	if pool, err := solver.NewPool(ConcolicWorkers, solver.NewBackend); err == nil {
		dedup, derr := solver.NewDedup(solver.DefaultDedupSize)
		if derr == nil {
			e.Concolic = middleware.NewConcolic(pool, dedup)
		}
	}

	e.Mutator = &mutate.Driver{
		Rand:      rng,
		Snapshots: func(r *rand.Rand) (int, bool) { return e.SnapCorpus.Sched.Select() },
		Constants: func() [][]byte { return e.constants },
		MaxValue:  nil,
	}
	if e.Concolic != nil {
		e.Mutator.Solutions = e.Concolic.PopSolution
	}

	empty := vmstate.NewEmptySeed()
	empty.Initialized = false
	idx := e.SnapCorpus.Add(0, true)
	e.Snapshots[idx] = empty

	e.Interp.Precompiles = map[common.Address]interp.Precompile{
		middleware.CheatcodeAddress: e.Cheats,
	}
	return e
}

// AddSeedInput registers a corpus-initialization transaction (deploy,
// constructor call) as a permanent scheduler slot, per §3 "a transaction is
// created either by corpus initialization...".
func (e *Engine) AddSeedInput(t *txinput.Input) int {
	idx := e.TxSched.OnAdd(true)
	e.Inputs[idx] = t
	return idx
}

// AddCorpusInput registers a non-permanent input, e.g. one constructed by an
// oracle's liquidation call (§4.I).
func (e *Engine) AddCorpusInput(t *txinput.Input) int {
	idx := e.TxSched.OnAdd(false)
	e.Inputs[idx] = t
	return idx
}

func (e *Engine) newChain(cov *middleware.Coverage, cmp *middleware.Cmp, df *middleware.Dataflow) *interp.Chain {
	chain := interp.NewChain()
	chain.Use(cov)
	chain.Use(cmp)
	chain.Use(df)
	chain.Use(middleware.NewTaint(1024, byte(e.Rand.Intn(256))))
	chain.Use(middleware.NewReentrancy())
	chain.Use(middleware.NewFlashloan(e.flashloanTokens...))
	chain.Use(e.Cheats)
	if e.Concolic != nil {
		chain.Use(e.Concolic)
	}
	return chain
}

// RunIteration executes one full fuzz iteration per §2's control flow and
// returns the error kind observed (ErrorKindNone on a clean, uninteresting
// run) plus any fatal error (always nil in the hot loop per §7).
func (e *Engine) RunIteration() (tracing.ErrorKind, error) {
	snapIdx, ok := e.SnapCorpus.Sched.Select()
	if !ok {
		return tracing.ErrorKindNone, fmt.Errorf("fuzzer: empty snapshot corpus")
	}
	txIdx, ok := e.TxSched.Select()
	if !ok {
		return tracing.ErrorKindNone, fmt.Errorf("fuzzer: empty transaction corpus")
	}
	return e.runAt(snapIdx, txIdx)
}

// RunSpecific executes exactly the (snapshot, transaction) pair named by
// snapIdx/txIdx rather than letting the vote scheduler pick one, for callers
// that must guarantee a particular registered Input actually runs (§4.B
// "Executor... dispatching on Kind") rather than merely being eligible for
// random selection.
func (e *Engine) RunSpecific(snapIdx, txIdx int) (tracing.ErrorKind, error) {
	if _, ok := e.Snapshots[snapIdx]; !ok {
		return tracing.ErrorKindNone, fmt.Errorf("fuzzer: unknown snapshot %d", snapIdx)
	}
	if _, ok := e.Inputs[txIdx]; !ok {
		return tracing.ErrorKindNone, fmt.Errorf("fuzzer: unknown input %d", txIdx)
	}
	return e.runAt(snapIdx, txIdx)
}

func (e *Engine) runAt(snapIdx, txIdx int) (tracing.ErrorKind, error) {
	e.Iteration++

	parent := e.Snapshots[snapIdx]
	t := e.Inputs[txIdx].Clone()
	t.SnapshotIndex = snapIdx

	e.Mutator.Mutate(t, parent.Initialized)

	child := parent.Clone()
	child.ParentID = snapIdx

	cov := middleware.NewCoverage()
	cmp := middleware.NewCmp()
	df := middleware.NewDataflow(e.globalWriteMap)
	chain := e.newChain(cov, cmp, df)

	host := interp.NewHost(child, chain, e.HostConfig)
	host.OnConstantsHarvested(func(addr common.Address, cs [][]byte) {
		e.constants = append(e.constants, cs...)
	})
	host.OnLogEmitted(func(addr common.Address, topics []common.Hash, data []byte) {
		e.Cheats.OnLog(middleware.LogRecord{Addr: addr, Topics: topics, Data: data})
	})
	host.OnCallObserved(func(to common.Address, value *uint256.Int, input []byte) {
		e.Cheats.ObserveCall(to, value, input)
	})

	e.Cheats.ResetPerTransaction()

	execCtx := &interp.ExecuteContext{IsStep: t.Step, Calldata: t.Payload.Bytes()}
	chain.Run(interp.PhaseBeforeExecute, host, nil, nil, execCtx)

	acct, err := host.LoadAccount(t.Target)
	if err != nil {
		return tracing.ErrorKindHost, nil
	}

	ret, status, runErr := e.Interp.Run(host, acct.Code, t.Payload.Bytes(), t.Caller, t.Target, 0)
	// interp.Run already dispatches PhaseOnReturn to the chain internally;
	// only the cheatcode-specific expectRevert bookkeeping needs a direct
	// call here, since it is keyed off the raw status rather than the
	// middleware Chain.
	e.Cheats.ObserveReturn(status == interp.ReturnedRevert, ret)
	e.Cheats.FinalizeCallExpectations()

	if runErr != nil {
		return tracing.ErrorKindOpcode, nil
	}
	if e.Cheats.CheatError {
		return tracing.ErrorKindCheatcode, nil
	}
	if len(e.Cheats.Failures) > 0 {
		return tracing.ErrorKindAssertion, nil
	}

	reverted := status == interp.ReturnedRevert
	stateChanged := !reverted && vmstate.StateChanged(parent, child)

	pausedContinuation := len(child.PostExecution) > len(parent.PostExecution)

	var childIdx int
	if stateChanged {
		childIdx = e.SnapCorpus.Add(snapIdx, false)
		e.Snapshots[childIdx] = child
	} else {
		childIdx = snapIdx
	}

	execResult := &feedback.ExecContext{
		State:      child,
		ReturnData: ret,
		Reverted:   reverted,
		CallPostBatch: func(calls []feedback.BatchCall) [][]byte {
			roHost := interp.NewHost(child.Clone(), interp.NewChain(), e.HostConfig)
			out := make([][]byte, len(calls))
			for i, call := range calls {
				res, err := roHost.Call(e.Interp, common.Address{}, call.Target, nil, call.Data, true)
				if err != nil {
					continue
				}
				out[i] = res.ReturnData
			}
			return out
		},
	}
	verdict := e.Pipeline.Run(cov, cmp, df, e.SnapCorpus, childIdx, execResult, pausedContinuation)

	if len(verdict.NewBugIDs) > 0 {
		return tracing.ErrorKindOracleBug, nil
	}
	if verdict.CoverageInteresting || verdict.DataflowInteresting {
		e.AddCorpusInput(t)
	}
	if e.TxSched.Len() > scheduler.DropThreshold {
		e.TxSched.PruneLowestScoring(txIdx)
	}
	if e.SnapCorpus.Sched.Len() > scheduler.DropThreshold {
		for _, removed := range e.SnapCorpus.Prune(childIdx) {
			delete(e.Snapshots, removed)
		}
	}

	return tracing.ErrorKindNone, nil
}

// RegisterOracles wires the standard oracle set into the pipeline: the
// assertion oracle (always on, bound to the shared Cheatcode instance) plus
// whichever domain oracles the caller constructs against e's snapshots.
func (e *Engine) RegisterOracles(extra ...feedback.Oracle) {
	e.Pipeline.Oracles = append(e.Pipeline.Oracles, &oracles.AssertionOracle{Cheats: e.Cheats})
	e.Pipeline.Oracles = append(e.Pipeline.Oracles, extra...)
}

// RegisterProducers wires feedback.Producer instances (e.g. ReserveProducer)
// into the pipeline's pre-oracle stage (§4.I "ctx.call_post_batch").
func (e *Engine) RegisterProducers(producers ...feedback.Producer) {
	e.Pipeline.Producers = append(e.Pipeline.Producers, producers...)
}

// Close tears down the concolic solver pool, if one was built. Safe to call
// on an Engine whose pool failed to initialize.
func (e *Engine) Close() error {
	if e.Concolic == nil || e.Concolic.Pool == nil {
		return nil
	}
	return e.Concolic.Pool.Close()
}
