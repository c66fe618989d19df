package fuzzer

import (
	"fmt"

	"github.com/greyboxfuzz/evmfuzz/tracing"
	"github.com/greyboxfuzz/evmfuzz/txinput"
)

// Executor runs one Input to completion, honoring Repeat and dispatching on
// Kind the way core.TxExecutor dispatches on engine name — here the
// branches are ABICall/Borrow/ResumeContinuation instead of go-evm/revm.
type Executor struct {
	Engine *Engine
}

// NewExecutor wraps an Engine for repeated/kind-dispatched execution.
func NewExecutor(e *Engine) *Executor {
	return &Executor{Engine: e}
}

// Run executes in.Repeat times and returns the ErrorKind of the last repeat.
// A non-clean ErrorKind does not stop the loop (§7: the loop proceeds on
// recoverable errors), so further repeats of a reverted input are still
// attempted — Repeat describes "replay the same mutated input N times",
// not "retry on failure". Only a Go error ends the repeats early.
func (x *Executor) Run(in *txinput.Input) (tracing.ErrorKind, error) {
	switch in.Kind {
	case txinput.ABICall, txinput.Borrow:
		return x.runPlain(in)
	case txinput.ResumeContinuation:
		return x.runResume(in)
	default:
		return tracing.ErrorKindNone, fmt.Errorf("fuzzer: unknown input kind %d", in.Kind)
	}
}

func (x *Executor) runPlain(in *txinput.Input) (tracing.ErrorKind, error) {
	idx := x.Engine.AddCorpusInput(in)
	snapIdx := in.SnapshotIndex
	if _, ok := x.Engine.Snapshots[snapIdx]; !ok {
		var ok2 bool
		snapIdx, ok2 = x.Engine.SnapCorpus.Sched.Select()
		if !ok2 {
			x.Engine.TxSched.OnRemove(idx)
			return tracing.ErrorKindNone, fmt.Errorf("fuzzer: empty snapshot corpus")
		}
	}
	var last tracing.ErrorKind
	for i := 0; i < in.Repeat; i++ {
		kind, err := x.Engine.RunSpecific(snapIdx, idx)
		if err != nil {
			return kind, err
		}
		last = kind
	}
	x.Engine.TxSched.OnRemove(idx)
	return last, nil
}

// runResume re-enters a paused continuation inside the input's paired
// snapshot (§4.B "coroutine-like external call"). The actual frame-resume
// machinery lives in vmstate.Continuation/interp.Host; this layer only
// validates the snapshot_ref invariant of §3 before delegating.
func (x *Executor) runResume(in *txinput.Input) (tracing.ErrorKind, error) {
	snap, ok := x.Engine.Snapshots[in.SnapshotIndex]
	if !ok {
		return tracing.ErrorKindHost, fmt.Errorf("fuzzer: resume references unknown snapshot %d", in.SnapshotIndex)
	}
	if len(snap.PostExecution) == 0 {
		return tracing.ErrorKindNone, fmt.Errorf("fuzzer: resume on a flat snapshot (no pending continuation)")
	}
	return x.runPlain(in)
}
