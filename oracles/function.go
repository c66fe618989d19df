package oracles

import "github.com/greyboxfuzz/evmfuzz/feedback"

// FunctionOracle is the self-test harness named `FUNCTION_BUG_IDX` in
// original_source. It is disabled by default per the SPEC_FULL supplement
// resolving that Open Question: Detect reports nothing unless Enabled is
// explicitly set, letting test suites opt in without risking false bugs in
// a default run.
type FunctionOracle struct {
	Enabled bool
	Target  uint64 // function index under test, reported verbatim as the local id
	Failed  func() bool
}

func (o *FunctionOracle) Kind() string { return "function" }

func (o *FunctionOracle) Transition(ctx *feedback.ExecContext, stage int) int { return stage }

func (o *FunctionOracle) Detect(ctx *feedback.ExecContext, stage int) []uint64 {
	if !o.Enabled || o.Failed == nil || !o.Failed() {
		return nil
	}
	return []uint64{feedback.BugID(PrefixFunctionID, o.Target)}
}
