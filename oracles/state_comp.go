package oracles

import (
	"github.com/greyboxfuzz/evmfuzz/feedback"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
)

// StateCompOracle exposes the three containment modes of §4.D over a fixed
// "desired" snapshot, reporting a bug the first time the live state matches
// the configured mode against it (used to drive "reach this state" style
// regression checks rather than open-ended fuzzing).
type StateCompOracle struct {
	State   *vmstate.VMState
	Desired *vmstate.VMState
	Mode    vmstate.ContainmentMode
	LocalID uint64

	fired bool
}

func (o *StateCompOracle) Kind() string { return "state_comp" }

func (o *StateCompOracle) Transition(ctx *feedback.ExecContext, stage int) int { return stage }

func (o *StateCompOracle) Detect(ctx *feedback.ExecContext, stage int) []uint64 {
	if o.fired {
		return nil
	}
	if vmstate.Compare(o.Mode, o.State, o.Desired) {
		o.fired = true
		return []uint64{feedback.BugID(PrefixStateComp, o.LocalID)}
	}
	return nil
}
