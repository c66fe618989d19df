// Package feedback implements the fixed-order coverage → cmp → dataflow →
// oracle pipeline of §4.I, gluing the middleware maps and the oracle harness
// into scheduler votes and corpus admission decisions.
package feedback

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
)

// ExecContext is the narrow read-only view a Producer/Oracle gets of a
// finished execution — the "ctx" of §4.I/§6.
type ExecContext struct {
	State      *vmstate.VMState
	ReturnData []byte
	Reverted   bool

	// CallPostBatch runs read-only calls against the post-execution state,
	// used by producers to snapshot balances/reserves without mutating
	// VMState (§6 "ctx.call_post_batch").
	CallPostBatch func(calls []BatchCall) [][]byte
}

// BatchCall is one entry of a read-only post-state batch call.
type BatchCall struct {
	Target common.Address
	Data   []byte
}

// Producer fills its own maps from post-state batch calls and must clear
// them between executions (§6 "Producer interface").
type Producer interface {
	Produce(ctx *ExecContext)
	NotifyEnd(ctx *ExecContext)
}
