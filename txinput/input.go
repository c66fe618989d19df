// Package txinput implements the transaction input model (§3, §4.E): the
// serializable description of one transaction plus the snapshot it pairs
// with.
package txinput

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/greyboxfuzz/evmfuzz/abiinput"
	"github.com/holiman/uint256"
)

// Kind enumerates the three transaction shapes §3 defines.
type Kind int

const (
	ABICall Kind = iota
	Borrow
	ResumeContinuation
)

// EnvOverrides carries the optional block/tx field overrides a cheatcode
// (warp/roll/fee/coinbase/chainId, §4.C.6) may stamp onto an input.
type EnvOverrides struct {
	BlockNumber *uint256.Int
	Timestamp   *uint64
	BaseFee     *uint256.Int
	ChainID     *uint256.Int
	Coinbase    *common.Address
}

// Payload is either an ABI value tree or a raw byte vector (§3).
type Payload struct {
	Tree *abiinput.Root
	Raw  []byte
}

// Bytes returns the wire encoding of the payload, preferring the tree form.
func (p Payload) Bytes() []byte {
	if p.Tree != nil {
		return abiinput.Encode(p.Tree)
	}
	return p.Raw
}

// Input is the transaction input of §3.
type Input struct {
	Kind Kind

	Caller common.Address
	Target common.Address
	Value  *uint256.Int

	Payload Payload

	// LiquidationPercent is 0..=10 (§3 invariant).
	LiquidationPercent int

	// Randomness is consumed by branch-choice sites (e.g. the SHA3-bypass
	// middleware, §4.C.4).
	Randomness []byte

	Repeat int

	SnapshotIndex int
	// The paired snapshot itself is not stored on Input; callers pass the
	// *vmstate.VMState alongside it.

	Env EnvOverrides

	// Step is true iff this input resumes a continuation inside the paired
	// snapshot.
	Step bool
}

// Validate checks the invariants of §3.
func (in *Input) Validate(snapshotHasContinuation bool) error {
	if in.LiquidationPercent < 0 || in.LiquidationPercent > 10 {
		return errInvalidLiquidation
	}
	if in.Kind == ResumeContinuation && !snapshotHasContinuation {
		return errResumeWithoutContinuation
	}
	if in.Repeat < 1 {
		return errInvalidRepeat
	}
	return nil
}

// Clone deep-copies an Input.
func (in *Input) Clone() *Input {
	cp := *in
	if in.Value != nil {
		cp.Value = new(uint256.Int).Set(in.Value)
	}
	cp.Randomness = append([]byte(nil), in.Randomness...)
	if in.Payload.Tree != nil {
		cp.Payload.Tree = in.Payload.Tree.Clone()
	}
	cp.Payload.Raw = append([]byte(nil), in.Payload.Raw...)
	return &cp
}
