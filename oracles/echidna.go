// Package oracles implements the concrete feedback.Oracle instances: the
// assertion/echidna oracle, the ERC20 fund-loss oracle (§4.C.8), the
// Uniswap-v2-pair reserve oracle, the state-comparison oracle (§4.D), and the
// disabled-by-default self-test FunctionOracle.
package oracles

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/greyboxfuzz/evmfuzz/feedback"
	"github.com/greyboxfuzz/evmfuzz/middleware"
)

// Prefixes assigned to each oracle's bug-id namespace, avoiding collisions
// across oracles (§6 "assigning each oracle a high-bit prefix").
const (
	PrefixAssertion  uint8 = 1
	PrefixERC20      uint8 = 2
	PrefixV2Pair     uint8 = 3
	PrefixStateComp  uint8 = 4
	PrefixFunctionID uint8 = 5
	PrefixEchidna    uint8 = 6
)

// AssertionOracle reports a bug for every cheatcode assertion failure
// recorded this execution (§7 "Assertion error ... bug id derived from the
// message hash").
type AssertionOracle struct {
	Cheats *middleware.Cheatcode
}

func (o *AssertionOracle) Kind() string { return "assertion" }

func (o *AssertionOracle) Transition(ctx *feedback.ExecContext, stage int) int { return stage }

func (o *AssertionOracle) Detect(ctx *feedback.ExecContext, stage int) []uint64 {
	var ids []uint64
	for _, f := range o.Cheats.Failures {
		ids = append(ids, feedback.BugID(PrefixAssertion, messageHash(f.Error())))
	}
	return ids
}

func messageHash(msg string) uint64 {
	sum := sha256.Sum256([]byte(msg))
	return binary.BigEndian.Uint64(sum[:8])
}

// EchidnaOracle reports a bug whenever a registered property function
// (a `function echidna_*() returns (bool)` style check, identified by the
// caller via its 4-byte selector returning false) fails. Detect expects the
// caller to have already executed the property call and placed its boolean
// result into Results.
type EchidnaOracle struct {
	Results map[[4]byte]bool // selector -> property held
}

func (o *EchidnaOracle) Kind() string { return "echidna" }

func (o *EchidnaOracle) Transition(ctx *feedback.ExecContext, stage int) int { return stage }

func (o *EchidnaOracle) Detect(ctx *feedback.ExecContext, stage int) []uint64 {
	var ids []uint64
	for sel, held := range o.Results {
		if !held {
			var local uint64
			for _, b := range sel {
				local = local<<8 | uint64(b)
			}
			ids = append(ids, feedback.BugID(PrefixEchidna, local))
		}
	}
	return ids
}
