package txinput

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FlashloanSummary is the concise form's flattened view of a transaction's
// flashloan effect, if any.
type FlashloanSummary struct {
	Earned, Owed *uint256.Int
}

// Concise is the replay form of §4.E: {sender, target, raw bytes, value,
// flashloan summary, layer index, additional info}.
type Concise struct {
	Sender     common.Address
	Target     common.Address
	Raw        []byte
	Value      *uint256.Int
	Flashloan  *FlashloanSummary
	Layer      int
	AdditionalInfo string
}

// ToConcise flattens an Input (with its resolved ABI payload) into its replay
// form.
func ToConcise(in *Input, layer int, fl *FlashloanSummary, info string) Concise {
	return Concise{
		Sender:         in.Caller,
		Target:         in.Target,
		Raw:            in.Payload.Bytes(),
		Value:          in.Value,
		Flashloan:      fl,
		Layer:          layer,
		AdditionalInfo: info,
	}
}

// PrettyPrint renders a replay corpus (a list of Concise inputs) as a
// human-readable call tree: one line per input in the given order, indented
// by layer (§4.E). Lines are not grouped or reordered by sender.
func PrettyPrint(trace []Concise) string {
	var b strings.Builder
	for _, c := range trace {
		indent := strings.Repeat("    ", c.Layer)
		val := "0"
		if c.Value != nil {
			val = c.Value.String()
		}
		fmt.Fprintf(&b, "%s[%s -> %s] value=%s data=0x%x", indent, c.Sender.Hex(), c.Target.Hex(), val, c.Raw)
		if c.Flashloan != nil {
			fmt.Fprintf(&b, " earned=%s owed=%s", c.Flashloan.Earned, c.Flashloan.Owed)
		}
		if c.AdditionalInfo != "" {
			fmt.Fprintf(&b, " (%s)", c.AdditionalInfo)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
