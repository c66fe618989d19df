package middleware

import (
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
)

// magnitudeBucket maps a stored value into one of the four buckets named in
// §4.C.3: <4, <16, <64, >=64 (by byte-length of the minimal big-endian
// encoding, the conventional notion of "magnitude" for a 256-bit cell).
func magnitudeBucket(v []byte) int {
	significant := 0
	for i, b := range v {
		if b != 0 {
			significant = len(v) - i
			break
		}
	}
	switch {
	case significant < 4:
		return 0
	case significant < 16:
		return 1
	case significant < 64:
		return 2
	default:
		return 3
	}
}

// Dataflow maintains read_map/write_map and reports interesting writes
// (§4.C.3). GlobalWriteMap is shared across the whole fuzzing run (owned by
// feedback.Producer); Dataflow only consults and updates it.
type Dataflow struct {
	ReadMap  []bool
	WriteMap []int8 // -1 = unset

	GlobalWriteMap [][4]bool // [index][bucket]

	Interesting bool
}

func NewDataflow(global [][4]bool) *Dataflow {
	read := make([]bool, MapSize)
	write := make([]int8, MapSize)
	for i := range write {
		write[i] = -1
	}
	return &Dataflow{ReadMap: read, WriteMap: write, GlobalWriteMap: global}
}

func (d *Dataflow) Kind() string { return "dataflow" }

func (d *Dataflow) OnStep(h *interp.Host, ctx *interp.StepContext) {
	switch ctx.Op {
	case evmvm.SLOAD:
		if ctx.Stack.Len() < 1 {
			return
		}
		slot := ctx.Stack.Back(0)
		i := mapIndex(slot.Uint64())
		d.ReadMap[i] = true
	case evmvm.SSTORE:
		if ctx.Stack.Len() < 2 {
			return
		}
		slot := ctx.Stack.Back(0)
		val := ctx.Stack.Back(1)
		buf := val.Bytes32()
		bucket := magnitudeBucket(buf[:])

		i := mapIndex(slot.Uint64())
		d.WriteMap[i] = int8(bucket)

		if d.ReadMap[i] && d.GlobalWriteMap != nil {
			if i < len(d.GlobalWriteMap) && !d.GlobalWriteMap[i][bucket] {
				d.Interesting = true
				d.GlobalWriteMap[i][bucket] = true
			}
		}
	}
}

func (d *Dataflow) OnReturn(h *interp.Host, ctx *interp.ReturnContext)      {}
func (d *Dataflow) BeforeExecute(h *interp.Host, ctx *interp.ExecuteContext) {
	d.Interesting = false
}
