package interp

// FrameStatus enumerates the states a frame can end in (§4.B): Running,
// Returned(ok), Reverted, Paused(continuation-id). Only Returned(true) with
// no residual pending continuation marks a fully successful transaction; the
// fuzzer-level notion of "success" layers on top in §7.
type FrameStatus int

const (
	Running FrameStatus = iota
	ReturnedOK
	ReturnedRevert
	Paused
)

// Frame is one call frame's mutable execution state.
type Frame struct {
	Code   []byte
	Input  []byte
	Caller [20]byte
	Addr   [20]byte
	Value  uint64 // simplified: callers needing full 256-bit value read it off the stack/Host
	Depth  int

	PC     uint64
	Stack  *Stack
	Memory *Memory

	ReturnData []byte
	Status     FrameStatus
	PausedID   int // valid iff Status == Paused
	Err        error

	Gas uint64
}

// NewFrame constructs a fresh call frame ready to run from pc=0.
func NewFrame(code, input []byte, caller, addr [20]byte, depth int, gas uint64) *Frame {
	return &Frame{
		Code:   code,
		Input:  input,
		Caller: caller,
		Addr:   addr,
		Depth:  depth,
		Stack:  newStack(),
		Memory: newMemory(),
		Gas:    gas,
	}
}
