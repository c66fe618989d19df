package vmstate

import "github.com/ethereum/go-ethereum/common"

// Continuation is a paused external-call frame that must be resumed by a
// future ResumeContinuation input (§3, §4.B). It is opaque outside the
// interpreter: the fuzzer only ever counts, copies or discards continuations,
// it never inspects their contents.
type Continuation struct {
	PC     uint64
	Stack  []common.Hash
	Memory []byte

	ReturnBuffer []byte

	Caller common.Address
	Callee common.Address
	Value  *common.Hash

	// MiddlewareCtx holds opaque per-middleware state (taint shadow depth,
	// concolic expression stack depth, ...) snapshotted at pause time so it
	// can be restored symmetrically on resume.
	MiddlewareCtx map[string][]byte
}

// Clone deep-copies a continuation so the arena holding it can be shared
// between snapshots without aliasing.
func (c *Continuation) Clone() *Continuation {
	if c == nil {
		return nil
	}
	cp := &Continuation{
		PC:           c.PC,
		Stack:        append([]common.Hash(nil), c.Stack...),
		Memory:       append([]byte(nil), c.Memory...),
		ReturnBuffer: append([]byte(nil), c.ReturnBuffer...),
		Caller:       c.Caller,
		Callee:       c.Callee,
	}
	if c.Value != nil {
		v := *c.Value
		cp.Value = &v
	}
	if c.MiddlewareCtx != nil {
		cp.MiddlewareCtx = make(map[string][]byte, len(c.MiddlewareCtx))
		for k, v := range c.MiddlewareCtx {
			cp.MiddlewareCtx[k] = append([]byte(nil), v...)
		}
	}
	return cp
}
