package interp

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
	"github.com/holiman/uint256"
)

// CodeFetcher is the external collaborator of §6: given an address, returns
// analyzed bytecode or reports "no code". It is permitted to block and must
// be idempotent.
type CodeFetcher interface {
	FetchCode(addr common.Address) ([]byte, error)
}

// ErrContractNotFound is the host error returned when the configured
// Fetcher fails (a miss or a timeout). With no Fetcher configured, an unknown
// account loads as an account without code and no error is returned.
var ErrContractNotFound = fmt.Errorf("interp: contract not found")

// Config bundles the engine-tunable knobs for a Host (§0 "Configuration").
type Config struct {
	MaxCallDepth int
	Fetcher      CodeFetcher // nil means "offline": an unknown account loads without code and without error.

	// CodeCache, if set, short-circuits Fetcher for addresses already seen by
	// any Host sharing the cache — every descendant snapshot of a long run
	// redeploys the same handful of contracts, so this avoids re-running the
	// fetcher once per clone (§4.A "on first access").
	CodeCache *vmstate.CodeCache
}

// DefaultCodeCacheBytes is the default CodeCache allocation: enough to hold
// a few hundred mid-sized contracts without the run's memory footprint being
// dominated by bytecode duplication across snapshots.
const DefaultCodeCacheBytes = 32 * 1024 * 1024

// DefaultConfig returns the engine's documented defaults.
func DefaultConfig() Config {
	return Config{MaxCallDepth: 1024, CodeCache: vmstate.NewCodeCache(DefaultCodeCacheBytes)}
}

// Host owns the authoritative world state for the execution currently
// running and multiplexes middleware callbacks (§4.A).
type Host struct {
	State  *vmstate.VMState
	Chain  *Chain
	Config Config

	depth int

	// DeferNextCall, when set, makes the next CALL/STATICCALL/DELEGATECALL
	// pause into a continuation instead of recursing synchronously — the
	// "coroutine-like external call" mechanism of §4.B point 4 / §9.
	DeferNextCall bool

	// analysisCache remembers which addresses have already had their
	// constant pool harvested (§4.A "on first access, add analysis passes").
	analysisCache map[common.Address]bool

	onConstants func(addr common.Address, constants [][]byte)
	onLog       func(addr common.Address, topics []common.Hash, data []byte)
	onCall      func(to common.Address, value *uint256.Int, input []byte)
}

// NewHost constructs a Host bound to the given snapshot.
func NewHost(state *vmstate.VMState, chain *Chain, cfg Config) *Host {
	return &Host{
		State:         state,
		Chain:         chain,
		Config:        cfg,
		analysisCache: make(map[common.Address]bool),
	}
}

// OnConstantsHarvested registers a callback invoked the first time an
// account's code is analyzed, with the PUSH-immediate constant pool scanned
// from it (§9 "constant pool enrichment... happens at code load time").
func (h *Host) OnConstantsHarvested(f func(addr common.Address, constants [][]byte)) {
	h.onConstants = f
}

// OnLogEmitted registers a callback invoked for every LOGn the interpreter
// executes, feeding the cheatcode recorder/expectEmit matcher (§4.C.6)
// without coupling the interpreter itself to the Cheatcode type.
func (h *Host) OnLogEmitted(f func(addr common.Address, topics []common.Hash, data []byte)) {
	h.onLog = f
}

// OnCallObserved registers a callback invoked for every CALL-family dispatch
// Call attempts, feeding the cheatcode expectCall tracker (§4.C.6). It fires
// before the precompile lookup, so calls to precompile addresses are
// reported as well.
func (h *Host) OnCallObserved(f func(to common.Address, value *uint256.Int, input []byte)) {
	h.onCall = f
}

// Depth returns the current call depth (0 at the top-level transaction).
func (h *Host) Depth() int { return h.depth }

// LoadAccount returns the account at addr, lazily fetching code via the
// configured CodeFetcher on first access and triggering constant-pool
// analysis (§4.A).
func (h *Host) LoadAccount(addr common.Address) (*vmstate.Account, error) {
	acct, existed := h.State.Accounts[addr]
	if !existed {
		acct = vmstate.NewAccount()
		h.State.Accounts[addr] = acct
	}
	if !acct.HasCode() && h.Config.CodeCache != nil {
		if cached, ok := h.Config.CodeCache.Get(addr); ok {
			acct.Code = cached
		}
	}
	if !acct.HasCode() && h.Config.Fetcher != nil {
		code, err := h.Config.Fetcher.FetchCode(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrContractNotFound, addr, err)
		}
		acct.Code = code
		if h.Config.CodeCache != nil {
			h.Config.CodeCache.Set(addr, code)
		}
	}
	if acct.HasCode() && !h.analysisCache[addr] {
		h.analysisCache[addr] = true
		if h.onConstants != nil {
			h.onConstants(addr, ScanConstants(acct.Code))
		}
	}
	return acct, nil
}

// SLoad is the read-through storage accessor (§4.A).
func (h *Host) SLoad(addr common.Address, slot common.Hash) common.Hash {
	acct := h.State.Account(addr)
	return acct.SLoad(slot)
}

// SStore is the write-through storage accessor (§4.A).
func (h *Host) SStore(addr common.Address, slot, value common.Hash) {
	acct := h.State.Account(addr)
	acct.SStore(slot, value)
}

// Balance returns an account's balance.
func (h *Host) Balance(addr common.Address) *uint256.Int {
	return h.State.Account(addr).Balance
}

// CallResult is what Host.Call returns to its caller (the interpreter's CALL
// opcode handler, or the top-level transaction executor).
type CallResult struct {
	ReturnData []byte
	Success    bool
	Paused     bool
	PausedID   int
}

// Call routes CALL/STATICCALL/DELEGATECALL/CALLCODE by either re-entering the
// interpreter, delegating to a precompile emulator, or pausing and emitting a
// continuation (§4.A). CREATE/CREATE2 go through Create below, since they
// need an address computed rather than taken off the stack.
func (h *Host) Call(interp *Interpreter, from, to common.Address, value *uint256.Int, data []byte, isStatic bool) (CallResult, error) {
	if h.depth+1 > h.Config.MaxCallDepth {
		return CallResult{Success: false}, nil
	}

	if h.onCall != nil {
		h.onCall(to, value, data)
	}

	if pc, ok := interp.Precompiles[to]; ok {
		ret, ok2 := pc.Run(h, from, data)
		return CallResult{ReturnData: ret, Success: ok2}, nil
	}

	if h.DeferNextCall {
		h.DeferNextCall = false
		cont := &vmstate.Continuation{
			Caller: from,
			Callee: to,
		}
		h.State.PostExecution = append(h.State.PostExecution, cont)
		log.Debug("interp: deferring external call into continuation", "from", from, "to", to)
		return CallResult{Paused: true, PausedID: len(h.State.PostExecution) - 1}, nil
	}

	acct, err := h.LoadAccount(to)
	if err != nil {
		return CallResult{}, err
	}
	if value != nil && !value.IsZero() {
		from := h.State.Account(from)
		if from.Balance.Cmp(value) >= 0 {
			from.Balance.Sub(from.Balance, value)
			acct.Balance.Add(acct.Balance, value)
		}
	}
	if len(acct.Code) == 0 {
		return CallResult{Success: true}, nil
	}

	h.depth++
	defer func() { h.depth-- }()

	ret, status, err := interp.Run(h, acct.Code, data, from, to, h.depth)
	if err != nil {
		return CallResult{Success: false}, nil
	}
	return CallResult{ReturnData: ret, Success: status == ReturnedOK}, nil
}

// Create routes CREATE (salt == nil) and CREATE2 (salt != nil) per §4.A: the
// child address is derived from the sender (nonce for CREATE, salt plus
// init-code hash for CREATE2, matching go-ethereum's crypto.CreateAddress /
// CreateAddress2), the sender's nonce is consumed, the init code runs as a
// call frame, and on a clean return its output becomes the deployed account's
// Code. A collision with an already-deployed account fails the create rather
// than clobbering it.
func (h *Host) Create(interp *Interpreter, sender common.Address, salt *uint256.Int, value *uint256.Int, initCode []byte) (CallResult, common.Address, error) {
	if h.depth+1 > h.Config.MaxCallDepth {
		return CallResult{Success: false}, common.Address{}, nil
	}

	senderAcct := h.State.Account(sender)

	var to common.Address
	if salt != nil {
		saltBytes := salt.Bytes32()
		to = crypto.CreateAddress2(sender, saltBytes, crypto.Keccak256(initCode))
	} else {
		to = crypto.CreateAddress(sender, senderAcct.Nonce)
	}
	senderAcct.Nonce++

	acct, err := h.LoadAccount(to)
	if err != nil {
		return CallResult{}, to, err
	}
	if acct.HasCode() {
		return CallResult{Success: false}, to, nil
	}

	if value != nil && !value.IsZero() {
		if senderAcct.Balance.Cmp(value) >= 0 {
			senderAcct.Balance.Sub(senderAcct.Balance, value)
			acct.Balance.Add(acct.Balance, value)
		}
	}

	h.depth++
	defer func() { h.depth-- }()

	ret, status, err := interp.Run(h, initCode, nil, sender, to, h.depth)
	if err != nil || status != ReturnedOK {
		return CallResult{Success: false}, to, nil
	}
	acct.Code = append([]byte(nil), ret...)
	return CallResult{ReturnData: to.Bytes(), Success: true}, to, nil
}

// Precompile is the narrow interface a precompile emulator (including the
// cheatcode precompile, §4.C.6) implements.
type Precompile interface {
	Run(h *Host, caller common.Address, input []byte) ([]byte, bool)
}
