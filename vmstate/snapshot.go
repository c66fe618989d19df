package vmstate

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	mapset "github.com/deckarep/golang-set/v2"
)

// SelfDestruct identifies a SELFDESTRUCT site observed while producing a
// snapshot.
type SelfDestruct struct {
	Addr common.Address
	PC   uint64
}

// ArbitraryCall identifies an external call whose target was not statically
// resolvable from the calldata the fuzzer supplied (a candidate for
// arbitrary-call-style bugs).
type ArbitraryCall struct {
	Src, Dst common.Address
	PC       uint64
}

// VMState is the persistent snapshot described in §3: everything about
// blockchain storage and engine-tracked accounting that survives a
// transaction boundary. It is the "s" half of the (snapshot, txn) pairs the
// two-level scheduler (§4.H) hands to the mutation driver.
type VMState struct {
	Accounts map[common.Address]*Account

	PostExecution []*Continuation

	Flashloan *FlashloanAccount
	Reentrancy *ReentrancyWitness

	TypedBugs      mapset.Set[string]
	SelfDestructs  mapset.Set[SelfDestruct]
	ArbitraryCalls mapset.Set[ArbitraryCall]

	Initialized bool

	// Trace holds concise-input references (by corpus index) leading to this
	// state, used for human-readable reproduction (§4.E).
	Trace []int

	ParentID int // 0 = root; dependency-tree linkage, see DependencyTree.
}

// NewEmptySeed returns the one "empty seed" snapshot that every run starts
// from (§3 invariant: exactly one such snapshot exists per run).
func NewEmptySeed() *VMState {
	return &VMState{
		Accounts:       make(map[common.Address]*Account),
		Flashloan:      NewFlashloanAccount(),
		Reentrancy:     NewReentrancyWitness(),
		TypedBugs:      mapset.NewSet[string](),
		SelfDestructs:  mapset.NewSet[SelfDestruct](),
		ArbitraryCalls: mapset.NewSet[ArbitraryCall](),
		Initialized:    false,
	}
}

// Account returns (creating on demand) the account at addr.
func (s *VMState) Account(addr common.Address) *Account {
	a, ok := s.Accounts[addr]
	if !ok {
		a = NewAccount()
		s.Accounts[addr] = a
	}
	return a
}

// IsFlat reports whether the state has no pending continuation, i.e. no
// paused external call awaits a ResumeContinuation input (§3 invariant).
func (s *VMState) IsFlat() bool {
	return len(s.PostExecution) == 0
}

// Clone deep-copies the snapshot. The engine calls this whenever a
// transaction produces a *new* snapshot that must not alias its parent.
func (s *VMState) Clone() *VMState {
	cp := &VMState{
		Accounts:       make(map[common.Address]*Account, len(s.Accounts)),
		Flashloan:      s.Flashloan.Clone(),
		Reentrancy:     s.Reentrancy.Clone(),
		TypedBugs:      s.TypedBugs.Clone(),
		SelfDestructs:  s.SelfDestructs.Clone(),
		ArbitraryCalls: s.ArbitraryCalls.Clone(),
		Initialized:    s.Initialized,
		Trace:          append([]int(nil), s.Trace...),
		ParentID:       s.ParentID,
	}
	for addr, acct := range s.Accounts {
		cp.Accounts[addr] = acct.Clone()
	}
	for _, c := range s.PostExecution {
		cp.PostExecution = append(cp.PostExecution, c.Clone())
	}
	return cp
}

// StateChanged reports whether the transaction that produced this snapshot
// from its parent actually mutated anything: any SSTORE, a new continuation,
// or a balance delta (§3 "Lifecycle"). Callers compute this by diffing
// against the parent snapshot before committing a new one to the corpus.
func StateChanged(parent, child *VMState) bool {
	if len(child.PostExecution) != len(parent.PostExecution) {
		return true
	}
	if len(child.Accounts) != len(parent.Accounts) {
		return true
	}
	for addr, acct := range child.Accounts {
		prev, ok := parent.Accounts[addr]
		if !ok {
			return true
		}
		if acct.Balance.Cmp(prev.Balance) != 0 {
			return true
		}
		if len(acct.Storage) != len(prev.Storage) {
			return true
		}
		for slot, val := range acct.Storage {
			if prev.Storage[slot] != val {
				return true
			}
		}
	}
	return false
}

// Hash computes the stable 64-bit hash used by CMP feedback to deduplicate
// snapshots worth voting on (§4.D). It folds account storage, balances and
// code, plus the number of pending continuations, through Keccak256 and
// takes the first 8 bytes — deterministic across runs, unlike Go's built-in
// map iteration order, because addresses are hashed independently of
// iteration and then combined with XOR (order-independent by construction).
func (s *VMState) Hash() uint64 {
	var acc uint64
	for addr, a := range s.Accounts {
		h := crypto.NewKeccakState()
		h.Write(addr.Bytes())
		h.Write(a.Code)
		var balBuf [32]byte
		b := a.Balance.Bytes32()
		copy(balBuf[:], b[:])
		h.Write(balBuf[:])
		for slot, val := range a.Storage {
			// XOR per-slot hashes so the fold is order independent.
			sh := crypto.NewKeccakState()
			sh.Write(slot.Bytes())
			sh.Write(val.Bytes())
			var out [32]byte
			sh.Read(out[:])
			acc ^= binary.BigEndian.Uint64(out[:8])
		}
		var out [32]byte
		h.Read(out[:])
		acc ^= binary.BigEndian.Uint64(out[:8])
	}
	acc ^= uint64(len(s.PostExecution))
	return acc
}

// Equal implements the "exact" mode of the state-comparison oracle (§4.D):
// two snapshots are equal when accounts, storage, balances, code and
// pending-continuation counts all match byte-for-byte.
func (s *VMState) Equal(other *VMState) bool {
	if len(s.Accounts) != len(other.Accounts) {
		return false
	}
	if len(s.PostExecution) != len(other.PostExecution) {
		return false
	}
	for addr, a := range s.Accounts {
		b, ok := other.Accounts[addr]
		if !ok {
			return false
		}
		if a.Balance.Cmp(b.Balance) != 0 {
			return false
		}
		if string(a.Code) != string(b.Code) {
			return false
		}
		if len(a.Storage) != len(b.Storage) {
			return false
		}
		for slot, v := range a.Storage {
			if b.Storage[slot] != v {
				return false
			}
		}
	}
	return true
}

// ContainmentMode selects one of the three comparison modes the
// state-comparison oracle exposes (§4.D, §6 oracle.StateComp).
type ContainmentMode int

const (
	// Exact requires byte-for-byte equality.
	Exact ContainmentMode = iota
	// SubsetInDesired requires `state` ⊆ `desired`: every account/slot present
	// in state must match the corresponding entry in desired.
	SubsetInDesired
	// DesiredInState requires `desired` ⊆ `state`.
	DesiredInState
)

// Compare evaluates the state-comparison oracle predicate (§4.D) between a
// desired snapshot and the current state under the given mode.
func Compare(mode ContainmentMode, state, desired *VMState) bool {
	switch mode {
	case Exact:
		return state.Equal(desired)
	case SubsetInDesired:
		return isSubset(state, desired)
	case DesiredInState:
		return isSubset(desired, state)
	default:
		return false
	}
}

func isSubset(small, big *VMState) bool {
	for addr, a := range small.Accounts {
		b, ok := big.Accounts[addr]
		if !ok {
			return false
		}
		if a.Balance.Cmp(b.Balance) != 0 {
			return false
		}
		for slot, v := range a.Storage {
			if b.Storage[slot] != v {
				return false
			}
		}
	}
	return true
}
