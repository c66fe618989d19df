// Package vmstate implements the serializable snapshot of world state that
// transcends a single transaction: accounts, pending continuations,
// flashloan accounting, reentrancy witnesses and typed-bug flags.
package vmstate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account mirrors one EVM account as tracked by a snapshot. Storage is
// sparse: the absence of a key means the slot reads as zero, matching EVM
// semantics.
type Account struct {
	Code    []byte
	Storage map[common.Hash]common.Hash
	Balance *uint256.Int

	// Nonce counts CREATE deployments made by this account, consumed by
	// crypto.CreateAddress to derive each child contract's address.
	Nonce uint64
}

// NewAccount returns an empty account with a zero balance and no code.
func NewAccount() *Account {
	return &Account{
		Storage: make(map[common.Hash]common.Hash),
		Balance: new(uint256.Int),
	}
}

// Clone deep-copies the account so that mutating the copy never affects the
// original snapshot.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := &Account{
		Code:    append([]byte(nil), a.Code...),
		Storage: make(map[common.Hash]common.Hash, len(a.Storage)),
		Balance: new(uint256.Int).Set(a.Balance),
		Nonce:   a.Nonce,
	}
	for k, v := range a.Storage {
		cp.Storage[k] = v
	}
	return cp
}

// SLoad reads a storage slot, returning the zero hash for unset slots.
func (a *Account) SLoad(slot common.Hash) common.Hash {
	return a.Storage[slot]
}

// SStore writes a storage slot. Writing the zero value deletes the entry so
// that "non-empty storage" (§3 invariant: every account with non-empty
// storage corresponds to a deployed contract the engine has observed) stays
// meaningful rather than accumulating zero-valued noise.
func (a *Account) SStore(slot, value common.Hash) {
	if value == (common.Hash{}) {
		delete(a.Storage, slot)
		return
	}
	a.Storage[slot] = value
}

// HasCode reports whether the account has deployed bytecode.
func (a *Account) HasCode() bool {
	return len(a.Code) > 0
}
