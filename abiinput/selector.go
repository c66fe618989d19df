package abiinput

import "github.com/ethereum/go-ethereum/crypto"

// Selector computes the 4-byte function selector for a canonical signature
// string (e.g. "transfer(address,uint256)"), bit-identical to go-ethereum's
// accounts/abi selector hashing (Keccak256(sig)[:4]).
func Selector(signature string) [4]byte {
	var out [4]byte
	copy(out[:], crypto.Keccak256([]byte(signature))[:4])
	return out
}
