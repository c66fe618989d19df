package interp

import evmvm "github.com/ethereum/go-ethereum/core/vm"

// ScanConstants harvests every PUSH-immediate value embedded in a contract's
// bytecode (§9 "constant pool enrichment... happens at code load time").
// These constants seed the ABI mutator's ConstantInject primitive
// (§4.F) so the fuzzer can propose magic numbers and addresses the contract
// itself references (e.g. a hardcoded `require(x == 0xdead)` threshold)
// instead of relying on random mutation to stumble onto them.
//
// Single-byte PUSH immediates (PUSH1 of a byte already reachable by
// BitFlip/ByteAdd) are skipped; they add mutator noise without adding reach.
func ScanConstants(code []byte) [][]byte {
	var out [][]byte
	for pc := 0; pc < len(code); {
		op := evmvm.OpCode(code[pc])
		if op >= evmvm.PUSH1 && op <= evmvm.PUSH32 {
			n := int(op - evmvm.PUSH1 + 1)
			end := pc + 1 + n
			if end > len(code) {
				end = len(code)
			}
			imm := code[pc+1 : end]
			if n > 1 && !isAllZero(imm) {
				cp := make([]byte, len(imm))
				copy(cp, imm)
				out = append(out, cp)
			}
			pc = end
			continue
		}
		pc++
	}
	return out
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
