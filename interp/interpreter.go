package interp

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
	"github.com/holiman/uint256"
)

func keccak(data []byte) [32]byte {
	return crypto.Keccak256Hash(data)
}

// ErrOpcodeNotFound is the opcode error of §7 (unknown opcode terminates the
// frame, marks the transaction reverted).
var ErrOpcodeNotFound = fmt.Errorf("interp: opcode not found")

// ErrStackUnderflow / ErrOutOfGas are the remaining opcode-error kinds named
// in §7.
var (
	ErrStackUnderflow = fmt.Errorf("interp: stack underflow")
	ErrOutOfGas       = fmt.Errorf("interp: out of gas")
)

const stepGasCost = 3

// Interpreter executes EVM bytecode one opcode at a time, invoking the
// middleware chain after each step (§4.B).
type Interpreter struct {
	Precompiles map[common.Address]Precompile
}

// NewInterpreter returns an interpreter with no precompiles registered; call
// sites add the cheatcode precompile (and any others) before fuzzing.
func NewInterpreter() *Interpreter {
	return &Interpreter{Precompiles: make(map[common.Address]Precompile)}
}

// Run executes `code` against `input` as a single call frame at the given
// depth, invoking h.Chain around every opcode. It returns the return data,
// terminal status, and the opcode error that ended the frame, if any (stack
// underflow, out-of-gas, invalid jump, unknown opcode); such a frame also
// ends with status ReturnedRevert. Host.Call turns a nested frame's error
// into a failed call.
func (in *Interpreter) Run(h *Host, code, input []byte, caller, addr common.Address, depth int) ([]byte, FrameStatus, error) {
	f := NewFrame(code, input, [20]byte(caller), [20]byte(addr), depth, 1<<32)

	for {
		if f.PC >= uint64(len(f.Code)) {
			f.Status = ReturnedOK
			break
		}
		op := evmvm.OpCode(f.Code[f.PC])

		step := &StepContext{PC: f.PC, Op: op, Stack: f.Stack, Memory: f.Memory, Depth: depth, Addr: f.Addr}
		h.Chain.Run(PhasePreStep, h, step, nil, nil)

		if f.Gas < stepGasCost {
			f.Status = ReturnedRevert
			f.Err = ErrOutOfGas
			break
		}
		f.Gas -= stepGasCost

		halted, err := in.execStep(h, f, op, caller, addr, depth)
		h.Chain.Run(PhasePostStep, h, step, nil, nil)

		if err != nil {
			f.Status = ReturnedRevert
			f.Err = err
			break
		}
		if halted {
			break
		}
		if f.Status == Paused {
			break
		}
	}

	ret := &ReturnContext{ReturnBytes: f.ReturnData, Reverted: f.Status == ReturnedRevert, Err: f.Err, Depth: depth}
	h.Chain.Run(PhaseOnReturn, h, nil, ret, nil)

	if f.Status == ReturnedRevert {
		return f.ReturnData, f.Status, f.Err
	}
	return f.ReturnData, f.Status, nil
}

// execStep executes one opcode against the frame, advancing pc unless the
// opcode itself jumps. `halted` reports STOP/RETURN/REVERT/SELFDESTRUCT/
// INVALID/Paused.
func (in *Interpreter) execStep(h *Host, f *Frame, op evmvm.OpCode, caller, addr common.Address, depth int) (halted bool, err error) {
	need := func(n int) error {
		if f.Stack.Len() < n {
			return ErrStackUnderflow
		}
		return nil
	}

	switch {
	case op >= evmvm.PUSH1 && op <= evmvm.PUSH32:
		n := int(op - evmvm.PUSH1 + 1)
		var buf [32]byte
		end := f.PC + 1 + uint64(n)
		if end > uint64(len(f.Code)) {
			end = uint64(len(f.Code))
		}
		copy(buf[32-n:], f.Code[f.PC+1:end])
		var v uint256.Int
		v.SetBytes(buf[:])
		f.Stack.push(&v)
		f.PC += uint64(1 + n)
		return false, nil

	case op >= evmvm.DUP1 && op <= evmvm.DUP16:
		n := int(op - evmvm.DUP1)
		if err := need(n + 1); err != nil {
			return false, err
		}
		v := *f.Stack.Back(n)
		f.Stack.push(&v)
	case op >= evmvm.SWAP1 && op <= evmvm.SWAP16:
		n := int(op - evmvm.SWAP1 + 1)
		if err := need(n + 1); err != nil {
			return false, err
		}
		a, b := *f.Stack.Back(0), *f.Stack.Back(n)
		f.Stack.Set(0, &b)
		f.Stack.Set(n, &a)
	case op >= evmvm.LOG0 && op <= evmvm.LOG4:
		n := int(op - evmvm.LOG0)
		if err := need(2 + n); err != nil {
			return false, err
		}
		off := f.Stack.pop()
		size := f.Stack.pop()
		topics := make([]common.Hash, n)
		for i := 0; i < n; i++ {
			t := f.Stack.pop()
			topics[i] = common.Hash(t.Bytes32())
		}
		data := f.Memory.Get(off.Uint64(), size.Uint64())
		if h.onLog != nil {
			h.onLog(addr, topics, data)
		}
	case op == evmvm.STOP:
		f.Status = ReturnedOK
		return true, nil
	case op == evmvm.POP:
		if err := need(1); err != nil {
			return false, err
		}
		f.Stack.pop()
	case op == evmvm.ADD:
		if err := need(2); err != nil {
			return false, err
		}
		a, b := f.Stack.pop(), f.Stack.pop()
		var r uint256.Int
		r.Add(&a, &b)
		f.Stack.push(&r)
	case op == evmvm.SUB:
		if err := need(2); err != nil {
			return false, err
		}
		a, b := f.Stack.pop(), f.Stack.pop()
		var r uint256.Int
		r.Sub(&a, &b)
		f.Stack.push(&r)
	case op == evmvm.MUL:
		if err := need(2); err != nil {
			return false, err
		}
		a, b := f.Stack.pop(), f.Stack.pop()
		var r uint256.Int
		r.Mul(&a, &b)
		f.Stack.push(&r)
	case op == evmvm.DIV:
		if err := need(2); err != nil {
			return false, err
		}
		a, b := f.Stack.pop(), f.Stack.pop()
		var r uint256.Int
		r.Div(&a, &b)
		f.Stack.push(&r)
	case op == evmvm.LT, op == evmvm.GT, op == evmvm.SLT, op == evmvm.SGT, op == evmvm.EQ:
		if err := need(2); err != nil {
			return false, err
		}
		a, b := f.Stack.pop(), f.Stack.pop()
		var res bool
		switch op {
		case evmvm.LT:
			res = a.Lt(&b)
		case evmvm.GT:
			res = a.Gt(&b)
		case evmvm.SLT:
			res = a.Slt(&b)
		case evmvm.SGT:
			res = a.Sgt(&b)
		case evmvm.EQ:
			res = a.Eq(&b)
		}
		var r uint256.Int
		if res {
			r.SetOne()
		}
		f.Stack.push(&r)
	case op == evmvm.ISZERO:
		if err := need(1); err != nil {
			return false, err
		}
		a := f.Stack.pop()
		var r uint256.Int
		if a.IsZero() {
			r.SetOne()
		}
		f.Stack.push(&r)
	case op == evmvm.AND, op == evmvm.OR, op == evmvm.XOR:
		if err := need(2); err != nil {
			return false, err
		}
		a, b := f.Stack.pop(), f.Stack.pop()
		var r uint256.Int
		switch op {
		case evmvm.AND:
			r.And(&a, &b)
		case evmvm.OR:
			r.Or(&a, &b)
		case evmvm.XOR:
			r.Xor(&a, &b)
		}
		f.Stack.push(&r)
	case op == evmvm.NOT:
		if err := need(1); err != nil {
			return false, err
		}
		a := f.Stack.pop()
		var r uint256.Int
		r.Not(&a)
		f.Stack.push(&r)
	case op == evmvm.JUMPDEST:
		// no-op marker
	case op == evmvm.PC:
		var r uint256.Int
		r.SetUint64(f.PC)
		f.Stack.push(&r)
	case op == evmvm.MLOAD:
		if err := need(1); err != nil {
			return false, err
		}
		off := f.Stack.pop()
		var v uint256.Int
		v.SetBytes(f.Memory.Get(off.Uint64(), 32))
		f.Stack.push(&v)
	case op == evmvm.MSTORE:
		if err := need(2); err != nil {
			return false, err
		}
		off := f.Stack.pop()
		val := f.Stack.pop()
		buf := val.Bytes32()
		f.Memory.Set(off.Uint64(), 32, buf[:])
	case op == evmvm.CALLDATALOAD:
		if err := need(1); err != nil {
			return false, err
		}
		off := f.Stack.pop()
		o := off.Uint64()
		var buf [32]byte
		if o < uint64(len(f.Input)) {
			end := o + 32
			if end > uint64(len(f.Input)) {
				end = uint64(len(f.Input))
			}
			copy(buf[:], f.Input[o:end])
		}
		var v uint256.Int
		v.SetBytes(buf[:])
		f.Stack.push(&v)
	case op == evmvm.CALLDATASIZE:
		var v uint256.Int
		v.SetUint64(uint64(len(f.Input)))
		f.Stack.push(&v)
	case op == evmvm.CALLVALUE:
		var v uint256.Int
		f.Stack.push(&v)
	case op == evmvm.CALLER:
		var v uint256.Int
		v.SetBytes(caller.Bytes())
		f.Stack.push(&v)
	case op == evmvm.ADDRESS:
		var v uint256.Int
		v.SetBytes(addr.Bytes())
		f.Stack.push(&v)
	case op == evmvm.KECCAK256:
		if err := need(2); err != nil {
			return false, err
		}
		off := f.Stack.pop()
		size := f.Stack.pop()
		digest := keccak(f.Memory.Get(off.Uint64(), size.Uint64()))
		var v uint256.Int
		v.SetBytes(digest[:])
		f.Stack.push(&v)
	case op == evmvm.SLOAD:
		if err := need(1); err != nil {
			return false, err
		}
		slotV := f.Stack.pop()
		slot := common.Hash(slotV.Bytes32())
		val := h.SLoad(addr, slot)
		var v uint256.Int
		v.SetBytes(val.Bytes())
		f.Stack.push(&v)
	case op == evmvm.SSTORE:
		if err := need(2); err != nil {
			return false, err
		}
		slotV := f.Stack.pop()
		val := f.Stack.pop()
		slot := common.Hash(slotV.Bytes32())
		h.SStore(addr, slot, common.Hash(val.Bytes32()))
	case op == evmvm.JUMP:
		if err := need(1); err != nil {
			return false, err
		}
		dest := f.Stack.pop()
		if !validJumpDest(f.Code, dest.Uint64()) {
			return false, fmt.Errorf("interp: invalid jump destination %d", dest.Uint64())
		}
		f.PC = dest.Uint64()
		return false, nil
	case op == evmvm.JUMPI:
		if err := need(2); err != nil {
			return false, err
		}
		dest := f.Stack.pop()
		cond := f.Stack.pop()
		if !cond.IsZero() {
			if !validJumpDest(f.Code, dest.Uint64()) {
				return false, fmt.Errorf("interp: invalid jump destination %d", dest.Uint64())
			}
			f.PC = dest.Uint64()
			return false, nil
		}
	case op == evmvm.RETURN:
		if err := need(2); err != nil {
			return false, err
		}
		off := f.Stack.pop()
		size := f.Stack.pop()
		f.ReturnData = f.Memory.Get(off.Uint64(), size.Uint64())
		f.Status = ReturnedOK
		return true, nil
	case op == evmvm.REVERT:
		if err := need(2); err != nil {
			return false, err
		}
		off := f.Stack.pop()
		size := f.Stack.pop()
		f.ReturnData = f.Memory.Get(off.Uint64(), size.Uint64())
		f.Status = ReturnedRevert
		return true, nil
	case op == evmvm.SELFDESTRUCT:
		if err := need(1); err != nil {
			return false, err
		}
		f.Stack.pop()
		h.State.SelfDestructs.Add(vmstate.SelfDestruct{Addr: addr, PC: f.PC})
		f.Status = ReturnedOK
		return true, nil
	case op == evmvm.CALL, op == evmvm.STATICCALL, op == evmvm.DELEGATECALL, op == evmvm.CALLCODE:
		return in.execCall(h, f, op, addr)
	case op == evmvm.CREATE, op == evmvm.CREATE2:
		return in.execCreate(h, f, op, addr)
	case op == evmvm.INVALID:
		return false, ErrOpcodeNotFound
	default:
		return false, ErrOpcodeNotFound
	}

	f.PC++
	return false, nil
}

func (in *Interpreter) execCall(h *Host, f *Frame, op evmvm.OpCode, self common.Address) (bool, error) {
	// Simplified, uniform CALL-family handling: gas, to, value, argsOffset,
	// argsSize, retOffset, retSize. STATICCALL/DELEGATECALL omit value.
	hasValue := op == evmvm.CALL || op == evmvm.CALLCODE
	need := 6
	if hasValue {
		need = 7
	}
	if f.Stack.Len() < need {
		return false, ErrStackUnderflow
	}
	f.Stack.pop() // gas
	toV := f.Stack.pop()
	var value uint256.Int
	if hasValue {
		value = f.Stack.pop()
	}
	argsOff := f.Stack.pop()
	argsSize := f.Stack.pop()
	retOff := f.Stack.pop()
	retSize := f.Stack.pop()

	to := common.Address(toV.Bytes20())
	input := f.Memory.Get(argsOff.Uint64(), argsSize.Uint64())

	res, err := h.Call(in, self, to, &value, input, op == evmvm.STATICCALL)
	if err != nil {
		var r uint256.Int
		f.Stack.push(&r)
		f.PC++
		return false, nil
	}
	if res.Paused {
		f.Status = Paused
		f.PausedID = res.PausedID
		return true, nil
	}

	f.Memory.Set(retOff.Uint64(), retSize.Uint64(), res.ReturnData)
	f.ReturnData = res.ReturnData

	var successVal uint256.Int
	if res.Success {
		successVal.SetOne()
	}
	f.Stack.push(&successVal)
	f.PC++
	return false, nil
}

// execCreate handles CREATE/CREATE2: no gas is charged beyond Run's flat
// per-opcode cost, and the only stack difference from the CALL family is the
// absent `to`/`gas` operands and CREATE2's extra salt, per the Yellow Paper
// layout.
func (in *Interpreter) execCreate(h *Host, f *Frame, op evmvm.OpCode, self common.Address) (bool, error) {
	need := 3
	if op == evmvm.CREATE2 {
		need = 4
	}
	if f.Stack.Len() < need {
		return false, ErrStackUnderflow
	}
	value := f.Stack.pop()
	off := f.Stack.pop()
	size := f.Stack.pop()
	var salt *uint256.Int
	if op == evmvm.CREATE2 {
		s := f.Stack.pop()
		salt = &s
	}
	initCode := f.Memory.Get(off.Uint64(), size.Uint64())

	res, _, err := h.Create(in, self, salt, &value, initCode)
	if err != nil {
		var r uint256.Int
		f.Stack.push(&r)
		f.PC++
		return false, nil
	}

	var addrVal uint256.Int
	if res.Success {
		addrVal.SetBytes(res.ReturnData)
	}
	f.Stack.push(&addrVal)
	f.PC++
	return false, nil
}

func validJumpDest(code []byte, dest uint64) bool {
	if dest >= uint64(len(code)) {
		return false
	}
	return evmvm.OpCode(code[dest]) == evmvm.JUMPDEST
}
