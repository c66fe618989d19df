package interp

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/greyboxfuzz/evmfuzz/vmstate"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func newTestHost() (*Host, *vmstate.VMState) {
	state := vmstate.NewEmptySeed()
	h := NewHost(state, NewChain(), DefaultConfig())
	return h, state
}

func TestInterpreterAddAndReturn(t *testing.T) {
	// PUSH1 0x02 PUSH1 0x03 ADD PUSH1 0x00 MSTORE PUSH1 0x20 PUSH1 0x00 RETURN
	code := []byte{
		byte(evmvm.PUSH1), 0x02,
		byte(evmvm.PUSH1), 0x03,
		byte(evmvm.ADD),
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.MSTORE),
		byte(evmvm.PUSH1), 0x20,
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.RETURN),
	}

	h, _ := newTestHost()
	in := NewInterpreter()

	ret, status, err := in.Run(h, code, nil, common.Address{1}, common.Address{2}, 0)
	require.NoError(t, err)
	require.Equal(t, ReturnedOK, status)

	var got uint256.Int
	got.SetBytes(ret)
	require.Equal(t, uint64(5), got.Uint64())
}

func TestInterpreterRevert(t *testing.T) {
	code := []byte{
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.REVERT),
	}
	h, _ := newTestHost()
	in := NewInterpreter()

	_, status, err := in.Run(h, code, nil, common.Address{}, common.Address{}, 0)
	require.NoError(t, err)
	require.Equal(t, ReturnedRevert, status)
}

func TestInterpreterSStoreSLoad(t *testing.T) {
	// PUSH1 0x2a PUSH1 0x00 SSTORE PUSH1 0x00 SLOAD PUSH1 0x00 MSTORE PUSH1 0x20 PUSH1 0x00 RETURN
	code := []byte{
		byte(evmvm.PUSH1), 0x2a,
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.SSTORE),
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.SLOAD),
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.MSTORE),
		byte(evmvm.PUSH1), 0x20,
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.RETURN),
	}
	h, _ := newTestHost()
	addr := common.Address{9}
	in := NewInterpreter()

	ret, status, err := in.Run(h, code, nil, common.Address{}, addr, 0)
	require.NoError(t, err)
	require.Equal(t, ReturnedOK, status)

	var got uint256.Int
	got.SetBytes(ret)
	require.Equal(t, uint64(0x2a), got.Uint64())
}

func TestInterpreterInvalidJumpErrors(t *testing.T) {
	code := []byte{
		byte(evmvm.PUSH1), 0x05,
		byte(evmvm.JUMP),
	}
	h, _ := newTestHost()
	in := NewInterpreter()

	_, _, err := in.Run(h, code, nil, common.Address{}, common.Address{}, 0)
	require.Error(t, err)
}

func TestInterpreterUnknownOpcodeReverts(t *testing.T) {
	code := []byte{0xfe} // INVALID
	h, _ := newTestHost()
	in := NewInterpreter()

	_, status, err := in.Run(h, code, nil, common.Address{}, common.Address{}, 0)
	require.ErrorIs(t, err, ErrOpcodeNotFound)
	require.Equal(t, ReturnedRevert, status)
}

func TestHostCallDepthLimit(t *testing.T) {
	h, _ := newTestHost()
	h.depth = h.Config.MaxCallDepth
	in := NewInterpreter()

	res, err := h.Call(in, common.Address{1}, common.Address{2}, new(uint256.Int), nil, false)
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestHostCallPrecompileDispatch(t *testing.T) {
	h, _ := newTestHost()
	in := NewInterpreter()
	target := common.Address{0x42}
	in.Precompiles[target] = precompileFunc(func(h *Host, caller common.Address, input []byte) ([]byte, bool) {
		return append([]byte("ok:"), input...), true
	})

	res, err := h.Call(in, common.Address{1}, target, new(uint256.Int), []byte("hi"), false)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "ok:hi", string(res.ReturnData))
}

func TestHostCallDefersIntoContinuation(t *testing.T) {
	h, state := newTestHost()
	in := NewInterpreter()
	h.DeferNextCall = true

	res, err := h.Call(in, common.Address{1}, common.Address{2}, new(uint256.Int), nil, false)
	require.NoError(t, err)
	require.True(t, res.Paused)
	require.Len(t, state.PostExecution, 1)
	require.False(t, h.DeferNextCall, "defer flag must be consumed, not sticky")
}

func TestScanConstants(t *testing.T) {
	code := []byte{
		byte(evmvm.PUSH1), 0x01, // too short: skipped
		byte(evmvm.PUSH4), 0xde, 0xad, 0xbe, 0xef,
		byte(evmvm.PUSH32),
	}
	code = append(code, make([]byte, 32)...) // all-zero: skipped
	got := ScanConstants(code)
	require.Len(t, got, 1)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, got[0])
}

// deployInitCode is the init code every CREATE/CREATE2 test deploys: it
// returns a fixed 32-byte word (0x2a) as the child's runtime code.
var deployInitCode = []byte{
	byte(evmvm.PUSH1), 0x2a,
	byte(evmvm.PUSH1), 0x00,
	byte(evmvm.MSTORE),
	byte(evmvm.PUSH1), 0x20,
	byte(evmvm.PUSH1), 0x00,
	byte(evmvm.RETURN),
}

// createCallerCode builds the outer contract: it copies deployInitCode into
// memory (right-aligned within a 32-byte word via PUSH10+MSTORE, hence the
// offset/size of 22/10 below), runs CREATE or CREATE2, and returns the
// resulting child address as its own 32-byte return value.
func createCallerCode(op evmvm.OpCode, salt byte) []byte {
	code := []byte{byte(evmvm.PUSH10)}
	code = append(code, deployInitCode...)
	code = append(code,
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.MSTORE),
	)
	if op == evmvm.CREATE2 {
		code = append(code, byte(evmvm.PUSH1), salt)
	}
	code = append(code,
		byte(evmvm.PUSH1), 0x0a, // size
		byte(evmvm.PUSH1), 0x16, // offset (32-10)
		byte(evmvm.PUSH1), 0x00, // value
		byte(op),
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.MSTORE),
		byte(evmvm.PUSH1), 0x20,
		byte(evmvm.PUSH1), 0x00,
		byte(evmvm.RETURN),
	)
	return code
}

func TestInterpreterCreateDeploysInitCodeReturnAsChildCode(t *testing.T) {
	h, state := newTestHost()
	in := NewInterpreter()
	caller := common.Address{7}

	ret, status, err := in.Run(h, createCallerCode(evmvm.CREATE, 0), nil, common.Address{}, caller, 0)
	require.NoError(t, err)
	require.Equal(t, ReturnedOK, status)

	var childAddrVal uint256.Int
	childAddrVal.SetBytes(ret)
	child := common.Address(childAddrVal.Bytes20())

	want := crypto.CreateAddress(caller, 0)
	require.Equal(t, want, child)
	require.EqualValues(t, 1, state.Account(caller).Nonce, "CREATE must consume the sender's nonce")

	deployed := state.Account(child)
	require.True(t, deployed.HasCode())

	var got uint256.Int
	got.SetBytes(deployed.Code)
	require.Equal(t, uint64(0x2a), got.Uint64())
}

func TestInterpreterCreate2DerivesAddressFromSaltAndInitCodeHash(t *testing.T) {
	h, _ := newTestHost()
	in := NewInterpreter()
	caller := common.Address{8}
	const salt = 0x07

	ret, status, err := in.Run(h, createCallerCode(evmvm.CREATE2, salt), nil, common.Address{}, caller, 0)
	require.NoError(t, err)
	require.Equal(t, ReturnedOK, status)

	var childAddrVal uint256.Int
	childAddrVal.SetBytes(ret)
	child := common.Address(childAddrVal.Bytes20())

	var saltWord [32]byte
	saltWord[31] = salt
	want := crypto.CreateAddress2(caller, saltWord, crypto.Keccak256(deployInitCode))
	require.Equal(t, want, child)
}

func TestInterpreterCreateCollisionFailsWithoutClobberingExistingAccount(t *testing.T) {
	h, state := newTestHost()
	in := NewInterpreter()
	caller := common.Address{9}

	collideAddr := crypto.CreateAddress(caller, 0)
	existing := state.Account(collideAddr)
	existing.Code = []byte{0xAB, 0xCD}

	ret, status, err := in.Run(h, createCallerCode(evmvm.CREATE, 0), nil, common.Address{}, caller, 0)
	require.NoError(t, err)
	require.Equal(t, ReturnedOK, status)

	var childAddrVal uint256.Int
	childAddrVal.SetBytes(ret)
	require.True(t, childAddrVal.IsZero(), "a colliding CREATE must report the zero address, not overwrite the existing account")
	require.Equal(t, []byte{0xAB, 0xCD}, state.Account(collideAddr).Code, "existing account code must survive the failed collision")
}

// precompileFunc adapts a function literal to the Precompile interface for
// tests.
type precompileFunc func(h *Host, caller common.Address, input []byte) ([]byte, bool)

func (f precompileFunc) Run(h *Host, caller common.Address, input []byte) ([]byte, bool) {
	return f(h, caller, input)
}
