package middleware

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// CheatcodeAddress is the fixed precompile address checked on every
// CALL/STATICCALL/DELEGATECALL/CALLCODE (§4.C.6), matching the Foundry
// convention (address(uint160(uint256(keccak256("hevm cheat code")))). Must
// be bit-exact with §6's wire constant — a truncated or mis-padded literal
// here silently resolves to a different address and the precompile is never
// dispatched to.
var CheatcodeAddress = common.HexToAddress("0x7109709ECfa91a80626fF3989D68f67F5b1DD12D")

// errorPrefix is §6's ERROR_PREFIX: cheatcode argument-decode/shape failures
// revert with this 4-byte tag rather than Error(string)'s 0x08c379a0, so the
// fuzzer can recognize "cheat call malformed" without treating it as a bug
// (§7 "Cheatcode error").
var errorPrefix = [4]byte{0x0b, 0xc4, 0x45, 0x03}

// LogRecord is a minimal LOGn observation, enough for expectEmit matching and
// the recorder cheatcodes.
type LogRecord struct {
	Addr   common.Address
	Topics []common.Hash
	Data   []byte
}

// ExpectedEmit is one queued expectEmit call. CheckMask bit i (0..3) gates
// whether topic i (0=selector) must match; bit 4 gates Data; bit 5 gates Addr.
type ExpectedEmit struct {
	CheckMask uint8
	Addr      common.Address
	Template  *LogRecord // nil until filled by a later vm.expectEmit(...) + emit pair, per the tail-fill rule
	Filled    bool
}

// ExpectedCall is one registered expectCall: a calldata prefix to watch for
// on the given target, with an optional value constraint and a minimum hit
// count.
type ExpectedCall struct {
	Target     common.Address
	DataPrefix []byte
	Value      *uint256.Int // nil = unconstrained
	MinCount   int
	Hits       int
}

// Cheatcode implements the §4.C.6 precompile: a fixed set of ABI-encoded
// operations that mutate host-only bookkeeping (never VMState) and reset at
// transaction boundaries.
type Cheatcode struct {
	// env overrides, applied by the transaction executor before dispatch.
	Warp     *uint256.Int
	Roll     *uint256.Int
	Fee      *uint256.Int
	ChainID  *uint256.Int
	Coinbase *common.Address

	// prank stack: each entry is (sender, origin-override, persistent).
	pranks []prankEntry

	recording      bool
	recordedLogs   []LogRecord
	expectReverted bool
	revertReason   []byte

	expectedEmits []*ExpectedEmit
	expectedCalls []*ExpectedCall

	Failures []error

	// CheatError records that a cheat call was rejected this transaction
	// (unknown selector, malformed args, or a state lookup the call depends
	// on failing) and reverted with errorPrefix rather than completing
	// (§6/§7 "Cheatcode error" — distinct from an assertion Failure).
	CheatError bool

	selectors map[[4]byte]func(h *interp.Host, caller common.Address, args []byte) ([]byte, bool)
}

// cheatRevert marks the current cheat call as rejected and returns the
// ERROR_PREFIX-tagged payload callers must propagate as the REVERT data
// (§6, §7 "the cheat call is made to revert with the ERROR_PREFIX").
func (c *Cheatcode) cheatRevert() ([]byte, bool) {
	c.CheatError = true
	return errorPrefix[:], false
}

type prankEntry struct {
	sender     common.Address
	origin     *common.Address
	persistent bool
}

func NewCheatcode() *Cheatcode {
	c := &Cheatcode{}
	c.selectors = map[[4]byte]func(*interp.Host, common.Address, []byte) ([]byte, bool){
		selector("warp(uint256)"):                         c.cheatWarp,
		selector("roll(uint256)"):                         c.cheatRoll,
		selector("fee(uint256)"):                          c.cheatFee,
		selector("chainId(uint256)"):                      c.cheatChainID,
		selector("coinbase(address)"):                     c.cheatCoinbase,
		selector("load(address,bytes32)"):                 c.cheatLoad,
		selector("store(address,bytes32,bytes32)"):        c.cheatStore,
		selector("etch(address,bytes)"):                   c.cheatEtch,
		selector("deal(address,uint256)"):                 c.cheatDeal,
		selector("prank(address)"):                         c.cheatPrank,
		selector("startPrank(address)"):                    c.cheatStartPrank,
		selector("stopPrank()"):                            c.cheatStopPrank,
		selector("recordLogs()"):                           c.cheatRecordLogs,
		selector("getRecordedLogs()"):                      c.cheatGetRecordedLogs,
		selector("expectRevert()"):                         c.cheatExpectRevert,
		selector("expectRevert(bytes)"):                    c.cheatExpectRevertReason,
		selector("expectEmit(bool,bool,bool,bool)"):        c.cheatExpectEmit,
		selector("expectCall(address,bytes)"):               c.cheatExpectCall,
		selector("assertTrue(bool)"):                        c.cheatAssertTrue,
		selector("assertEq(uint256,uint256)"):               c.cheatAssertEqUint,
		selector("assertEq(address,address)"):               c.cheatAssertEqAddr,
		selector("assertGt(uint256,uint256)"):               c.cheatAssertGt,
		selector("assertLt(uint256,uint256)"):               c.cheatAssertLt,
	}
	return c
}

// selector computes a Foundry-style cheatcode selector the same way the ABI
// tree computes function selectors (§4.F): keccak256(signature)[:4].
func selector(sig string) [4]byte {
	h := crypto.Keccak256([]byte(sig))
	var s [4]byte
	copy(s[:], h[:4])
	return s
}

// Kind implements interp.Middleware. Cheatcode is registered both as a
// precompile (dispatch via Run, below) and as a chain middleware; its chain
// hooks are no-ops, and FinalizeCallExpectations is called by the fuzzer
// engine at the transaction boundary (§4.C.6).
func (c *Cheatcode) Kind() string { return "cheatcode" }

// OnStep implements interp.Middleware. Cheatcode has nothing to observe on a
// per-opcode basis; all its bookkeeping happens through Run and the explicit
// ObserveCall/OnLog feeds.
func (c *Cheatcode) OnStep(h *interp.Host, ctx *interp.StepContext) {}

// OnReturn implements interp.Middleware. interp.Run dispatches OnReturn once
// per nested call frame, not just at the top-level transaction, so settling
// expectCall/expectEmit here would fire on every internal return instead of
// at transaction end (§4.C.6); that settlement is done explicitly by the
// fuzzer engine via FinalizeCallExpectations once the top-level call returns,
// the same way ObserveReturn settles expectRevert off the raw status code.
func (c *Cheatcode) OnReturn(h *interp.Host, ctx *interp.ReturnContext) {}

// BeforeExecute implements interp.Middleware; per-transaction reset is driven
// explicitly by the fuzzer engine's ResetPerTransaction call instead, since it
// must run before BeforeExecute observes the fresh calldata.
func (c *Cheatcode) BeforeExecute(h *interp.Host, ctx *interp.ExecuteContext) {}

// Run implements interp.Precompile.
func (c *Cheatcode) Run(h *interp.Host, caller common.Address, input []byte) ([]byte, bool) {
	if len(input) < 4 {
		return c.cheatRevert()
	}
	var sel [4]byte
	copy(sel[:], input[:4])
	fn, ok := c.selectors[sel]
	if !ok {
		return c.cheatRevert()
	}
	return fn(h, caller, input[4:])
}

func word(args []byte, i int) []byte {
	off := i * 32
	if off+32 > len(args) {
		return make([]byte, 32)
	}
	return args[off : off+32]
}

func addrArg(args []byte, i int) common.Address {
	return common.BytesToAddress(word(args, i))
}

func u256Arg(args []byte, i int) *uint256.Int {
	v := new(uint256.Int)
	v.SetBytes(word(args, i))
	return v
}

// --- env setters ---

func (c *Cheatcode) cheatWarp(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	c.Warp = u256Arg(args, 0)
	return nil, true
}
func (c *Cheatcode) cheatRoll(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	c.Roll = u256Arg(args, 0)
	return nil, true
}
func (c *Cheatcode) cheatFee(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	c.Fee = u256Arg(args, 0)
	return nil, true
}
func (c *Cheatcode) cheatChainID(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	c.ChainID = u256Arg(args, 0)
	return nil, true
}
func (c *Cheatcode) cheatCoinbase(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	a := addrArg(args, 0)
	c.Coinbase = &a
	return nil, true
}

// --- state setters ---

func (c *Cheatcode) cheatLoad(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	addr := addrArg(args, 0)
	slot := common.BytesToHash(word(args, 1))
	val := h.SLoad(addr, slot)
	return val.Bytes(), true
}

func (c *Cheatcode) cheatStore(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	addr := addrArg(args, 0)
	slot := common.BytesToHash(word(args, 1))
	val := common.BytesToHash(word(args, 2))
	h.SStore(addr, slot, val)
	return nil, true
}

func (c *Cheatcode) cheatEtch(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	addr := addrArg(args, 0)
	// dynamic bytes: offset word, then length, then data — reuse the ABI
	// tree's tail-decoding convention (§4.F) rather than a bespoke parser.
	if len(args) < 96 {
		return c.cheatRevert()
	}
	length := new(uint256.Int)
	length.SetBytes(word(args, 2))
	n := length.Uint64()
	start := 3 * 32
	end := start + int(n)
	if end > len(args) {
		end = len(args)
	}
	acct, err := h.LoadAccount(addr)
	if err != nil {
		return c.cheatRevert()
	}
	acct.Code = append([]byte(nil), args[start:end]...)
	return nil, true
}

func (c *Cheatcode) cheatDeal(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	addr := addrArg(args, 0)
	amount := u256Arg(args, 1)
	acct, err := h.LoadAccount(addr)
	if err != nil {
		return c.cheatRevert()
	}
	acct.Balance.Set(amount)
	return nil, true
}

// --- pranks ---

func (c *Cheatcode) cheatPrank(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	sender := addrArg(args, 0)
	c.pranks = append(c.pranks, prankEntry{sender: sender, persistent: false})
	return nil, true
}
func (c *Cheatcode) cheatStartPrank(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	sender := addrArg(args, 0)
	c.pranks = append(c.pranks, prankEntry{sender: sender, persistent: true})
	return nil, true
}
func (c *Cheatcode) cheatStopPrank(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	if len(c.pranks) > 0 {
		c.pranks = c.pranks[:len(c.pranks)-1]
	}
	return nil, true
}

// ActivePrank returns the sender override in effect, if any.
func (c *Cheatcode) ActivePrank() (common.Address, bool) {
	if len(c.pranks) == 0 {
		return common.Address{}, false
	}
	return c.pranks[len(c.pranks)-1].sender, true
}

// --- recorders ---

func (c *Cheatcode) cheatRecordLogs(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	c.recording = true
	c.recordedLogs = nil
	return nil, true
}
func (c *Cheatcode) cheatGetRecordedLogs(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	c.recording = false
	return nil, true // the fuzzer reads c.recordedLogs directly; encoding the dynamic array is omitted.
}

// OnLog feeds every LOGn the interpreter executes to the recorder and the
// expectEmit matcher (§4.C.6). It is invoked by the interpreter's LOG
// handling, not a Middleware hook, since LOGn never calls into Run.
func (c *Cheatcode) OnLog(rec LogRecord) {
	if c.recording {
		c.recordedLogs = append(c.recordedLogs, rec)
	}
	c.matchEmit(rec)
}

// matchEmit implements the FIFO/tail-fill algorithm of §4.C.6: if any queued
// expectation still has an unfilled template, pop from the tail (filling in
// declaration order); otherwise pop from the front (matching in declaration
// order).
func (c *Cheatcode) matchEmit(rec LogRecord) {
	if len(c.expectedEmits) == 0 {
		return
	}
	hasUnfilled := false
	for _, e := range c.expectedEmits {
		if !e.Filled {
			hasUnfilled = true
			break
		}
	}

	var idx int
	if hasUnfilled {
		idx = len(c.expectedEmits) - 1
		for i, e := range c.expectedEmits {
			if !e.Filled {
				idx = i
				break
			}
		}
		c.expectedEmits[idx].Template = &rec
		c.expectedEmits[idx].Filled = true
		return
	}

	idx = 0
	exp := c.expectedEmits[idx]
	c.expectedEmits = append(c.expectedEmits[:idx], c.expectedEmits[idx+1:]...)
	if !c.logMatches(exp, rec) {
		c.Failures = append(c.Failures, errors.Errorf("expectEmit: log mismatch at %s", rec.Addr))
	}
}

func (c *Cheatcode) logMatches(exp *ExpectedEmit, rec LogRecord) bool {
	if exp.Template == nil {
		return false
	}
	want := exp.Template
	if exp.CheckMask&(1<<5) != 0 && exp.Addr != rec.Addr {
		return false
	}
	for i := 0; i < 4; i++ {
		if exp.CheckMask&(1<<uint(i)) == 0 {
			continue
		}
		if i >= len(want.Topics) || i >= len(rec.Topics) || want.Topics[i] != rec.Topics[i] {
			return false
		}
	}
	if exp.CheckMask&(1<<4) != 0 {
		if string(want.Data) != string(rec.Data) {
			return false
		}
	}
	return true
}

func (c *Cheatcode) cheatExpectEmit(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	var mask uint8
	for i, bit := range []int{0, 1, 2, 4} {
		w := word(args, i)
		if w[31] != 0 {
			mask |= 1 << uint(bit)
		}
	}
	c.expectedEmits = append(c.expectedEmits, &ExpectedEmit{CheckMask: mask})
	return nil, true
}

// --- expectations ---

func (c *Cheatcode) cheatExpectRevert(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	c.expectReverted = true
	c.revertReason = nil
	return nil, true
}

func (c *Cheatcode) cheatExpectRevertReason(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	c.expectReverted = true
	if len(args) >= 64 {
		n := new(uint256.Int)
		n.SetBytes(word(args, 1))
		end := 64 + int(n.Uint64())
		if end <= len(args) {
			c.revertReason = append([]byte(nil), args[64:end]...)
		}
	}
	return nil, true
}

// ObserveReturn checks an expectRevert registration against the actual
// transaction outcome; called by the transaction executor at the end of the
// call, not by the middleware chain (cheatcode state lives on the host, not
// in a Chain hook, since it must see the *final* outcome).
func (c *Cheatcode) ObserveReturn(reverted bool, returnData []byte) {
	if !c.expectReverted {
		return
	}
	defer func() { c.expectReverted = false }()
	if !reverted {
		c.Failures = append(c.Failures, errors.New("expectRevert: call did not revert"))
		return
	}
	if c.revertReason != nil && string(c.revertReason) != string(returnData) {
		c.Failures = append(c.Failures, errors.Errorf("expectRevert: reason mismatch, got %x want %x", returnData, c.revertReason))
	}
}

func (c *Cheatcode) cheatExpectCall(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	target := addrArg(args, 0)
	if len(args) < 64 {
		return c.cheatRevert()
	}
	n := new(uint256.Int)
	n.SetBytes(word(args, 1))
	end := 64 + int(n.Uint64())
	if end > len(args) {
		end = len(args)
	}
	c.expectedCalls = append(c.expectedCalls, &ExpectedCall{Target: target, DataPrefix: append([]byte(nil), args[64:end]...), MinCount: 1})
	return nil, true
}

// ObserveCall feeds every non-cheatcode call into the expectCall tracker
// (§4.C.6).
func (c *Cheatcode) ObserveCall(target common.Address, value *uint256.Int, input []byte) {
	if target == CheatcodeAddress {
		return
	}
	for _, exp := range c.expectedCalls {
		if exp.Target != target {
			continue
		}
		if len(input) < len(exp.DataPrefix) || string(input[:len(exp.DataPrefix)]) != string(exp.DataPrefix) {
			continue
		}
		if exp.Value != nil && (value == nil || exp.Value.Cmp(value) != 0) {
			continue
		}
		exp.Hits++
	}
}

// FinalizeCallExpectations checks unmet registrations at transaction end
// (§4.C.6).
func (c *Cheatcode) FinalizeCallExpectations() {
	for _, exp := range c.expectedCalls {
		if exp.Hits < exp.MinCount {
			c.Failures = append(c.Failures, errors.Errorf("expectCall: %s never called with expected prefix", exp.Target))
		}
	}
	for _, exp := range c.expectedEmits {
		if !exp.Filled {
			c.Failures = append(c.Failures, errors.New("expectEmit: expected log never emitted"))
		} else {
			c.Failures = append(c.Failures, errors.New("expectEmit: expected log never matched"))
		}
	}
}

// --- assertions (representative subset of the ~200-member family, §4.C.6) ---

func (c *Cheatcode) cheatAssertTrue(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	if word(args, 0)[31] == 0 {
		c.fail("assertTrue: condition false")
	}
	return nil, true
}

func (c *Cheatcode) cheatAssertEqUint(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	a, b := u256Arg(args, 0), u256Arg(args, 1)
	if a.Cmp(b) != 0 {
		c.fail(fmt.Sprintf("assertEq: %s != %s", a, b))
	}
	return nil, true
}

func (c *Cheatcode) cheatAssertEqAddr(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	a, b := addrArg(args, 0), addrArg(args, 1)
	if a != b {
		c.fail(fmt.Sprintf("assertEq: %s != %s", a, b))
	}
	return nil, true
}

func (c *Cheatcode) cheatAssertGt(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	a, b := u256Arg(args, 0), u256Arg(args, 1)
	if a.Cmp(b) <= 0 {
		c.fail(fmt.Sprintf("assertGt: %s <= %s", a, b))
	}
	return nil, true
}

func (c *Cheatcode) cheatAssertLt(h *interp.Host, caller common.Address, args []byte) ([]byte, bool) {
	a, b := u256Arg(args, 0), u256Arg(args, 1)
	if a.Cmp(b) >= 0 {
		c.fail(fmt.Sprintf("assertLt: %s >= %s", a, b))
	}
	return nil, true
}

func (c *Cheatcode) fail(msg string) {
	c.Failures = append(c.Failures, errors.New(msg))
}

// ResetPerTransaction clears the bookkeeping that does not survive a
// transaction boundary, per §4.C.6.
func (c *Cheatcode) ResetPerTransaction() {
	c.pranks = nil
	c.recording = false
	c.recordedLogs = nil
	c.expectReverted = false
	c.revertReason = nil
	c.expectedEmits = nil
	c.expectedCalls = nil
	c.Failures = nil
	c.CheatError = false
	c.Warp, c.Roll, c.Fee, c.ChainID, c.Coinbase = nil, nil, nil, nil, nil
}
