package middleware

import (
	"github.com/ethereum/go-ethereum/common"
	evmvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/greyboxfuzz/evmfuzz/interp"
	"github.com/holiman/uint256"
)

// balanceOfSelector is keccak256("balanceOf(address)")[:4].
var balanceOfSelector = [4]byte{0x70, 0xa0, 0x82, 0x31}

// Flashloan watches CALL/STATICCALL opcodes into registered token addresses
// and folds balance deltas into vmstate.FlashloanAccount (§4.C.8). The
// balance it tracks per token is the token account's own native balance in
// VMState, re-read at each such call and diffed against the previous
// observation; it does not decode calldata or query balanceOf(caller), so
// ERC20 holdings are not observed.
type Flashloan struct {
	Tokens      map[common.Address]bool
	lastBalance map[common.Address]*uint256.Int
}

func NewFlashloan(tokens ...common.Address) *Flashloan {
	set := make(map[common.Address]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return &Flashloan{Tokens: set, lastBalance: make(map[common.Address]*uint256.Int)}
}

func (f *Flashloan) Kind() string { return "flashloan" }

func (f *Flashloan) OnStep(h *interp.Host, ctx *interp.StepContext) {
	switch ctx.Op {
	case evmvm.CALL, evmvm.STATICCALL:
		if !f.Tokens[common.Address(ctx.Addr)] {
			return
		}
		// Best-effort observation: re-read the token account's native
		// balance from VMState; the call's calldata is not decoded.
		acct := h.State.Account(common.Address(ctx.Addr))
		bal := acct.Balance
		prev, ok := f.lastBalance[common.Address(ctx.Addr)]
		if ok {
			f.observeDelta(h, bal, prev)
		}
		cp := new(uint256.Int).Set(bal)
		f.lastBalance[common.Address(ctx.Addr)] = cp
	}
}

func (f *Flashloan) observeDelta(h *interp.Host, cur, prev *uint256.Int) {
	if cur.Cmp(prev) >= 0 {
		delta := new(uint256.Int).Sub(cur, prev)
		h.State.Flashloan.RecordDelta(delta, false)
		return
	}
	delta := new(uint256.Int).Sub(prev, cur)
	h.State.Flashloan.RecordDelta(delta, true)
}

func (f *Flashloan) OnReturn(h *interp.Host, ctx *interp.ReturnContext)      {}
func (f *Flashloan) BeforeExecute(h *interp.Host, ctx *interp.ExecuteContext) {}
