package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
)

// Principal is the paper principal token: a Token plus a freeze switch and a
// backing ratio.
type Principal struct {
	*Token

	mu     sync.Mutex
	frozen bool
	ratio  *uint256.Int
}

// NewPrincipal creates a principal token at par.
func NewPrincipal(symbol string) *Principal {
	return &Principal{
		Token: NewToken(symbol, fixedpoint.PrincipalDecimals),
		ratio: collab.WAD.Clone(),
	}
}

func (p *Principal) Freeze() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frozen = true
	return nil
}

func (p *Principal) Unfreeze() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frozen = false
	return nil
}

func (p *Principal) Frozen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frozen
}

func (p *Principal) BackingRatio() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ratio.Clone()
}

// SetBackingRatio accepts any ratio in [0, par].
func (p *Principal) SetBackingRatio(ratio *uint256.Int) error {
	if ratio.Gt(collab.WAD) {
		return fmt.Errorf("ledger: backing ratio %s above par", ratio.Dec())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ratio = ratio.Clone()
	return nil
}

// Redeem is the user exit path: burns amount and returns the reserve value it
// is worth at the current backing ratio. Blocked while frozen.
func (p *Principal) Redeem(holder common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if p.Frozen() {
		return nil, ErrTokenFrozen
	}
	worth, err := fixedpoint.MulDiv(amount, p.BackingRatio(), collab.WAD)
	if err != nil {
		return nil, err
	}
	if err := p.Burn(holder, amount); err != nil {
		return nil, err
	}
	return fixedpoint.ToReserve(worth), nil
}

// Checkpoint captures balances, freeze state and ratio.
func (p *Principal) Checkpoint() func() {
	restoreToken := p.Token.Checkpoint()
	p.mu.Lock()
	frozen, ratio := p.frozen, p.ratio.Clone()
	p.mu.Unlock()

	return func() {
		restoreToken()
		p.mu.Lock()
		defer p.mu.Unlock()
		p.frozen = frozen
		p.ratio = ratio
	}
}

var (
	_ collab.PrincipalToken = (*Principal)(nil)
	_ collab.Checkpointer   = (*Principal)(nil)
	_ collab.ReserveAsset   = (*Token)(nil)
	_ collab.Checkpointer   = (*Token)(nil)
)
