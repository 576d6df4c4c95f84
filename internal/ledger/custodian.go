package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
)

// Custodian is a paper custodian: it holds reserve under its own address,
// tracks what it was notified about, and can simulate yield or losses.
type Custodian struct {
	mu        sync.Mutex
	addr      common.Address
	reserve   *Token
	principal *uint256.Int // net notified deposits

	// FailNext, when set, is returned by the next Deposit or Withdraw
	// notification and then cleared.
	FailNext error
}

// NewCustodian creates a custodian holding reserve under addr.
func NewCustodian(addr common.Address, reserve *Token) *Custodian {
	return &Custodian{addr: addr, reserve: reserve, principal: fixedpoint.Zero()}
}

func (c *Custodian) Address() common.Address { return c.addr }

func (c *Custodian) Deposit(ctx context.Context, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return err
	}
	c.principal = new(uint256.Int).Add(c.principal, amount)
	return nil
}

func (c *Custodian) Withdraw(ctx context.Context, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return err
	}
	if c.principal.Lt(amount) {
		c.principal = fixedpoint.Zero()
		return nil
	}
	c.principal = new(uint256.Int).Sub(c.principal, amount)
	return nil
}

func (c *Custodian) takeFailure() error {
	err := c.FailNext
	c.FailNext = nil
	return err
}

// Notified returns the net amount the custodian has been told it holds.
func (c *Custodian) Notified() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal.Clone()
}

// Balance is the custodian's actual reserve holdings, i.e. what it reports.
func (c *Custodian) Balance() *uint256.Int {
	return c.reserve.BalanceOf(c.addr)
}

// Yield simulates investment gains by minting reserve to the custodian.
func (c *Custodian) Yield(amount *uint256.Int) error {
	return c.reserve.Mint(c.addr, amount)
}

// Lose simulates an investment loss.
func (c *Custodian) Lose(amount *uint256.Int) error {
	if err := c.reserve.Burn(c.addr, amount); err != nil {
		return fmt.Errorf("custodian loss: %w", err)
	}
	return nil
}

// Checkpoint captures notified deposits.
func (c *Custodian) Checkpoint() func() {
	c.mu.Lock()
	principal := c.principal.Clone()
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.principal = principal
	}
}

var (
	_ collab.Custodian    = (*Custodian)(nil)
	_ collab.Checkpointer = (*Custodian)(nil)
)
