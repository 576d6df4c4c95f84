// Package ledger provides paper (in-memory) implementations of the treasury
// collaborators. They back the daemon's paper mode and the package tests, and
// all of them support checkpoint/rollback so a failed treasury operation
// leaves them untouched.
package ledger

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/fixedpoint"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrZeroAddress         = errors.New("ledger: zero address")
	ErrDepositsFrozen      = errors.New("ledger: deposits frozen")
	ErrTokenFrozen         = errors.New("ledger: token frozen")
)

// Token is a fungible balance sheet.
type Token struct {
	mu       sync.Mutex
	symbol   string
	decimals int
	supply   *uint256.Int
	balances map[common.Address]*uint256.Int
}

// NewToken creates an empty token.
func NewToken(symbol string, decimals int) *Token {
	return &Token{
		symbol:   symbol,
		decimals: decimals,
		supply:   fixedpoint.Zero(),
		balances: make(map[common.Address]*uint256.Int),
	}
}

func (t *Token) Symbol() string { return t.symbol }
func (t *Token) Decimals() int  { return t.decimals }

// TotalSupply returns a copy of the current supply.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply.Clone()
}

// BalanceOf returns a copy of owner's balance.
func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceOf(owner).Clone()
}

func (t *Token) balanceOf(owner common.Address) *uint256.Int {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return fixedpoint.Zero()
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from.Hex(),
			fixedpoint.Format(bal, t.decimals), t.symbol, fixedpoint.Format(amount, t.decimals))
	}
	t.balances[from] = new(uint256.Int).Sub(bal, amount)
	t.balances[to] = new(uint256.Int).Add(t.balanceOf(to), amount)
	t.prune(from)
	return nil
}

// Mint creates amount units for to.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	supply, err := fixedpoint.Add(t.supply, amount)
	if err != nil {
		return err
	}
	bal, err := fixedpoint.Add(t.balanceOf(to), amount)
	if err != nil {
		return err
	}
	t.supply = supply
	t.balances[to] = bal
	return nil
}

// Burn destroys amount units held by from.
func (t *Token) Burn(from common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: burn %s from %s holding %s", ErrInsufficientBalance,
			fixedpoint.Format(amount, t.decimals), from.Hex(), fixedpoint.Format(bal, t.decimals))
	}
	t.balances[from] = new(uint256.Int).Sub(bal, amount)
	t.supply = new(uint256.Int).Sub(t.supply, amount)
	t.prune(from)
	return nil
}

func (t *Token) prune(owner common.Address) {
	if b, ok := t.balances[owner]; ok && b.IsZero() {
		delete(t.balances, owner)
	}
}

// Checkpoint captures balances and supply.
func (t *Token) Checkpoint() func() {
	t.mu.Lock()
	supply := t.supply.Clone()
	balances := make(map[common.Address]*uint256.Int, len(t.balances))
	for k, v := range t.balances {
		balances[k] = v.Clone()
	}
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.supply = supply
		t.balances = maps.Clone(balances)
	}
}

// Holders returns a copy of every non-zero balance.
func (t *Token) Holders() map[common.Address]*uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[common.Address]*uint256.Int, len(t.balances))
	for k, v := range t.balances {
		out[k] = v.Clone()
	}
	return out
}
