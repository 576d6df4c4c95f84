// Package collab defines the boundary of the components the treasury calls
// out to but does not own: the reserve asset, the principal token, the
// staking vault and the external custodian.
//
// Implementations are call-and-forget: none of these methods receives a handle
// back into the treasury.
package collab

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ReserveAsset is the 6-decimal stable asset backing the principal token.
type ReserveAsset interface {
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// PrincipalToken is the 18-decimal base unit.
type PrincipalToken interface {
	TotalSupply() *uint256.Int
	BalanceOf(owner common.Address) *uint256.Int
	Mint(to common.Address, amount *uint256.Int) error
	Burn(from common.Address, amount *uint256.Int) error

	// Freeze halts deposits and withdrawals on the token.
	Freeze() error
	Unfreeze() error
	Frozen() bool

	// BackingRatio is the redeemable value of one principal unit, in
	// WAD (1e18 is par).
	BackingRatio() *uint256.Int
	SetBackingRatio(ratio *uint256.Int) error
}

// Vault is the staking vault holding principal on behalf of yield holders.
type Vault interface {
	// PrincipalBalance is the vault's own principal token holdings.
	PrincipalBalance() *uint256.Int
	FreezeDeposits() error
	UnfreezeDeposits() error
	DepositsFrozen() bool
	// NotifyProfit seeds a new linear-drip epoch of amount principal units.
	NotifyProfit(amount *uint256.Int, startBlock, length uint64) error
}

// Custodian is the external yield party. Both methods are notifications sent
// after the reserve has already moved.
type Custodian interface {
	Deposit(ctx context.Context, amount *uint256.Int) error
	Withdraw(ctx context.Context, amount *uint256.Int) error
}

// Checkpointer is implemented by collaborators that can take part in the
// all-or-nothing envelope of a treasury operation. Checkpoint captures the
// current state and returns a function that restores it.
type Checkpointer interface {
	Checkpoint() (rollback func())
}

// Set bundles the collaborators a treasury instance talks to.
type Set struct {
	Reserve   ReserveAsset
	Principal PrincipalToken
	Vault     Vault
	Custodian Custodian
}

// Checkpointers returns the members of s that can be rolled back.
func (s Set) Checkpointers() []Checkpointer {
	var out []Checkpointer
	for _, c := range []any{s.Reserve, s.Principal, s.Vault, s.Custodian} {
		if cp, ok := c.(Checkpointer); ok {
			out = append(out, cp)
		}
	}
	return out
}

// WAD is par for the backing ratio.
var WAD = uint256.NewInt(1_000_000_000_000_000_000)
