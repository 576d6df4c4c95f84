package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
)

// Epoch is the drip window most recently seeded by the treasury.
type Epoch struct {
	Amount     *uint256.Int
	StartBlock uint64
	Length     uint64
}

// Vault is the paper staking vault. Its holdings live on the principal token
// under the vault's own address.
type Vault struct {
	mu        sync.Mutex
	addr      common.Address
	principal *Principal
	frozen    bool
	epoch     Epoch
	notified  int
}

// NewVault creates a vault holding principal under addr.
func NewVault(addr common.Address, principal *Principal) *Vault {
	return &Vault{
		addr:      addr,
		principal: principal,
		epoch:     Epoch{Amount: fixedpoint.Zero()},
	}
}

func (v *Vault) Address() common.Address { return v.addr }

func (v *Vault) PrincipalBalance() *uint256.Int {
	return v.principal.BalanceOf(v.addr)
}

func (v *Vault) FreezeDeposits() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frozen = true
	return nil
}

func (v *Vault) UnfreezeDeposits() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frozen = false
	return nil
}

func (v *Vault) DepositsFrozen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frozen
}

// NotifyProfit replaces the current drip epoch.
func (v *Vault) NotifyProfit(amount *uint256.Int, startBlock, length uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.epoch = Epoch{Amount: amount.Clone(), StartBlock: startBlock, Length: length}
	v.notified++
	return nil
}

// Epoch returns the last seeded epoch and how many times one was seeded.
func (v *Vault) Epoch() (Epoch, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e := v.epoch
	e.Amount = e.Amount.Clone()
	return e, v.notified
}

// Deposit moves principal from a holder into the vault.
func (v *Vault) Deposit(holder common.Address, amount *uint256.Int) error {
	if v.DepositsFrozen() {
		return ErrDepositsFrozen
	}
	return v.principal.Transfer(holder, v.addr, amount)
}

// Checkpoint captures freeze and epoch state. Holdings are restored by the
// principal token's own checkpoint.
func (v *Vault) Checkpoint() func() {
	v.mu.Lock()
	frozen, epoch, notified := v.frozen, v.epoch, v.notified
	epoch.Amount = epoch.Amount.Clone()
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.frozen = frozen
		v.epoch = epoch
		v.notified = notified
	}
}

var (
	_ collab.Vault        = (*Vault)(nil)
	_ collab.Checkpointer = (*Vault)(nil)
)
