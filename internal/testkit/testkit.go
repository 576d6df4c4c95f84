// Package testkit builds a shared state store wired to paper collaborators
// for module tests.
package testkit

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/dispatch"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/ledger"
	"github.com/GoPolymarket/treasury/internal/state"
)

var (
	Treasury  = common.HexToAddress("0x7100000000000000000000000000000000000001")
	Reserve   = common.HexToAddress("0x7100000000000000000000000000000000000002")
	Principal = common.HexToAddress("0x7100000000000000000000000000000000000003")
	Vault     = common.HexToAddress("0x7100000000000000000000000000000000000004")
	Authority = common.HexToAddress("0x7100000000000000000000000000000000000005")
	Warchest  = common.HexToAddress("0x7100000000000000000000000000000000000006")
	Custodian = common.HexToAddress("0x7100000000000000000000000000000000000007")
	User      = common.HexToAddress("0x7100000000000000000000000000000000000008")
)

// Fixture is a fully wired environment.
type Fixture struct {
	Store     *state.Store
	Reserve   *ledger.Token
	Principal *ledger.Principal
	Vault     *ledger.Vault
	Custodian *ledger.Custodian
	Env       *dispatch.Env
}

// DefaultParams are 5% fee, 10% leverage, 2% buffer target, 20% renewal and
// a 100 block epoch.
func DefaultParams() state.Params {
	return state.Params{
		Fee:           50_000,
		Leverage:      100_000,
		BufferTarget:  20_000,
		BufferRenewal: 200_000,
		EpochLength:   100,
	}
}

// New builds a fixture with DefaultParams.
func New(t testing.TB) *Fixture {
	t.Helper()
	return NewWithParams(t, DefaultParams())
}

// NewWithParams builds a fixture with the given params and default bounds.
func NewWithParams(t testing.TB, p state.Params) *Fixture {
	t.Helper()
	store, err := state.New(state.Init{
		Treasury:       Treasury,
		ReserveAsset:   Reserve,
		PrincipalToken: Principal,
		Vault:          Vault,
		Authority:      Authority,
		Warchest:       Warchest,
		Custodian:      Custodian,
		Params:         p,
		Bounds:         state.DefaultBounds(),
	})
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	reserve := ledger.NewToken("USDC", fixedpoint.ReserveDecimals)
	principal := ledger.NewPrincipal("BASE")
	vault := ledger.NewVault(Vault, principal)
	custodian := ledger.NewCustodian(Custodian, reserve)

	return &Fixture{
		Store:     store,
		Reserve:   reserve,
		Principal: principal,
		Vault:     vault,
		Custodian: custodian,
		Env: &dispatch.Env{
			State:  store,
			Collab: collab.Set{Reserve: reserve, Principal: principal, Vault: vault, Custodian: custodian},
			Log:    zerolog.Nop(),
		},
	}
}

// ReserveUnits returns whole reserve tokens in smallest units.
func ReserveUnits(n uint64) *uint256.Int {
	return fixedpoint.Units(n, fixedpoint.ReserveDecimals)
}

// PrincipalUnits returns whole principal tokens in smallest units.
func PrincipalUnits(n uint64) *uint256.Int {
	return fixedpoint.Units(n, fixedpoint.PrincipalDecimals)
}

// Must fails the test on err.
func Must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// Backed mints supply principal to the user and the same value of reserve
// to the treasury, so the protocol starts fully collateralized.
func (f *Fixture) Backed(t testing.TB, wholeTokens uint64) {
	t.Helper()
	Must(t, f.Principal.Mint(User, PrincipalUnits(wholeTokens)))
	Must(t, f.Reserve.Mint(Treasury, ReserveUnits(wholeTokens)))
}

// StakeInVault moves principal from the user into the vault.
func (f *Fixture) StakeInVault(t testing.TB, wholeTokens uint64) {
	t.Helper()
	Must(t, f.Vault.Deposit(User, PrincipalUnits(wholeTokens)))
}

// SeedBuffer mints principal straight into the treasury buffer.
func (f *Fixture) SeedBuffer(t testing.TB, amount *uint256.Int) {
	t.Helper()
	Must(t, f.Principal.Mint(Treasury, amount))
}

// BufferHeld is the treasury's principal holdings.
func (f *Fixture) BufferHeld() *uint256.Int {
	return f.Principal.BalanceOf(Treasury)
}
