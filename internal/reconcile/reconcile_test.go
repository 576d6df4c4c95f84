package reconcile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/dispatch"
	"github.com/GoPolymarket/treasury/internal/state"
	"github.com/GoPolymarket/treasury/internal/testkit"
)

func report(t *testing.T, f *testkit.Fixture, balance *uint256.Int) *Outcome {
	t.Helper()
	out, err := Report(context.Background(), f.Env, balance)
	if err != nil {
		t.Fatalf("Report(%s): %v", balance.Dec(), err)
	}
	return out
}

func ratio(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

func TestReportScenarioD(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 100_000)

	out := report(t, f, testkit.ReserveUnits(1_000_000))

	if out.Kind != KindProfit {
		t.Fatalf("expected profit, got %s", out.Kind)
	}
	if !out.Fee.Eq(testkit.ReserveUnits(50_000)) {
		t.Fatalf("expected fee 50000, got %s", out.Fee.Dec())
	}
	// Fee mint lifts supply to 150,000 so the 2% target is 3,000.
	if !out.BufferTopUp.Eq(testkit.ReserveUnits(3_000)) {
		t.Fatalf("expected buffer top-up 3000, got %s", out.BufferTopUp.Dec())
	}
	if !out.Distributed.Eq(testkit.PrincipalUnits(947_000)) {
		t.Fatalf("expected 947000 distributed, got %s", out.Distributed.Dec())
	}
	if !out.PegRecovered.IsZero() {
		t.Fatalf("expected no peg recovery at par, got %s", out.PegRecovered.Dec())
	}
	if !f.Principal.BalanceOf(testkit.Warchest).Eq(testkit.PrincipalUnits(50_000)) {
		t.Fatalf("expected warchest to hold the fee")
	}
	if !f.Store.FeesAccrued.Eq(testkit.ReserveUnits(50_000)) {
		t.Fatalf("expected fees accrued 50000, got %s", f.Store.FeesAccrued.Dec())
	}
	if !f.Store.CustodianBalance.Eq(testkit.ReserveUnits(1_000_000)) {
		t.Fatalf("custodian balance not updated: %s", f.Store.CustodianBalance.Dec())
	}
	epoch, n := f.Vault.Epoch()
	if n != 1 || !epoch.Amount.Eq(testkit.PrincipalUnits(947_000)) || epoch.Length != 100 {
		t.Fatalf("unexpected vault epoch %+v after %d notifications", epoch, n)
	}
	if !f.Vault.PrincipalBalance().Eq(testkit.PrincipalUnits(947_000)) {
		t.Fatalf("expected vault to receive distribution, got %s", f.Vault.PrincipalBalance().Dec())
	}
}

func TestFeeIsFloorOfFraction(t *testing.T) {
	f := testkit.New(t)
	f.SeedBuffer(t, testkit.PrincipalUnits(1))

	out := report(t, f, uint256.NewInt(19))
	// 19 × 5% = 0.95, floored.
	if !out.Fee.IsZero() {
		t.Fatalf("expected zero fee, got %s", out.Fee.Dec())
	}
	out = report(t, f, uint256.NewInt(19+40))
	if out.Fee.Uint64() != 2 {
		t.Fatalf("expected fee 2, got %s", out.Fee.Dec())
	}
}

func TestRepeatedReportIsNoop(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 10_000)
	report(t, f, testkit.ReserveUnits(500))

	supply := f.Principal.TotalSupply()
	holders := f.Principal.Holders()
	remaining := f.Store.EpochProfitRemaining.Clone()
	_, notified := f.Vault.Epoch()

	out := report(t, f, testkit.ReserveUnits(500))
	if out.Kind != KindNone || out.Stage != StageNone {
		t.Fatalf("expected no-op, got %s %s", out.Kind, out.Stage)
	}
	if !f.Principal.TotalSupply().Eq(supply) || len(f.Principal.Holders()) != len(holders) {
		t.Fatal("no-op report changed principal balances")
	}
	for addr, bal := range holders {
		if !f.Principal.BalanceOf(addr).Eq(bal) {
			t.Fatalf("balance of %s changed", addr.Hex())
		}
	}
	if !f.Store.EpochProfitRemaining.Eq(remaining) {
		t.Fatal("no-op report changed the epoch")
	}
	if _, n := f.Vault.Epoch(); n != notified {
		t.Fatal("no-op report notified the vault")
	}
}

// Buffer 1,000 with a target of 500 absorbs a loss of 100.
func TestReportScenarioA(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 24_000)
	f.SeedBuffer(t, testkit.PrincipalUnits(1_000))
	f.Store.CustodianBalance = testkit.ReserveUnits(1_000)

	out := report(t, f, testkit.ReserveUnits(900))
	if out.Stage != StageBuffer {
		t.Fatalf("expected stage 1, got %s", out.Stage)
	}
	if !f.BufferHeld().Eq(testkit.PrincipalUnits(900)) {
		t.Fatalf("expected buffer 900, got %s", f.BufferHeld().Dec())
	}
	if f.Vault.DepositsFrozen() || f.Principal.Frozen() {
		t.Fatal("stage 1 must not freeze anything")
	}
}

// Buffer 100 and vault 2,000 against a loss of 1,000.
func TestReportScenarioB(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 2_000)
	f.StakeInVault(t, 2_000)
	f.SeedBuffer(t, testkit.PrincipalUnits(100))
	f.Store.CustodianBalance = testkit.ReserveUnits(5_000)

	out := report(t, f, testkit.ReserveUnits(4_000))
	if out.Stage != StageVault {
		t.Fatalf("expected stage 2, got %s", out.Stage)
	}
	if !f.BufferHeld().IsZero() {
		t.Fatalf("expected buffer burned, got %s", f.BufferHeld().Dec())
	}
	if !out.VaultBurned.Eq(testkit.PrincipalUnits(900)) {
		t.Fatalf("expected vault burn 900, got %s", out.VaultBurned.Dec())
	}
	if !f.Vault.PrincipalBalance().Eq(testkit.PrincipalUnits(1_100)) {
		t.Fatalf("expected vault 1100, got %s", f.Vault.PrincipalBalance().Dec())
	}
	if !f.Vault.DepositsFrozen() {
		t.Fatal("expected vault deposits frozen")
	}
	if f.Principal.Frozen() || !out.BackingReduction.IsZero() {
		t.Fatal("stage 3 must not trigger when the vault covers the loss")
	}
	if !f.Principal.BackingRatio().Eq(collab.WAD) {
		t.Fatalf("backing ratio moved: %s", f.Principal.BackingRatio().Dec())
	}
}

func TestReportFreezesVaultWhenBufferEmpty(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 1_000)
	f.StakeInVault(t, 1_000)
	f.Store.CustodianBalance = testkit.ReserveUnits(10)

	out := report(t, f, testkit.ReserveUnits(9))
	if out.Stage != StageVault || !f.Vault.DepositsFrozen() {
		t.Fatalf("expected stage 2 with frozen vault, got %s", out.Stage)
	}
	if !out.BufferBurned.IsZero() {
		t.Fatalf("expected empty buffer to burn nothing, got %s", out.BufferBurned.Dec())
	}
}

func TestReportStage3(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 2_000)
	f.StakeInVault(t, 500)
	f.SeedBuffer(t, testkit.PrincipalUnits(100))
	f.Store.CustodianBalance = testkit.ReserveUnits(1_000)

	out := report(t, f, fixedZero())
	if out.Stage != StageBacking {
		t.Fatalf("expected stage 3, got %s", out.Stage)
	}
	if !out.BackingReduction.Eq(testkit.PrincipalUnits(400)) {
		t.Fatalf("expected 400 uncovered, got %s", out.BackingReduction.Dec())
	}
	if !f.Vault.DepositsFrozen() || !f.Principal.Frozen() {
		t.Fatal("expected both freezes")
	}
	// 400 uncovered over the remaining 1,500 supply, rounded against holders.
	want := ratio("733333333333333333")
	if !f.Principal.BackingRatio().Eq(want) {
		t.Fatalf("expected ratio %s, got %s", want.Dec(), f.Principal.BackingRatio().Dec())
	}
	if !out.RatioAfter.Eq(want) || !out.RatioBefore.Eq(collab.WAD) {
		t.Fatalf("outcome ratios %s -> %s", out.RatioBefore.Dec(), out.RatioAfter.Dec())
	}
}

func TestReportStage3WithNoSupplyLeft(t *testing.T) {
	f := testkit.New(t)
	f.SeedBuffer(t, testkit.PrincipalUnits(10))
	f.Store.CustodianBalance = testkit.ReserveUnits(50)

	out := report(t, f, fixedZero())
	if out.Stage != StageBacking || !f.Principal.BackingRatio().IsZero() {
		t.Fatalf("expected ratio zeroed, stage %s ratio %s", out.Stage, f.Principal.BackingRatio().Dec())
	}
}

func TestLossConservationAndOrdering(t *testing.T) {
	cases := []struct {
		name         string
		buffer       uint64
		vault        uint64
		loss         uint64
		wantStage    Stage
		wantBurnedV  uint64
		wantBacking  uint64
		wantPrincipF bool
	}{
		{name: "buffer only", buffer: 500, vault: 500, loss: 200, wantStage: StageBuffer},
		{name: "buffer exact", buffer: 500, vault: 500, loss: 500, wantStage: StageBuffer},
		{name: "into vault", buffer: 500, vault: 500, loss: 700, wantStage: StageVault, wantBurnedV: 200},
		{name: "vault exact", buffer: 500, vault: 500, loss: 1_000, wantStage: StageVault, wantBurnedV: 500},
		{name: "backing", buffer: 500, vault: 500, loss: 1_300, wantStage: StageBacking, wantBurnedV: 500, wantBacking: 300, wantPrincipF: true},
		{name: "no buffer", buffer: 0, vault: 500, loss: 300, wantStage: StageVault, wantBurnedV: 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := testkit.New(t)
			f.Backed(t, 5_000)
			if tc.vault > 0 {
				f.StakeInVault(t, tc.vault)
			}
			if tc.buffer > 0 {
				f.SeedBuffer(t, testkit.PrincipalUnits(tc.buffer))
			}
			f.Store.CustodianBalance = testkit.ReserveUnits(10_000)
			bufferBefore := f.BufferHeld()
			vaultBefore := f.Vault.PrincipalBalance()

			out := report(t, f, testkit.ReserveUnits(10_000-tc.loss))

			sum := new(uint256.Int).Add(out.BufferBurned, out.VaultBurned)
			sum.Add(sum, out.BackingReduction)
			if !sum.Eq(testkit.PrincipalUnits(tc.loss)) {
				t.Fatalf("burned %s + %s + %s != loss", out.BufferBurned.Dec(), out.VaultBurned.Dec(), out.BackingReduction.Dec())
			}
			if out.BufferBurned.Gt(bufferBefore) || out.VaultBurned.Gt(vaultBefore) {
				t.Fatal("burned more than was held")
			}
			if !out.VaultBurned.IsZero() && !out.BufferBurned.Eq(bufferBefore) {
				t.Fatal("vault burned before buffer was exhausted")
			}
			if !out.BackingReduction.IsZero() && !out.VaultBurned.Eq(vaultBefore) {
				t.Fatal("backing reduced before vault was exhausted")
			}
			if out.Stage != tc.wantStage {
				t.Fatalf("expected %s, got %s", tc.wantStage, out.Stage)
			}
			if !out.VaultBurned.Eq(testkit.PrincipalUnits(tc.wantBurnedV)) {
				t.Fatalf("expected vault burn %d, got %s", tc.wantBurnedV, out.VaultBurned.Dec())
			}
			if !out.BackingReduction.Eq(testkit.PrincipalUnits(tc.wantBacking)) {
				t.Fatalf("expected backing reduction %d, got %s", tc.wantBacking, out.BackingReduction.Dec())
			}
			if f.Vault.DepositsFrozen() != (tc.wantStage >= StageVault) {
				t.Fatalf("vault freeze = %v at %s", f.Vault.DepositsFrozen(), out.Stage)
			}
			if f.Principal.Frozen() != tc.wantPrincipF {
				t.Fatalf("principal freeze = %v", f.Principal.Frozen())
			}
		})
	}
}

func TestFreezeSurvivesProfit(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 1_000)
	f.StakeInVault(t, 100)
	f.Store.CustodianBalance = testkit.ReserveUnits(1_000)

	report(t, f, testkit.ReserveUnits(800))
	if !f.Vault.DepositsFrozen() || !f.Principal.Frozen() {
		t.Fatal("expected both freezes after stage 3")
	}
	report(t, f, testkit.ReserveUnits(5_000))
	if !f.Vault.DepositsFrozen() || !f.Principal.Frozen() {
		t.Fatal("profit must not lift freezes")
	}

	m := New()
	ctx := context.Background()
	if _, err := m.Handle(ctx, f.Env, dispatch.Call{Op: OpUnfreezeVault}); err != nil {
		t.Fatalf("unfreeze vault: %v", err)
	}
	if _, err := m.Handle(ctx, f.Env, dispatch.Call{Op: OpUnfreezePrincipal}); err != nil {
		t.Fatalf("unfreeze principal: %v", err)
	}
	if f.Vault.DepositsFrozen() || f.Principal.Frozen() {
		t.Fatal("expected explicit unfreeze to clear both flags")
	}
}

func TestPartialPegRecovery(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 1_000)
	testkit.Must(t, f.Principal.SetBackingRatio(ratio("900000000000000000")))

	out := report(t, f, testkit.ReserveUnits(100))
	// fee 5 and top-up 19 leave 76 for a supply of 1,024 that is 102.4 short.
	if !out.PegRecovered.Eq(testkit.ReserveUnits(76)) {
		t.Fatalf("expected 76 recovered, got %s", out.PegRecovered.Dec())
	}
	if want := ratio("974218750000000000"); !f.Principal.BackingRatio().Eq(want) {
		t.Fatalf("expected ratio %s, got %s", want.Dec(), f.Principal.BackingRatio().Dec())
	}
	if !out.Distributed.IsZero() || !out.EpochAmount.IsZero() {
		t.Fatalf("expected nothing distributed, got %s", out.Distributed.Dec())
	}
	if _, n := f.Vault.Epoch(); n != 0 {
		t.Fatal("vault notified of an empty epoch")
	}
}

func TestPegRecoveryStopsAtPar(t *testing.T) {
	f := testkit.New(t)
	f.Backed(t, 1_000)
	testkit.Must(t, f.Principal.SetBackingRatio(ratio("990000000000000000")))

	out := report(t, f, testkit.ReserveUnits(100))
	// 1% of 1,024 is 10.24.
	if !out.PegRecovered.Eq(uint256.NewInt(10_240_000)) {
		t.Fatalf("expected 10.24 recovered, got %s", out.PegRecovered.Dec())
	}
	if !f.Principal.BackingRatio().Eq(collab.WAD) {
		t.Fatalf("expected par, got %s", f.Principal.BackingRatio().Dec())
	}
	if !out.Distributed.Eq(uint256.MustFromDecimal("65760000000000000000")) {
		t.Fatalf("expected 65.76 distributed, got %s", out.Distributed.Dec())
	}
}

func TestZeroPegRecoveryUnderSevereUndercollateralization(t *testing.T) {
	f := testkit.New(t)
	var logs bytes.Buffer
	f.Env.Log = zerolog.New(&logs)
	testkit.Must(t, f.Principal.Mint(testkit.User, testkit.PrincipalUnits(2_000)))
	testkit.Must(t, f.Principal.SetBackingRatio(ratio("500000000000000000")))
	f.Store.CustodianBalance = testkit.ReserveUnits(100)

	out := report(t, f, testkit.ReserveUnits(110))
	if !out.PegRecovered.IsZero() {
		t.Fatalf("expected zero recovery, got %s", out.PegRecovered.Dec())
	}
	if !f.Principal.BackingRatio().Eq(ratio("500000000000000000")) {
		t.Fatalf("ratio moved: %s", f.Principal.BackingRatio().Dec())
	}
	if out.Distributed.IsZero() {
		t.Fatal("expected the unrecoverable profit to be distributed")
	}
	if !strings.Contains(logs.String(), "no peg recovery possible") {
		t.Fatalf("expected a warning, logs: %s", logs.String())
	}
}

func TestEpochDripCarryover(t *testing.T) {
	p := testkit.DefaultParams()
	p.Fee = 0
	f := testkit.NewWithParams(t, p)
	f.Backed(t, 100_000)
	f.SeedBuffer(t, testkit.PrincipalUnits(10_000))

	report(t, f, testkit.ReserveUnits(1_000))
	if !f.Store.EpochProfitRemaining.Eq(testkit.PrincipalUnits(1_000)) {
		t.Fatalf("expected epoch 1000, got %s", f.Store.EpochProfitRemaining.Dec())
	}

	f.Env.Block = 50
	released, _ := ReleasedProfit(f.Env)
	undistributed, _ := UndistributedProfit(f.Env)
	if !released.Eq(testkit.PrincipalUnits(500)) || !undistributed.Eq(testkit.PrincipalUnits(500)) {
		t.Fatalf("expected half released, got %s / %s", released.Dec(), undistributed.Dec())
	}

	out := report(t, f, testkit.ReserveUnits(1_200))
	if !out.Carryover.Eq(testkit.PrincipalUnits(500)) {
		t.Fatalf("expected carryover 500, got %s", out.Carryover.Dec())
	}
	if !out.EpochAmount.Eq(testkit.PrincipalUnits(700)) || f.Store.EpochProfitStartBlock != 50 {
		t.Fatalf("expected epoch 700 from block 50, got %s from %d", out.EpochAmount.Dec(), f.Store.EpochProfitStartBlock)
	}
	epoch, n := f.Vault.Epoch()
	if n != 2 || !epoch.Amount.Eq(testkit.PrincipalUnits(700)) || epoch.StartBlock != 50 {
		t.Fatalf("unexpected vault epoch %+v (%d)", epoch, n)
	}

	f.Env.Block = 75
	released, _ = ReleasedProfit(f.Env)
	if !released.Eq(testkit.PrincipalUnits(175)) {
		t.Fatalf("expected 175 released, got %s", released.Dec())
	}
	f.Env.Block = 1_000
	undistributed, _ = UndistributedProfit(f.Env)
	if !undistributed.IsZero() {
		t.Fatalf("expected epoch fully released, got %s", undistributed.Dec())
	}
}

func TestVaultLossTrimsEpoch(t *testing.T) {
	p := testkit.DefaultParams()
	p.Fee = 0
	f := testkit.NewWithParams(t, p)
	f.Backed(t, 100_000)
	f.SeedBuffer(t, testkit.PrincipalUnits(10_000))
	f.Store.CustodianBalance = testkit.ReserveUnits(20_000)

	report(t, f, testkit.ReserveUnits(21_000))
	if !f.Vault.PrincipalBalance().Eq(testkit.PrincipalUnits(1_000)) {
		t.Fatalf("expected vault 1000 after profit, got %s", f.Vault.PrincipalBalance().Dec())
	}

	// 800 still undistributed; the buffer takes 10,000 and the vault 300.
	f.Env.Block = 20
	out := report(t, f, testkit.ReserveUnits(10_700))
	if out.Stage != StageVault || !out.VaultBurned.Eq(testkit.PrincipalUnits(300)) {
		t.Fatalf("expected stage 2 burning 300, got %s burning %s", out.Stage, out.VaultBurned.Dec())
	}
	if !out.EpochAmount.Eq(testkit.PrincipalUnits(500)) {
		t.Fatalf("expected epoch trimmed to 500, got %s", out.EpochAmount.Dec())
	}
	if !f.Store.EpochProfitRemaining.Eq(testkit.PrincipalUnits(500)) || f.Store.EpochProfitStartBlock != 20 {
		t.Fatalf("expected epoch 500 from block 20, got %s from %d",
			f.Store.EpochProfitRemaining.Dec(), f.Store.EpochProfitStartBlock)
	}

	next := report(t, f, testkit.ReserveUnits(10_701))
	if !next.Carryover.Eq(testkit.PrincipalUnits(500)) {
		t.Fatalf("expected carryover 500, got %s", next.Carryover.Dec())
	}
	if next.EpochAmount.Gt(f.Vault.PrincipalBalance()) {
		t.Fatalf("epoch %s exceeds vault holdings %s", next.EpochAmount.Dec(), f.Vault.PrincipalBalance().Dec())
	}
}

func TestVaultLossLargerThanDripClearsEpoch(t *testing.T) {
	p := testkit.DefaultParams()
	p.Fee = 0
	f := testkit.NewWithParams(t, p)
	f.Backed(t, 100_000)
	f.StakeInVault(t, 5_000)
	f.SeedBuffer(t, testkit.PrincipalUnits(10_000))
	f.Store.CustodianBalance = testkit.ReserveUnits(20_000)

	report(t, f, testkit.ReserveUnits(21_000))
	f.Env.Block = 50
	out := report(t, f, testkit.ReserveUnits(9_000))
	if !out.VaultBurned.Eq(testkit.PrincipalUnits(2_000)) {
		t.Fatalf("expected vault burn 2000, got %s", out.VaultBurned.Dec())
	}
	if !f.Store.EpochProfitRemaining.IsZero() || !out.EpochAmount.IsZero() {
		t.Fatalf("expected epoch cleared, got %s", f.Store.EpochProfitRemaining.Dec())
	}
	undistributed, _ := UndistributedProfit(f.Env)
	if !undistributed.IsZero() {
		t.Fatalf("expected nothing left to drip, got %s", undistributed.Dec())
	}
}

func TestBufferLossKeepsEpoch(t *testing.T) {
	p := testkit.DefaultParams()
	p.Fee = 0
	f := testkit.NewWithParams(t, p)
	f.Backed(t, 100_000)
	f.SeedBuffer(t, testkit.PrincipalUnits(10_000))
	f.Store.CustodianBalance = testkit.ReserveUnits(20_000)

	report(t, f, testkit.ReserveUnits(21_000))
	f.Env.Block = 20
	out := report(t, f, testkit.ReserveUnits(20_500))
	if out.Stage != StageBuffer {
		t.Fatalf("expected stage 1, got %s", out.Stage)
	}
	if !f.Store.EpochProfitRemaining.Eq(testkit.PrincipalUnits(1_000)) || f.Store.EpochProfitStartBlock != 0 {
		t.Fatalf("stage 1 must leave the epoch alone, got %s from %d",
			f.Store.EpochProfitRemaining.Dec(), f.Store.EpochProfitStartBlock)
	}
}

func newDispatcher(t *testing.T, f *testkit.Fixture) *dispatch.Dispatcher {
	t.Helper()
	d := dispatch.New(f.Store, f.Env.Collab)
	addr, err := d.Deploy(New())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if err := d.Install(testkit.Authority, addr); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return d
}

func TestOverflowLeavesNoTrace(t *testing.T) {
	p := testkit.DefaultParams()
	p.Fee = 0
	f := testkit.NewWithParams(t, p)
	f.Backed(t, 1_000)
	f.Store.CustodianBalance = testkit.ReserveUnits(10)
	d := newDispatcher(t, f)

	huge := new(uint256.Int).SetAllOne()
	_, err := d.Dispatch(context.Background(), dispatch.Call{
		Caller: testkit.Custodian,
		Op:     OpReport,
		Args:   ReportArgs{Balance: huge},
	})
	if !errors.Is(err, state.ErrArithmetic) {
		t.Fatalf("expected ErrArithmetic, got %v", err)
	}
	if !f.Store.CustodianBalance.Eq(testkit.ReserveUnits(10)) {
		t.Fatalf("custodian balance changed to %s", f.Store.CustodianBalance.Dec())
	}
	if !f.Principal.TotalSupply().Eq(testkit.PrincipalUnits(1_000)) {
		t.Fatalf("supply changed to %s", f.Principal.TotalSupply().Dec())
	}
}

func TestReportRequiresCustodian(t *testing.T) {
	f := testkit.New(t)
	d := newDispatcher(t, f)

	_, err := d.Dispatch(context.Background(), dispatch.Call{
		Caller: testkit.User,
		Op:     OpReport,
		Args:   ReportArgs{Balance: testkit.ReserveUnits(5)},
	})
	if !errors.Is(err, state.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if !f.Store.CustodianBalance.IsZero() {
		t.Fatal("denied report mutated state")
	}

	res, err := d.Dispatch(context.Background(), dispatch.Call{
		Caller: testkit.Custodian,
		Op:     OpReport,
		Args:   ReportArgs{Balance: testkit.ReserveUnits(5)},
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.(*Outcome).Kind != KindProfit {
		t.Fatalf("unexpected outcome %+v", res)
	}
}

func TestSetters(t *testing.T) {
	f := testkit.New(t)
	m := New()
	ctx := context.Background()

	if _, err := m.Handle(ctx, f.Env, dispatch.Call{Op: OpSetFeeFraction, Args: dispatch.FractionArgs{Fraction: 300_000}}); !errors.Is(err, state.ErrOutOfBounds) {
		t.Fatalf("expected fee above cap rejected, got %v", err)
	}
	if _, err := m.Handle(ctx, f.Env, dispatch.Call{Op: OpSetFeeFraction, Args: dispatch.FractionArgs{Fraction: 100_000}}); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if _, err := m.Handle(ctx, f.Env, dispatch.Call{Op: OpSetWarchest, Args: dispatch.AddressArgs{}}); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("expected zero warchest rejected, got %v", err)
	}
	if _, err := m.Handle(ctx, f.Env, dispatch.Call{Op: OpSetWarchest, Args: dispatch.AddressArgs{Address: testkit.User}}); err != nil {
		t.Fatalf("set warchest: %v", err)
	}

	report(t, f, testkit.ReserveUnits(100))
	if !f.Principal.BalanceOf(testkit.User).Eq(testkit.PrincipalUnits(10)) {
		t.Fatalf("expected new warchest to receive a 10%% fee, got %s", f.Principal.BalanceOf(testkit.User).Dec())
	}
	got, err := m.Handle(ctx, f.Env, dispatch.Call{Op: OpCustodianBalance})
	if err != nil || !got.(*uint256.Int).Eq(testkit.ReserveUnits(100)) {
		t.Fatalf("custodian balance view = %v, %v", got, err)
	}
}

func fixedZero() *uint256.Int { return new(uint256.Int) }
