// Package reconcile turns the custodian's reported balance into either a
// profit distribution or a staged loss absorption.
//
// Profit is split into a fee for the warchest, a buffer top-up, peg recovery
// while the backing ratio is below par, and a linear-drip epoch for the
// vault. Losses are absorbed by the buffer first, then by the vault's own
// principal (freezing vault deposits), and finally by lowering the backing
// ratio and freezing the principal token.
package reconcile

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/buffer"
	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/dispatch"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/state"
)

const (
	OpReport              state.OpID = "reconcile.report"
	OpSetFeeFraction      state.OpID = "reconcile.setFeeFraction"
	OpSetWarchest         state.OpID = "reconcile.setWarchest"
	OpUnfreezeVault       state.OpID = "reconcile.unfreezeVault"
	OpUnfreezePrincipal   state.OpID = "reconcile.unfreezePrincipal"
	OpCustodianBalance    state.OpID = "reconcile.custodianBalance"
	OpReleasedProfit      state.OpID = "reconcile.releasedProfit"
	OpUndistributedProfit state.OpID = "reconcile.undistributedProfit"
)

// ReportArgs carries the custodian's self-reported total balance in reserve
// units.
type ReportArgs struct {
	Balance *uint256.Int
}

// Kind classifies a report by the sign of its delta.
type Kind string

const (
	KindNone   Kind = "none"
	KindProfit Kind = "profit"
	KindLoss   Kind = "loss"
)

// Stage is how far a loss travelled down the absorption waterfall.
type Stage int

const (
	StageNone Stage = iota
	// StageBuffer: the buffer covered the whole loss.
	StageBuffer
	// StageVault: vault principal was burned and vault deposits frozen.
	StageVault
	// StageBacking: the backing ratio was lowered and the token frozen.
	StageBacking
)

func (s Stage) String() string {
	switch s {
	case StageBuffer:
		return "stage1-buffer"
	case StageVault:
		return "stage2-vault"
	case StageBacking:
		return "stage3-backing"
	default:
		return "none"
	}
}

// Outcome describes what a report did. Reserve-unit fields: Previous,
// Reported, Delta, Fee, BufferTopUp, PegRecovered. Principal-unit fields:
// Distributed, Carryover, EpochAmount, BufferBurned, VaultBurned,
// BackingReduction. Ratios are in WAD. On a loss that burns vault principal,
// EpochAmount is the drip left after trimming.
type Outcome struct {
	Kind     Kind
	Previous *uint256.Int
	Reported *uint256.Int
	Delta    *uint256.Int

	Fee          *uint256.Int
	BufferTopUp  *uint256.Int
	PegRecovered *uint256.Int
	Distributed  *uint256.Int
	Carryover    *uint256.Int
	EpochAmount  *uint256.Int

	BufferBurned     *uint256.Int
	VaultBurned      *uint256.Int
	BackingReduction *uint256.Int
	Stage            Stage
	VaultFrozen      bool
	PrincipalFrozen  bool

	RatioBefore *uint256.Int
	RatioAfter  *uint256.Int
	Block       uint64
}

func newOutcome(prev, reported *uint256.Int, block uint64) *Outcome {
	return &Outcome{
		Kind:             KindNone,
		Previous:         prev.Clone(),
		Reported:         reported.Clone(),
		Delta:            fixedpoint.Zero(),
		Fee:              fixedpoint.Zero(),
		BufferTopUp:      fixedpoint.Zero(),
		PegRecovered:     fixedpoint.Zero(),
		Distributed:      fixedpoint.Zero(),
		Carryover:        fixedpoint.Zero(),
		EpochAmount:      fixedpoint.Zero(),
		BufferBurned:     fixedpoint.Zero(),
		VaultBurned:      fixedpoint.Zero(),
		BackingReduction: fixedpoint.Zero(),
		Block:            block,
	}
}

// Module is the reconciliation handler.
type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Name() string    { return "reconcile" }
func (m *Module) Version() string { return "v1" }

func (m *Module) Operations() []dispatch.Operation {
	return []dispatch.Operation{
		{ID: OpReport, Access: dispatch.AccessCustodian},
		{ID: OpSetFeeFraction, Access: dispatch.AccessAuthority},
		{ID: OpSetWarchest, Access: dispatch.AccessAuthority},
		{ID: OpUnfreezeVault, Access: dispatch.AccessAuthority},
		{ID: OpUnfreezePrincipal, Access: dispatch.AccessAuthority},
		{ID: OpCustodianBalance, Access: dispatch.AccessPublic},
		{ID: OpReleasedProfit, Access: dispatch.AccessPublic},
		{ID: OpUndistributedProfit, Access: dispatch.AccessPublic},
	}
}

func (m *Module) Handle(ctx context.Context, env *dispatch.Env, call dispatch.Call) (any, error) {
	switch call.Op {
	case OpReport:
		args, err := dispatch.ArgsAs[ReportArgs](call)
		if err != nil {
			return nil, err
		}
		if args.Balance == nil {
			return nil, fmt.Errorf("%w: %s requires a balance", dispatch.ErrBadArgs, call.Op)
		}
		return Report(ctx, env, args.Balance)
	case OpSetFeeFraction:
		args, err := dispatch.ArgsAs[dispatch.FractionArgs](call)
		if err != nil {
			return nil, err
		}
		if err := env.State.SetFee(args.Fraction); err != nil {
			return nil, err
		}
		env.Log.Info().Stringer("fee", args.Fraction).Msg("fee fraction set")
		return nil, nil
	case OpSetWarchest:
		args, err := dispatch.ArgsAs[dispatch.AddressArgs](call)
		if err != nil {
			return nil, err
		}
		if args.Address == (common.Address{}) {
			return nil, fmt.Errorf("%w: warchest", state.ErrNotFound)
		}
		env.State.Warchest = args.Address
		env.Log.Info().Str("warchest", args.Address.Hex()).Msg("warchest set")
		return nil, nil
	case OpUnfreezeVault:
		if err := env.Collab.Vault.UnfreezeDeposits(); err != nil {
			return nil, fmt.Errorf("unfreeze vault: %w", err)
		}
		env.Log.Warn().Msg("vault deposits unfrozen")
		return nil, nil
	case OpUnfreezePrincipal:
		if err := env.Collab.Principal.Unfreeze(); err != nil {
			return nil, fmt.Errorf("unfreeze principal: %w", err)
		}
		env.Log.Warn().Msg("principal token unfrozen")
		return nil, nil
	case OpCustodianBalance:
		return env.State.CustodianBalance.Clone(), nil
	case OpReleasedProfit:
		return ReleasedProfit(env)
	case OpUndistributedProfit:
		return UndistributedProfit(env)
	}
	return nil, fmt.Errorf("%w: %q", dispatch.ErrUnsupportedOperation, call.Op)
}

// Report reconciles the custodian's new total balance against the last known
// one. A repeated report of the same balance is a successful no-op.
func Report(ctx context.Context, env *dispatch.Env, balance *uint256.Int) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prev := env.State.CustodianBalance
	out := newOutcome(prev, balance, env.Block)
	out.RatioBefore = env.Collab.Principal.BackingRatio()

	var err error
	switch balance.Cmp(prev) {
	case 0:
		env.State.CustodianBalance = balance.Clone()
	case 1:
		out.Kind = KindProfit
		out.Delta = new(uint256.Int).Sub(balance, prev)
		err = profit(env, out)
	default:
		out.Kind = KindLoss
		out.Delta = new(uint256.Int).Sub(prev, balance)
		err = loss(env, out)
	}
	if err != nil {
		return nil, err
	}
	out.RatioAfter = env.Collab.Principal.BackingRatio()
	logOutcome(env, out)
	return out, nil
}

func profit(env *dispatch.Env, out *Outcome) error {
	fee, err := env.State.Params().Fee.Of(out.Delta)
	if err != nil {
		return arith("fee", err)
	}
	feeP, err := fixedpoint.ToPrincipal(fee)
	if err != nil {
		return arith("fee", err)
	}
	accrued, err := fixedpoint.Add(env.State.FeesAccrued, fee)
	if err != nil {
		return arith("fees accrued", err)
	}
	carry, err := UndistributedProfit(env)
	if err != nil {
		return err
	}
	net := new(uint256.Int).Sub(out.Delta, fee)

	env.State.CustodianBalance = out.Reported.Clone()
	env.State.FeesAccrued = accrued
	out.Fee = fee
	out.Carryover = carry

	if !feeP.IsZero() {
		if err := env.Collab.Principal.Mint(env.State.Warchest, feeP); err != nil {
			return fmt.Errorf("mint fee: %w", err)
		}
	}

	used, err := buffer.TopUp(env, net)
	if err != nil {
		return err
	}
	out.BufferTopUp = used
	remaining := new(uint256.Int).Sub(net, used)

	recovered, err := recoverPeg(env, remaining)
	if err != nil {
		return err
	}
	out.PegRecovered = recovered
	remaining.Sub(remaining, recovered)

	distP, err := fixedpoint.ToPrincipal(remaining)
	if err != nil {
		return arith("distribution", err)
	}
	total, err := fixedpoint.Add(distP, carry)
	if err != nil {
		return arith("epoch", err)
	}
	out.Distributed = distP
	out.EpochAmount = total

	env.State.EpochProfitRemaining = total.Clone()
	env.State.EpochProfitStartBlock = env.Block

	if !distP.IsZero() {
		if err := env.Collab.Principal.Mint(env.State.Vault(), distP); err != nil {
			return fmt.Errorf("mint distribution: %w", err)
		}
	}
	if !total.IsZero() {
		if err := env.Collab.Vault.NotifyProfit(total, env.Block, env.State.Params().EpochLength); err != nil {
			return fmt.Errorf("notify vault: %w", err)
		}
	}
	return nil
}

// recoverPeg raises a below-par backing ratio using up to available reserve
// units of profit and returns how much it used, in whole reserve units. The
// recovery is capped by the deficit to par and by what the treasury's net
// deposits can actually back, so it can be zero.
func recoverPeg(env *dispatch.Env, available *uint256.Int) (*uint256.Int, error) {
	ratio := env.Collab.Principal.BackingRatio()
	if !ratio.Lt(collab.WAD) {
		return fixedpoint.Zero(), nil
	}
	supply := env.Collab.Principal.TotalSupply()
	if supply.IsZero() || available.IsZero() {
		return fixedpoint.Zero(), nil
	}

	deficit, err := fixedpoint.MulDivUp(supply, new(uint256.Int).Sub(collab.WAD, ratio), collab.WAD)
	if err != nil {
		return nil, arith("peg deficit", err)
	}
	claimed, err := fixedpoint.MulDivUp(supply, ratio, collab.WAD)
	if err != nil {
		return nil, arith("peg claim", err)
	}
	deposits, err := fixedpoint.Add(env.Collab.Reserve.BalanceOf(env.State.Treasury()), env.State.CustodianBalance)
	if err != nil {
		return nil, arith("net deposits", err)
	}
	backing, err := fixedpoint.ToPrincipal(deposits)
	if err != nil {
		return nil, arith("net deposits", err)
	}
	headroom := fixedpoint.Zero()
	if backing.Gt(claimed) {
		headroom.Sub(backing, claimed)
	}
	availableP, err := fixedpoint.ToPrincipal(available)
	if err != nil {
		return nil, arith("peg recovery", err)
	}

	used := fixedpoint.ToReserve(fixedpoint.Min(fixedpoint.Min(availableP, deficit), headroom))
	if used.IsZero() {
		env.Log.Warn().
			Str("ratio", fixedpoint.Format(ratio, 18)).
			Str("headroom", fixedpoint.Format(headroom, fixedpoint.PrincipalDecimals)).
			Msg("backing ratio below par but no peg recovery possible")
		return used, nil
	}

	step, err := fixedpoint.MulDiv(new(uint256.Int).Mul(used, fixedpoint.Scale), collab.WAD, supply)
	if err != nil {
		return nil, arith("peg recovery", err)
	}
	next := new(uint256.Int).Add(ratio, step)
	if next.Gt(collab.WAD) {
		next.Set(collab.WAD)
	}
	if err := env.Collab.Principal.SetBackingRatio(next); err != nil {
		return nil, fmt.Errorf("set backing ratio: %w", err)
	}
	return used, nil
}

func loss(env *dispatch.Env, out *Outcome) error {
	lossP, err := fixedpoint.ToPrincipal(out.Delta)
	if err != nil {
		return arith("loss", err)
	}
	env.State.CustodianBalance = out.Reported.Clone()

	burned, remaining, err := buffer.SlashPrincipal(env, lossP)
	if err != nil {
		return err
	}
	out.BufferBurned = burned
	out.Stage = StageBuffer
	if remaining.IsZero() {
		return nil
	}

	vault := env.Collab.Vault
	held := vault.PrincipalBalance()
	vaultBurned := fixedpoint.Min(remaining, held)
	if !vaultBurned.IsZero() {
		left, err := trimEpoch(env, vaultBurned, new(uint256.Int).Sub(held, vaultBurned))
		if err != nil {
			return err
		}
		out.EpochAmount = left
		if err := env.Collab.Principal.Burn(env.State.Vault(), vaultBurned); err != nil {
			return fmt.Errorf("burn vault principal: %w", err)
		}
	}
	if err := vault.FreezeDeposits(); err != nil {
		return fmt.Errorf("freeze vault deposits: %w", err)
	}
	remaining.Sub(remaining, vaultBurned)
	out.VaultBurned = vaultBurned
	out.Stage = StageVault
	out.VaultFrozen = true
	if remaining.IsZero() {
		return nil
	}

	principal := env.Collab.Principal
	ratio := principal.BackingRatio()
	next := fixedpoint.Zero()
	if supply := principal.TotalSupply(); !supply.IsZero() {
		reduction, err := fixedpoint.MulDivUp(remaining, collab.WAD, supply)
		if err != nil {
			return arith("backing reduction", err)
		}
		if ratio.Gt(reduction) {
			next.Sub(ratio, reduction)
		}
	}
	if err := principal.SetBackingRatio(next); err != nil {
		return fmt.Errorf("set backing ratio: %w", err)
	}
	if err := principal.Freeze(); err != nil {
		return fmt.Errorf("freeze principal: %w", err)
	}
	out.BackingReduction = remaining
	out.Stage = StageBacking
	out.PrincipalFrozen = true
	return nil
}

// trimEpoch shrinks the undistributed drip by the vault principal a loss
// burned, capped at what the vault will still hold, and restarts what is left
// from the current block. It returns the new epoch amount.
func trimEpoch(env *dispatch.Env, burned, vaultLeft *uint256.Int) (*uint256.Int, error) {
	undistributed, err := UndistributedProfit(env)
	if err != nil {
		return nil, err
	}
	left := fixedpoint.Zero()
	if undistributed.Gt(burned) {
		left.Sub(undistributed, burned)
	}
	left = fixedpoint.Min(left, vaultLeft)
	env.State.EpochProfitRemaining = left.Clone()
	env.State.EpochProfitStartBlock = env.Block
	return left, nil
}

// ReleasedProfit is the part of the current epoch that has dripped out by
// the current block, in principal units.
func ReleasedProfit(env *dispatch.Env) (*uint256.Int, error) {
	length := env.State.Params().EpochLength
	elapsed := uint64(0)
	if env.Block > env.State.EpochProfitStartBlock {
		elapsed = min(env.Block-env.State.EpochProfitStartBlock, length)
	}
	released, err := fixedpoint.MulDiv(env.State.EpochProfitRemaining, uint256.NewInt(elapsed), uint256.NewInt(length))
	if err != nil {
		return nil, arith("released profit", err)
	}
	return released, nil
}

// UndistributedProfit is the part of the current epoch still to drip out.
func UndistributedProfit(env *dispatch.Env) (*uint256.Int, error) {
	released, err := ReleasedProfit(env)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Sub(env.State.EpochProfitRemaining, released), nil
}

func logOutcome(env *dispatch.Env, out *Outcome) {
	switch out.Kind {
	case KindNone:
		env.Log.Debug().Msg("report unchanged")
	case KindProfit:
		env.Log.Info().
			Str("profit", fixedpoint.Format(out.Delta, fixedpoint.ReserveDecimals)).
			Str("fee", fixedpoint.Format(out.Fee, fixedpoint.ReserveDecimals)).
			Str("buffer_top_up", fixedpoint.Format(out.BufferTopUp, fixedpoint.ReserveDecimals)).
			Str("peg_recovered", fixedpoint.Format(out.PegRecovered, fixedpoint.ReserveDecimals)).
			Str("epoch_amount", fixedpoint.Format(out.EpochAmount, fixedpoint.PrincipalDecimals)).
			Uint64("block", out.Block).
			Msg("profit reconciled")
	case KindLoss:
		ev := env.Log.Info()
		if out.Stage > StageBuffer {
			ev = env.Log.Warn()
		}
		ev.Str("loss", fixedpoint.Format(out.Delta, fixedpoint.ReserveDecimals)).
			Str("buffer_burned", fixedpoint.Format(out.BufferBurned, fixedpoint.PrincipalDecimals)).
			Str("vault_burned", fixedpoint.Format(out.VaultBurned, fixedpoint.PrincipalDecimals)).
			Str("backing_reduction", fixedpoint.Format(out.BackingReduction, fixedpoint.PrincipalDecimals)).
			Stringer("stage", out.Stage).
			Uint64("block", out.Block).
			Msg("loss absorbed")
	}
}

func arith(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", state.ErrArithmetic, what, err)
}
