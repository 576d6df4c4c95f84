// Package allocation moves reserve between the treasury and the custodian
// while keeping the custodian's share under the leverage ceiling.
package allocation

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/dispatch"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/state"
)

const (
	OpSendToCustodian     state.OpID = "allocation.sendToCustodian"
	OpRecallFromCustodian state.OpID = "allocation.recallFromCustodian"
	OpSetCustodian        state.OpID = "allocation.setCustodian"
	OpSetLeverageFraction state.OpID = "allocation.setLeverageFraction"
	OpLeverageCeiling     state.OpID = "allocation.leverageCeiling"
	OpNetDeposits         state.OpID = "allocation.netDeposits"
)

// ErrLeverageExceeded is returned when an allocation would put the custodian
// above the leverage ceiling.
var ErrLeverageExceeded = fmt.Errorf("%w: leverage ceiling", state.ErrExceeded)

// Module is the allocation handler.
type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Name() string    { return "allocation" }
func (m *Module) Version() string { return "v1" }

func (m *Module) Operations() []dispatch.Operation {
	return []dispatch.Operation{
		{ID: OpSendToCustodian, Access: dispatch.AccessCustodian},
		{ID: OpRecallFromCustodian, Access: dispatch.AccessCustodian},
		{ID: OpSetCustodian, Access: dispatch.AccessAuthority},
		{ID: OpSetLeverageFraction, Access: dispatch.AccessAuthority},
		{ID: OpLeverageCeiling, Access: dispatch.AccessPublic},
		{ID: OpNetDeposits, Access: dispatch.AccessPublic},
	}
}

func (m *Module) Handle(ctx context.Context, env *dispatch.Env, call dispatch.Call) (any, error) {
	switch call.Op {
	case OpSendToCustodian:
		amount, err := dispatch.Amount(call)
		if err != nil {
			return nil, err
		}
		return nil, SendToCustodian(ctx, env, amount)
	case OpRecallFromCustodian:
		amount, err := dispatch.Amount(call)
		if err != nil {
			return nil, err
		}
		return nil, RecallFromCustodian(ctx, env, amount)
	case OpSetCustodian:
		args, err := dispatch.ArgsAs[dispatch.AddressArgs](call)
		if err != nil {
			return nil, err
		}
		env.State.Custodian = args.Address
		env.Log.Info().Str("custodian", args.Address.Hex()).Msg("custodian set")
		return nil, nil
	case OpSetLeverageFraction:
		args, err := dispatch.ArgsAs[dispatch.FractionArgs](call)
		if err != nil {
			return nil, err
		}
		if err := env.State.SetLeverage(args.Fraction); err != nil {
			return nil, err
		}
		env.Log.Info().Stringer("leverage", args.Fraction).Msg("leverage fraction set")
		return nil, nil
	case OpLeverageCeiling:
		return LeverageCeiling(env)
	case OpNetDeposits:
		return NetDeposits(env)
	}
	return nil, fmt.Errorf("%w: %q", dispatch.ErrUnsupportedOperation, call.Op)
}

// LeverageCeiling is the most reserve the custodian may hold: the vault's
// principal holdings times the leverage fraction, in reserve units. It is
// recomputed on every call.
func LeverageCeiling(env *dispatch.Env) (*uint256.Int, error) {
	held := env.Collab.Vault.PrincipalBalance()
	ceilingP, err := env.State.Params().Leverage.Of(held)
	if err != nil {
		return nil, arith(err)
	}
	return fixedpoint.ToReserve(ceilingP), nil
}

// WithinLeverage reports whether amount fits under the ceiling. A zero amount
// always fits.
func WithinLeverage(env *dispatch.Env, amount *uint256.Int) (bool, error) {
	if amount.IsZero() {
		return true, nil
	}
	ceiling, err := LeverageCeiling(env)
	if err != nil {
		return false, err
	}
	return !amount.Gt(ceiling), nil
}

// NetDeposits is the treasury's own reserve plus what the custodian holds.
func NetDeposits(env *dispatch.Env) (*uint256.Int, error) {
	own := env.Collab.Reserve.BalanceOf(env.State.Treasury())
	total, err := fixedpoint.Add(own, env.State.CustodianBalance)
	if err != nil {
		return nil, arith(err)
	}
	return total, nil
}

// SendToCustodian hands amount of reserve to the custodian.
func SendToCustodian(ctx context.Context, env *dispatch.Env, amount *uint256.Int) error {
	if env.Collab.Principal.Frozen() {
		return fmt.Errorf("%w: principal token is frozen", state.ErrFrozen)
	}
	custodian := env.State.Custodian
	next, err := fixedpoint.Add(env.State.CustodianBalance, amount)
	if err != nil {
		return arith(err)
	}
	ok, err := WithinLeverage(env, next)
	if err != nil {
		return err
	}
	if !ok {
		ceiling, _ := LeverageCeiling(env)
		return fmt.Errorf("%w: %s + %s > %s", ErrLeverageExceeded,
			fixedpoint.Format(env.State.CustodianBalance, fixedpoint.ReserveDecimals),
			fixedpoint.Format(amount, fixedpoint.ReserveDecimals),
			fixedpoint.Format(ceiling, fixedpoint.ReserveDecimals))
	}

	env.State.CustodianBalance = next

	if err := env.Collab.Reserve.Transfer(env.State.Treasury(), custodian, amount); err != nil {
		return fmt.Errorf("transfer to custodian: %w", err)
	}
	if err := env.Collab.Custodian.Deposit(ctx, amount); err != nil {
		return fmt.Errorf("custodian deposit notification: %w", err)
	}
	env.Log.Info().
		Str("amount", fixedpoint.Format(amount, fixedpoint.ReserveDecimals)).
		Str("custodian_balance", fixedpoint.Format(next, fixedpoint.ReserveDecimals)).
		Msg("sent to custodian")
	return nil
}

// RecallFromCustodian pulls amount of reserve back into the treasury.
func RecallFromCustodian(ctx context.Context, env *dispatch.Env, amount *uint256.Int) error {
	custodian := env.State.Custodian
	next, err := fixedpoint.Sub(env.State.CustodianBalance, amount)
	if err != nil {
		return arith(fmt.Errorf("recall %s exceeds custodian balance %s: %w",
			fixedpoint.Format(amount, fixedpoint.ReserveDecimals),
			fixedpoint.Format(env.State.CustodianBalance, fixedpoint.ReserveDecimals), err))
	}

	env.State.CustodianBalance = next

	if err := env.Collab.Reserve.Transfer(custodian, env.State.Treasury(), amount); err != nil {
		return fmt.Errorf("transfer from custodian: %w", err)
	}
	if err := env.Collab.Custodian.Withdraw(ctx, amount); err != nil {
		return fmt.Errorf("custodian withdraw notification: %w", err)
	}
	env.Log.Info().
		Str("amount", fixedpoint.Format(amount, fixedpoint.ReserveDecimals)).
		Str("custodian_balance", fixedpoint.Format(next, fixedpoint.ReserveDecimals)).
		Msg("recalled from custodian")
	return nil
}

func arith(err error) error {
	return fmt.Errorf("%w: %w", state.ErrArithmetic, err)
}
