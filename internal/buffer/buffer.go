// Package buffer keeps the treasury's own principal holdings as a first-loss
// reserve sized against total principal supply.
package buffer

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/dispatch"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/state"
)

const (
	OpSetTargetFraction state.OpID = "buffer.setBufferTargetFraction"
	OpSetRenewalRate    state.OpID = "buffer.setBufferRenewalRate"
	OpTarget            state.OpID = "buffer.target"
	OpHeld              state.OpID = "buffer.held"
)

// Module is the buffer handler.
type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Name() string    { return "buffer" }
func (m *Module) Version() string { return "v1" }

func (m *Module) Operations() []dispatch.Operation {
	return []dispatch.Operation{
		{ID: OpSetTargetFraction, Access: dispatch.AccessAuthority},
		{ID: OpSetRenewalRate, Access: dispatch.AccessAuthority},
		{ID: OpTarget, Access: dispatch.AccessPublic},
		{ID: OpHeld, Access: dispatch.AccessPublic},
	}
}

func (m *Module) Handle(_ context.Context, env *dispatch.Env, call dispatch.Call) (any, error) {
	switch call.Op {
	case OpSetTargetFraction:
		args, err := dispatch.ArgsAs[dispatch.FractionArgs](call)
		if err != nil {
			return nil, err
		}
		if err := env.State.SetBufferTarget(args.Fraction); err != nil {
			return nil, err
		}
		env.Log.Info().Stringer("target", args.Fraction).Msg("buffer target fraction set")
		return nil, nil
	case OpSetRenewalRate:
		args, err := dispatch.ArgsAs[dispatch.FractionArgs](call)
		if err != nil {
			return nil, err
		}
		if err := env.State.SetBufferRenewal(args.Fraction); err != nil {
			return nil, err
		}
		env.Log.Info().Stringer("renewal", args.Fraction).Msg("buffer renewal rate set")
		return nil, nil
	case OpTarget:
		return Target(env)
	case OpHeld:
		return Held(env), nil
	}
	return nil, fmt.Errorf("%w: %q", dispatch.ErrUnsupportedOperation, call.Op)
}

// Target is total principal supply times the target fraction, in principal
// units. It is recomputed on every call.
func Target(env *dispatch.Env) (*uint256.Int, error) {
	t, err := env.State.Params().BufferTarget.Of(env.Collab.Principal.TotalSupply())
	if err != nil {
		return nil, fmt.Errorf("%w: buffer target: %w", state.ErrArithmetic, err)
	}
	return t, nil
}

// Held is the principal the treasury holds under its own address.
func Held(env *dispatch.Env) *uint256.Int {
	return env.Collab.Principal.BalanceOf(env.State.Treasury())
}

// TopUp mints part of profit into the buffer and returns how much of the
// profit it consumed, in reserve units. Nothing is minted once holdings reach
// the target. The mint is min(renewal share, gap) in principal units, so it
// closes the gap exactly; the consumed amount rounds up so the profit left for
// distribution never covers more principal than it backs.
func TopUp(env *dispatch.Env, profit *uint256.Int) (*uint256.Int, error) {
	profitP, err := fixedpoint.ToPrincipal(profit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", state.ErrArithmetic, err)
	}
	target, err := Target(env)
	if err != nil {
		return nil, err
	}
	held := Held(env)
	if !held.Lt(target) {
		return fixedpoint.Zero(), nil
	}
	gap := new(uint256.Int).Sub(target, held)
	candidate, err := env.State.Params().BufferRenewal.Of(profitP)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", state.ErrArithmetic, err)
	}
	mint := fixedpoint.Min(candidate, gap)
	if mint.IsZero() {
		return mint, nil
	}
	if err := env.Collab.Principal.Mint(env.State.Treasury(), mint); err != nil {
		return nil, fmt.Errorf("buffer top-up: %w", err)
	}
	env.Log.Debug().
		Str("minted", fixedpoint.Format(mint, fixedpoint.PrincipalDecimals)).
		Str("gap", fixedpoint.Format(gap, fixedpoint.PrincipalDecimals)).
		Msg("buffer topped up")
	return fixedpoint.ToReserveUp(mint), nil
}

// Slash absorbs loss, in reserve units, from the buffer and returns what it
// could not cover, in reserve units rounded down.
func Slash(env *dispatch.Env, loss *uint256.Int) (*uint256.Int, error) {
	lossP, err := fixedpoint.ToPrincipal(loss)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", state.ErrArithmetic, err)
	}
	_, remaining, err := SlashPrincipal(env, lossP)
	if err != nil {
		return nil, err
	}
	return fixedpoint.ToReserve(remaining), nil
}

// SlashPrincipal burns up to loss principal units from the buffer and returns
// the burned amount and the unabsorbed remainder, both in principal units.
// burned + remaining always equals loss.
func SlashPrincipal(env *dispatch.Env, loss *uint256.Int) (burned, remaining *uint256.Int, err error) {
	held := Held(env)
	burned = fixedpoint.Min(held, loss)
	remaining = new(uint256.Int).Sub(loss, burned)
	if burned.IsZero() {
		return burned, remaining, nil
	}
	if err := env.Collab.Principal.Burn(env.State.Treasury(), burned); err != nil {
		return nil, nil, fmt.Errorf("buffer slash: %w", err)
	}
	env.Log.Debug().
		Str("burned", fixedpoint.Format(burned, fixedpoint.PrincipalDecimals)).
		Str("remaining", fixedpoint.Format(remaining, fixedpoint.PrincipalDecimals)).
		Msg("buffer slashed")
	return burned, remaining, nil
}
