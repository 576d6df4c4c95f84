// Package treasury assembles the dispatcher and the allocation, buffer and
// reconciliation modules into a single typed API.
package treasury

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/GoPolymarket/treasury/internal/allocation"
	"github.com/GoPolymarket/treasury/internal/buffer"
	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/dispatch"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/reconcile"
	"github.com/GoPolymarket/treasury/internal/state"
)

// Treasury is a running treasury instance.
type Treasury struct {
	d       *dispatch.Dispatcher
	onEvent []func(context.Context, *reconcile.Outcome)
}

type options struct {
	log     zerolog.Logger
	blocks  func() uint64
	onEvent []func(context.Context, *reconcile.Outcome)
}

// Option configures New.
type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBlockSource sets where the current block height comes from.
func WithBlockSource(f func() uint64) Option {
	return func(o *options) { o.blocks = f }
}

// WithOutcomeHook registers fn to run after every committed report that
// changed the custodian balance. Hooks run outside the rollback envelope.
func WithOutcomeHook(fn func(context.Context, *reconcile.Outcome)) Option {
	return func(o *options) {
		if fn != nil {
			o.onEvent = append(o.onEvent, fn)
		}
	}
}

// Modules returns the handlers a treasury installs at startup.
func Modules() []dispatch.Handler {
	return []dispatch.Handler{allocation.New(), buffer.New(), reconcile.New()}
}

// New creates the shared state, deploys the built-in modules and registers
// every operation they serve on behalf of the authority.
func New(in state.Init, set collab.Set, opts ...Option) (*Treasury, error) {
	if set.Reserve == nil || set.Principal == nil || set.Vault == nil || set.Custodian == nil {
		return nil, fmt.Errorf("%w: collaborator set is incomplete", state.ErrNotFound)
	}
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	store, err := state.New(in)
	if err != nil {
		return nil, err
	}
	d := dispatch.New(store, set, dispatch.WithLogger(o.log), dispatch.WithBlockSource(o.blocks))
	for _, h := range Modules() {
		addr, err := d.Deploy(h)
		if err != nil {
			return nil, err
		}
		if err := d.Install(in.Authority, addr); err != nil {
			return nil, fmt.Errorf("install %s: %w", h.Name(), err)
		}
	}
	return &Treasury{d: d, onEvent: o.onEvent}, nil
}

// Dispatcher exposes the registry for module management.
func (t *Treasury) Dispatcher() *dispatch.Dispatcher { return t.d }

// Dispatch forwards a raw call.
func (t *Treasury) Dispatch(ctx context.Context, call dispatch.Call) (any, error) {
	return t.d.Dispatch(ctx, call)
}

func (t *Treasury) exec(ctx context.Context, caller common.Address, op state.OpID, args any) error {
	_, err := t.d.Dispatch(ctx, dispatch.Call{Caller: caller, Op: op, Args: args})
	return err
}

func (t *Treasury) SendToCustodian(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return t.exec(ctx, caller, allocation.OpSendToCustodian, dispatch.AmountArgs{Amount: amount})
}

func (t *Treasury) RecallFromCustodian(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return t.exec(ctx, caller, allocation.OpRecallFromCustodian, dispatch.AmountArgs{Amount: amount})
}

func (t *Treasury) SetCustodian(ctx context.Context, caller, custodian common.Address) error {
	return t.exec(ctx, caller, allocation.OpSetCustodian, dispatch.AddressArgs{Address: custodian})
}

func (t *Treasury) SetLeverageFraction(ctx context.Context, caller common.Address, f fixedpoint.Fraction) error {
	return t.exec(ctx, caller, allocation.OpSetLeverageFraction, dispatch.FractionArgs{Fraction: f})
}

func (t *Treasury) SetBufferTargetFraction(ctx context.Context, caller common.Address, f fixedpoint.Fraction) error {
	return t.exec(ctx, caller, buffer.OpSetTargetFraction, dispatch.FractionArgs{Fraction: f})
}

func (t *Treasury) SetBufferRenewalRate(ctx context.Context, caller common.Address, f fixedpoint.Fraction) error {
	return t.exec(ctx, caller, buffer.OpSetRenewalRate, dispatch.FractionArgs{Fraction: f})
}

func (t *Treasury) SetFeeFraction(ctx context.Context, caller common.Address, f fixedpoint.Fraction) error {
	return t.exec(ctx, caller, reconcile.OpSetFeeFraction, dispatch.FractionArgs{Fraction: f})
}

func (t *Treasury) SetWarchest(ctx context.Context, caller, warchest common.Address) error {
	return t.exec(ctx, caller, reconcile.OpSetWarchest, dispatch.AddressArgs{Address: warchest})
}

func (t *Treasury) UnfreezeVault(ctx context.Context, caller common.Address) error {
	return t.exec(ctx, caller, reconcile.OpUnfreezeVault, nil)
}

func (t *Treasury) UnfreezePrincipal(ctx context.Context, caller common.Address) error {
	return t.exec(ctx, caller, reconcile.OpUnfreezePrincipal, nil)
}

// Report reconciles the custodian's reported balance. Outcome hooks run once
// the report has committed.
func (t *Treasury) Report(ctx context.Context, caller common.Address, balance *uint256.Int) (*reconcile.Outcome, error) {
	res, err := t.d.Dispatch(ctx, dispatch.Call{
		Caller: caller,
		Op:     reconcile.OpReport,
		Args:   reconcile.ReportArgs{Balance: balance},
	})
	if err != nil {
		return nil, err
	}
	out, ok := res.(*reconcile.Outcome)
	if !ok {
		// A replaced report module may return something else.
		return nil, fmt.Errorf("report returned %T", res)
	}
	if out.Kind != reconcile.KindNone {
		for _, fn := range t.onEvent {
			fn(ctx, out)
		}
	}
	return out, nil
}

// View is a consistent read of every exposed treasury figure.
type View struct {
	Block            uint64
	Params           state.Params
	Authority        common.Address
	Warchest         common.Address
	Custodian        common.Address
	CustodianBalance *uint256.Int
	NetDeposits      *uint256.Int
	LeverageCeiling  *uint256.Int
	BufferTarget     *uint256.Int
	BufferHeld       *uint256.Int
	FeesAccrued      *uint256.Int
	EpochRemaining   *uint256.Int
	EpochStartBlock  uint64
	ReleasedProfit   *uint256.Int
	Undistributed    *uint256.Int
	PrincipalSupply  *uint256.Int
	BackingRatio     *uint256.Int
	VaultFrozen      bool
	PrincipalFrozen  bool
}

// View reads the current figures without going through the dispatch table.
// It fails with dispatch.ErrBusy while an operation is in flight.
func (t *Treasury) View() (View, error) {
	var v View
	err := t.d.View(func(env *dispatch.Env) error {
		var err error
		s := env.State
		v.Block = env.Block
		v.Params = s.Params()
		v.Authority, v.Warchest, v.Custodian = s.Authority, s.Warchest, s.Custodian
		v.CustodianBalance = s.CustodianBalance.Clone()
		v.FeesAccrued = s.FeesAccrued.Clone()
		v.EpochRemaining = s.EpochProfitRemaining.Clone()
		v.EpochStartBlock = s.EpochProfitStartBlock
		if v.NetDeposits, err = allocation.NetDeposits(env); err != nil {
			return err
		}
		if v.LeverageCeiling, err = allocation.LeverageCeiling(env); err != nil {
			return err
		}
		if v.BufferTarget, err = buffer.Target(env); err != nil {
			return err
		}
		v.BufferHeld = buffer.Held(env)
		if v.ReleasedProfit, err = reconcile.ReleasedProfit(env); err != nil {
			return err
		}
		if v.Undistributed, err = reconcile.UndistributedProfit(env); err != nil {
			return err
		}
		v.PrincipalSupply = env.Collab.Principal.TotalSupply()
		v.BackingRatio = env.Collab.Principal.BackingRatio()
		v.VaultFrozen = env.Collab.Vault.DepositsFrozen()
		v.PrincipalFrozen = env.Collab.Principal.Frozen()
		return nil
	})
	return v, err
}

// Routes lists the dispatch table.
func (t *Treasury) Routes() []dispatch.Route { return t.d.Routes() }
