package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/GoPolymarket/treasury/internal/api"
	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/config"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/journal"
	"github.com/GoPolymarket/treasury/internal/ledger"
	"github.com/GoPolymarket/treasury/internal/notify"
	"github.com/GoPolymarket/treasury/internal/reconcile"
	"github.com/GoPolymarket/treasury/internal/treasury"
)

// paperHolder owns the seeded principal supply that is not staked.
var paperHolder = common.HexToAddress("0x00000000000000000000000000000000000000f1")

type App struct {
	cfg config.Config
	log zerolog.Logger

	Treasury *treasury.Treasury

	reserve   *ledger.Token
	principal *ledger.Principal
	vault     *ledger.Vault
	custodian *ledger.Custodian

	journal  journal.Store
	notifier Notifier
	api      *api.Server
	stats    *reportStats

	block atomic.Uint64

	mu      sync.RWMutex
	running bool
}

// Notifier defines alert methods used by the treasury app.
type Notifier interface {
	NotifyOutcome(ctx context.Context, o *reconcile.Outcome) error
	NotifyUnfreeze(ctx context.Context, what string) error
	NotifyDailySummary(ctx context.Context, textHTML string) error
}

// New builds the paper collaborators, seeds them from cfg and installs the
// treasury modules. cfg must already be validated.
func New(cfg config.Config, log zerolog.Logger) (*App, error) {
	amounts, err := cfg.Paper.Amounts()
	if err != nil {
		return nil, err
	}
	in := cfg.Init()

	reserve := ledger.NewToken("USDC", fixedpoint.ReserveDecimals)
	principal := ledger.NewPrincipal("BASE")
	a := &App{
		cfg:       cfg,
		log:       log,
		reserve:   reserve,
		principal: principal,
		vault:     ledger.NewVault(in.Vault, principal),
		custodian: ledger.NewCustodian(in.Custodian, reserve),
		stats:     newReportStats(),
	}

	if cfg.Telegram.Enabled {
		a.notifier = notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	store, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, err
	}
	a.journal = store

	if err := a.seed(in.Treasury, amounts); err != nil {
		_ = store.Close()
		return nil, err
	}

	set := collab.Set{Reserve: a.reserve, Principal: a.principal, Vault: a.vault, Custodian: a.custodian}
	a.Treasury, err = treasury.New(in, set,
		treasury.WithLogger(log),
		treasury.WithBlockSource(a.Block),
		treasury.WithOutcomeHook(a.onOutcome),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build treasury: %w", err)
	}

	if cfg.API.Enabled {
		a.api = api.NewServer(cfg.API.Addr, a.Treasury, a.journal, log)
	}
	return a, nil
}

func openJournal(cfg config.JournalConfig) (journal.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "sqlite":
		store, err := journal.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return store, nil
	default:
		return journal.NewMemoryStore(), nil
	}
}

func (a *App) seed(treasuryAddr common.Address, amounts config.PaperAmounts) error {
	if !amounts.Reserve.IsZero() {
		if err := a.reserve.Mint(treasuryAddr, amounts.Reserve); err != nil {
			return fmt.Errorf("seed reserve: %w", err)
		}
	}
	if !amounts.PrincipalSupply.IsZero() {
		if err := a.principal.Mint(paperHolder, amounts.PrincipalSupply); err != nil {
			return fmt.Errorf("seed principal: %w", err)
		}
	}
	if !amounts.VaultStake.IsZero() {
		if err := a.vault.Deposit(paperHolder, amounts.VaultStake); err != nil {
			return fmt.Errorf("seed vault stake: %w", err)
		}
	}
	return nil
}

// Run advances the paper block height and serves the API until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if a.api != nil {
		if err := a.api.Start(ctx); err != nil {
			return fmt.Errorf("start api: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		interval := a.cfg.Paper.BlockInterval
		if interval <= 0 {
			interval = 12 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n := a.block.Add(1)
				a.log.Trace().Uint64("block", n).Msg("block")
			}
		}
	})
	if a.notifier != nil {
		g.Go(func() error {
			timer := time.NewTimer(timeUntilMidnightUTC())
			defer timer.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-timer.C:
					a.sendDailySummary(gctx)
					timer.Reset(timeUntilMidnightUTC())
				}
			}
		})
	}
	if a.api != nil {
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.api.Shutdown(shutdownCtx)
		})
	}

	v, err := a.Treasury.View()
	if err == nil {
		a.log.Info().
			Str("net_deposits", fixedpoint.Format(v.NetDeposits, fixedpoint.ReserveDecimals)).
			Str("principal_supply", fixedpoint.Format(v.PrincipalSupply, fixedpoint.PrincipalDecimals)).
			Uint64("epoch_length", v.Params.EpochLength).
			Msg("treasury loop started")
	}
	return g.Wait()
}

// Shutdown closes the journal and logs the session summary.
func (a *App) Shutdown(_ context.Context) {
	a.log.Info().Msg("shutting down...")
	if err := a.journal.Close(); err != nil {
		a.log.Error().Err(err).Msg("close journal")
	}
	snap := a.stats.Snapshot()
	a.log.Info().
		Int("profits", snap.ProfitReports).
		Int("losses", snap.LossReports).
		Int("vault_freezes", snap.VaultFreezes).
		Int("principal_freezes", snap.PrincipalFreezes).
		Str("fees", fixedpoint.Format(snap.FeesTotal, fixedpoint.ReserveDecimals)).
		Msg("session complete")
}

// Block is the current paper block height.
func (a *App) Block() uint64 { return a.block.Load() }

// Advance moves the paper block height forward by n.
func (a *App) Advance(n uint64) uint64 { return a.block.Add(n) }

// IsRunning reports whether the block loop is active.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Journal returns the report journal.
func (a *App) Journal() journal.Store { return a.journal }

// Stats returns the report counters for the current UTC day and the session.
func (a *App) Stats() ReportStats { return a.stats.Snapshot() }

// Custodian returns the paper custodian.
func (a *App) Custodian() *ledger.Custodian { return a.custodian }

func (a *App) custodianAddr() common.Address { return a.custodian.Address() }

func (a *App) authority() common.Address { return common.HexToAddress(a.cfg.Treasury.Authority) }

// ReportCustodian reports the paper custodian's current balance.
func (a *App) ReportCustodian(ctx context.Context) (*reconcile.Outcome, error) {
	return a.Treasury.Report(ctx, a.custodianAddr(), a.custodian.Balance())
}

// Unfreeze clears the vault and principal freezes as the authority.
func (a *App) Unfreeze(ctx context.Context, vault, principal bool) error {
	var errs []error
	if vault {
		if err := a.Treasury.UnfreezeVault(ctx, a.authority()); err != nil {
			errs = append(errs, fmt.Errorf("unfreeze vault: %w", err))
		} else {
			a.notify(ctx, func(n Notifier) error { return n.NotifyUnfreeze(ctx, "vault deposits") })
		}
	}
	if principal {
		if err := a.Treasury.UnfreezePrincipal(ctx, a.authority()); err != nil {
			errs = append(errs, fmt.Errorf("unfreeze principal: %w", err))
		} else {
			a.notify(ctx, func(n Notifier) error { return n.NotifyUnfreeze(ctx, "principal token") })
		}
	}
	return errors.Join(errs...)
}

// onOutcome runs after a report commits. Failures here are logged and never
// undo the report.
func (a *App) onOutcome(ctx context.Context, o *reconcile.Outcome) {
	a.stats.Record(o, time.Now())
	entry := journal.FromOutcome(o, time.Now())
	if err := a.journal.Append(ctx, entry); err != nil {
		a.log.Error().Err(err).Str("entry", entry.ID.String()).Msg("journal append failed")
	}
	a.notify(ctx, func(n Notifier) error { return n.NotifyOutcome(ctx, o) })
}

func (a *App) notify(ctx context.Context, send func(Notifier) error) {
	if a.notifier == nil {
		return
	}
	if err := send(a.notifier); err != nil && ctx.Err() == nil {
		a.log.Warn().Err(err).Msg("notification failed")
	}
}
