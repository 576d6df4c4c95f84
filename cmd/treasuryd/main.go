package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/GoPolymarket/treasury/internal/app"
	"github.com/GoPolymarket/treasury/internal/config"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "treasury.yaml", "path to config file")
	profile := flag.String("profile", "", "risk profile preset: conservative|standard|aggressive")
	replay := flag.String("replay", "", "replay a YAML scenario against the paper treasury and exit")
	flag.Parse()

	boot := logging.New("treasuryd", logging.DefaultConfig(logging.ProfileRuntime))

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		boot.Warn().Err(err).Msg("config file unavailable, using defaults")
		cfg = config.Default()
	}
	if err := cfg.ApplyEnv(); err != nil {
		boot.Fatal().Err(err).Msg("invalid environment")
	}
	selected := strings.TrimSpace(*profile)
	if selected == "" {
		selected = cfg.Profile
	}
	if err := config.ApplyProfile(&cfg, selected); err != nil {
		boot.Fatal().Err(err).Msg("invalid -profile")
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("invalid config")
	}

	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	logCfg.Level, logCfg.Format = cfg.LogLevel, cfg.LogFormat
	log := logging.New("treasuryd", logCfg)

	log.Info().
		Str("profile", cfg.Profile).
		Uint64("fee_ppm", cfg.Treasury.FeeFraction).
		Uint64("leverage_ppm", cfg.Treasury.LeverageFraction).
		Uint64("buffer_target_ppm", cfg.Treasury.BufferTargetFraction).
		Uint64("buffer_renewal_ppm", cfg.Treasury.BufferRenewalFraction).
		Uint64("epoch_length", cfg.Treasury.EpochLength).
		Str("journal", cfg.Journal.Driver).
		Msg("treasury starting")

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build app")
	}

	if *replay != "" {
		code := runReplay(a, *replay, log)
		a.Shutdown(context.Background())
		os.Exit(code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("run error")
	}
	a.Shutdown(context.Background())
}

func runReplay(a *app.App, path string, log zerolog.Logger) int {
	sc, err := app.LoadScenario(path)
	if err != nil {
		log.Error().Err(err).Msg("load scenario")
		return 1
	}
	results, err := a.Replay(context.Background(), sc)
	for _, r := range results {
		line := fmt.Sprintf("%3d  block %-6d %-18s", r.Index, r.Block, r.Action)
		switch {
		case r.Err != nil:
			line += "  error: " + r.Err.Error()
		case r.Outcome != nil:
			line += fmt.Sprintf("  %s delta=%s stage=%s", r.Outcome.Kind,
				fixedpoint.Format(r.Outcome.Delta, fixedpoint.ReserveDecimals), r.Outcome.Stage)
		}
		fmt.Println(line)
	}
	if err != nil {
		log.Error().Err(err).Str("scenario", sc.Name).Msg("replay failed")
		return 1
	}
	v, err := a.Treasury.View()
	if err == nil {
		fmt.Printf("\nnet deposits %s  custodian %s  buffer %s/%s  ratio %s  vault frozen %t  principal frozen %t\n",
			fixedpoint.Format(v.NetDeposits, fixedpoint.ReserveDecimals),
			fixedpoint.Format(v.CustodianBalance, fixedpoint.ReserveDecimals),
			fixedpoint.Format(v.BufferHeld, fixedpoint.PrincipalDecimals),
			fixedpoint.Format(v.BufferTarget, fixedpoint.PrincipalDecimals),
			fixedpoint.Format(v.BackingRatio, fixedpoint.PrincipalDecimals),
			v.VaultFrozen, v.PrincipalFrozen,
		)
	}
	return 0
}
