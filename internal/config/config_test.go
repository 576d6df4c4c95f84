package config

import (
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/state"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Treasury.EpochLength == 0 {
		t.Fatal("expected positive epoch length")
	}
	if cfg.Journal.Driver != "memory" {
		t.Fatalf("expected memory journal by default, got %q", cfg.Journal.Driver)
	}
	if cfg.API.Enabled || cfg.Telegram.Enabled {
		t.Fatal("expected api and telegram disabled by default")
	}
	if cfg.Paper.BlockInterval != 12*time.Second {
		t.Fatalf("expected 12s block interval, got %v", cfg.Paper.BlockInterval)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yaml := `
log_level: debug
treasury:
  fee_fraction: 100000
  leverage_fraction: 250000
  epoch_length: 600
paper:
  reserve_balance: "2500.5"
  block_interval: 2s
journal:
  driver: sqlite
  path: /tmp/j.db
api:
  enabled: true
  addr: 127.0.0.1:9090
`
	f, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte(yaml)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := LoadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug, got %q", cfg.LogLevel)
	}
	if cfg.Treasury.FeeFraction != 100_000 || cfg.Treasury.LeverageFraction != 250_000 {
		t.Fatalf("unexpected fractions %+v", cfg.Treasury)
	}
	if cfg.Treasury.EpochLength != 600 {
		t.Fatalf("expected epoch 600, got %d", cfg.Treasury.EpochLength)
	}
	if cfg.Treasury.BufferTargetFraction != 20_000 {
		t.Fatalf("expected untouched buffer target to keep its default, got %d", cfg.Treasury.BufferTargetFraction)
	}
	if cfg.Paper.BlockInterval != 2*time.Second {
		t.Fatalf("expected 2s block interval, got %v", cfg.Paper.BlockInterval)
	}
	if cfg.Journal.Driver != "sqlite" || cfg.Journal.Path != "/tmp/j.db" {
		t.Fatalf("unexpected journal %+v", cfg.Journal)
	}
	if !cfg.API.Enabled || cfg.API.Addr != "127.0.0.1:9090" {
		t.Fatalf("unexpected api %+v", cfg.API)
	}
	amounts, err := cfg.Paper.Amounts()
	if err != nil {
		t.Fatal(err)
	}
	if amounts.Reserve.Uint64() != 2_500_500_000 {
		t.Fatalf("expected 2500.5 reserve in smallest units, got %s", amounts.Reserve.Dec())
	}
}

func TestLoadFileInvalidPath(t *testing.T) {
	_, err := LoadFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	f, err := os.CreateTemp("", "bad-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte("{{invalid yaml")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = LoadFile(f.Name())
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestApplyEnvAllVars(t *testing.T) {
	authority := "0x00000000000000000000000000000000000000aa"
	t.Setenv("TREASURY_LOG_LEVEL", "WARN")
	t.Setenv("TREASURY_PROFILE", "Conservative")
	t.Setenv("TREASURY_AUTHORITY", authority)
	t.Setenv("TREASURY_WARCHEST", "0x00000000000000000000000000000000000000bb")
	t.Setenv("TREASURY_CUSTODIAN", "0x00000000000000000000000000000000000000cc")
	t.Setenv("TREASURY_JOURNAL_DRIVER", "SQLITE")
	t.Setenv("TREASURY_JOURNAL_PATH", "/var/lib/treasury/journal.db")
	t.Setenv("TREASURY_API_ADDR", ":9999")
	t.Setenv("TREASURY_API_ENABLED", "true")
	t.Setenv("TREASURY_TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("TREASURY_TELEGRAM_CHAT_ID", "42")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.Profile != "conservative" {
		t.Fatalf("unexpected level/profile %q/%q", cfg.LogLevel, cfg.Profile)
	}
	if cfg.Treasury.Authority != authority {
		t.Fatalf("expected authority from env, got %s", cfg.Treasury.Authority)
	}
	if cfg.Journal.Driver != "sqlite" || cfg.Journal.Path != "/var/lib/treasury/journal.db" {
		t.Fatalf("unexpected journal %+v", cfg.Journal)
	}
	if !cfg.API.Enabled || cfg.API.Addr != ":9999" {
		t.Fatalf("unexpected api %+v", cfg.API)
	}
	if !cfg.Telegram.Enabled || cfg.Telegram.BotToken != "bot-token" || cfg.Telegram.ChatID != "42" {
		t.Fatalf("expected telegram enabled from env, got %+v", cfg.Telegram)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected env overrides to validate, got %v", err)
	}
}

func TestApplyEnvKeepsFileValuesWhenUnset(t *testing.T) {
	cfg := Default()
	cfg.API.Enabled = true
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if !cfg.API.Enabled || cfg.Treasury.Authority != Default().Treasury.Authority {
		t.Fatalf("unset env changed the config: %+v", cfg)
	}
}

func TestApplyEnvRejectsBadBool(t *testing.T) {
	t.Setenv("TREASURY_API_ENABLED", "maybe")
	cfg := Default()
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("expected parse error for a bad bool")
	}
}

func TestInitBuildsStore(t *testing.T) {
	cfg := Default()
	in := cfg.Init()
	if in.Authority != common.HexToAddress(cfg.Treasury.Authority) {
		t.Fatalf("authority = %s", in.Authority.Hex())
	}
	if in.Params.Fee != fixedpoint.Fraction(50_000) || in.Params.EpochLength != 7_200 {
		t.Fatalf("unexpected params %+v", in.Params)
	}
	if in.Bounds != state.DefaultBounds() {
		t.Fatalf("bounds = %+v, want defaults", in.Bounds)
	}
	if _, err := state.New(in); err != nil {
		t.Fatalf("state.New rejected the default config: %v", err)
	}
}
