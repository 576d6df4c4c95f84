package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/state"
)

type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Profile   string `yaml:"profile"`

	Treasury TreasuryConfig `yaml:"treasury"`
	Paper    PaperConfig    `yaml:"paper"`
	Journal  JournalConfig  `yaml:"journal"`
	Telegram TelegramConfig `yaml:"telegram"`
	API      APIConfig      `yaml:"api"`
}

// TreasuryConfig holds addresses as hex strings and fractions in parts per
// million.
type TreasuryConfig struct {
	Address   string `yaml:"address"`
	Reserve   string `yaml:"reserve"`
	Principal string `yaml:"principal"`
	Vault     string `yaml:"vault"`
	Authority string `yaml:"authority"`
	Warchest  string `yaml:"warchest"`
	Custodian string `yaml:"custodian"`

	FeeFraction           uint64 `yaml:"fee_fraction"`
	LeverageFraction      uint64 `yaml:"leverage_fraction"`
	BufferTargetFraction  uint64 `yaml:"buffer_target_fraction"`
	BufferRenewalFraction uint64 `yaml:"buffer_renewal_fraction"`
	EpochLength           uint64 `yaml:"epoch_length"`

	MaxFeeFraction           uint64 `yaml:"max_fee_fraction"`
	MaxLeverageFraction      uint64 `yaml:"max_leverage_fraction"`
	MinBufferTargetFraction  uint64 `yaml:"min_buffer_target_fraction"`
	MinBufferRenewalFraction uint64 `yaml:"min_buffer_renewal_fraction"`
}

// PaperConfig seeds the in-memory collaborators. Amounts are whole-token
// decimal strings.
type PaperConfig struct {
	ReserveBalance  string        `yaml:"reserve_balance"`
	PrincipalSupply string        `yaml:"principal_supply"`
	VaultStake      string        `yaml:"vault_stake"`
	BlockInterval   time.Duration `yaml:"block_interval"`
}

type JournalConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	bounds := state.DefaultBounds()
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Profile:   "standard",
		Treasury: TreasuryConfig{
			Address:   "0x7100000000000000000000000000000000000001",
			Reserve:   "0x7100000000000000000000000000000000000002",
			Principal: "0x7100000000000000000000000000000000000003",
			Vault:     "0x7100000000000000000000000000000000000004",
			Authority: "0x7100000000000000000000000000000000000005",
			Warchest:  "0x7100000000000000000000000000000000000006",
			Custodian: "0x7100000000000000000000000000000000000007",

			FeeFraction:           50_000,
			LeverageFraction:      100_000,
			BufferTargetFraction:  20_000,
			BufferRenewalFraction: 200_000,
			EpochLength:           7_200,

			MaxFeeFraction:           uint64(bounds.MaxFee),
			MaxLeverageFraction:      uint64(bounds.MaxLeverage),
			MinBufferTargetFraction:  uint64(bounds.MinBufferTarget),
			MinBufferRenewalFraction: uint64(bounds.MinBufferRenewal),
		},
		Paper: PaperConfig{
			ReserveBalance:  "1000000",
			PrincipalSupply: "1000000",
			VaultStake:      "600000",
			BlockInterval:   12 * time.Second,
		},
		Journal: JournalConfig{
			Driver: "memory",
			Path:   "treasury-journal.db",
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envOverrides holds raw environment values; unset variables leave the file
// configuration untouched.
type envOverrides struct {
	LogLevel         string `env:"TREASURY_LOG_LEVEL"`
	Profile          string `env:"TREASURY_PROFILE"`
	Authority        string `env:"TREASURY_AUTHORITY"`
	Warchest         string `env:"TREASURY_WARCHEST"`
	Custodian        string `env:"TREASURY_CUSTODIAN"`
	JournalDriver    string `env:"TREASURY_JOURNAL_DRIVER"`
	JournalPath      string `env:"TREASURY_JOURNAL_PATH"`
	APIAddr          string `env:"TREASURY_API_ADDR"`
	APIEnabled       string `env:"TREASURY_API_ENABLED"`
	TelegramBotToken string `env:"TREASURY_TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TREASURY_TELEGRAM_CHAT_ID"`
}

// ApplyEnv overlays TREASURY_* environment variables.
func (c *Config) ApplyEnv() error {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.LogLevel, strings.ToLower(e.LogLevel))
	set(&c.Profile, strings.ToLower(e.Profile))
	set(&c.Treasury.Authority, e.Authority)
	set(&c.Treasury.Warchest, e.Warchest)
	set(&c.Treasury.Custodian, e.Custodian)
	set(&c.Journal.Driver, strings.ToLower(e.JournalDriver))
	set(&c.Journal.Path, e.JournalPath)
	set(&c.API.Addr, e.APIAddr)
	if raw := strings.TrimSpace(e.APIEnabled); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("TREASURY_API_ENABLED: %w", err)
		}
		c.API.Enabled = enabled
	}
	set(&c.Telegram.BotToken, e.TelegramBotToken)
	set(&c.Telegram.ChatID, e.TelegramChatID)
	if c.Telegram.BotToken != "" && c.Telegram.ChatID != "" {
		c.Telegram.Enabled = true
	}
	return nil
}

// Init converts the treasury section into constructor input. Call Validate
// first.
func (c Config) Init() state.Init {
	t := c.Treasury
	return state.Init{
		Treasury:       common.HexToAddress(t.Address),
		ReserveAsset:   common.HexToAddress(t.Reserve),
		PrincipalToken: common.HexToAddress(t.Principal),
		Vault:          common.HexToAddress(t.Vault),
		Authority:      common.HexToAddress(t.Authority),
		Warchest:       common.HexToAddress(t.Warchest),
		Custodian:      common.HexToAddress(t.Custodian),
		Params: state.Params{
			Fee:           fixedpoint.Fraction(t.FeeFraction),
			Leverage:      fixedpoint.Fraction(t.LeverageFraction),
			BufferTarget:  fixedpoint.Fraction(t.BufferTargetFraction),
			BufferRenewal: fixedpoint.Fraction(t.BufferRenewalFraction),
			EpochLength:   t.EpochLength,
		},
		Bounds: state.Bounds{
			MaxFee:           fixedpoint.Fraction(t.MaxFeeFraction),
			MaxLeverage:      fixedpoint.Fraction(t.MaxLeverageFraction),
			MinBufferTarget:  fixedpoint.Fraction(t.MinBufferTargetFraction),
			MinBufferRenewal: fixedpoint.Fraction(t.MinBufferRenewalFraction),
		},
	}
}

// PaperAmounts are the parsed seed balances in smallest units.
type PaperAmounts struct {
	Reserve         *uint256.Int
	PrincipalSupply *uint256.Int
	VaultStake      *uint256.Int
}

// Amounts parses the paper seed balances.
func (p PaperConfig) Amounts() (PaperAmounts, error) {
	var out PaperAmounts
	fields := []struct {
		name     string
		raw      string
		decimals int
		dst      **uint256.Int
	}{
		{"paper.reserve_balance", p.ReserveBalance, fixedpoint.ReserveDecimals, &out.Reserve},
		{"paper.principal_supply", p.PrincipalSupply, fixedpoint.PrincipalDecimals, &out.PrincipalSupply},
		{"paper.vault_stake", p.VaultStake, fixedpoint.PrincipalDecimals, &out.VaultStake},
	}
	for _, f := range fields {
		v, err := fixedpoint.Parse(strings.TrimSpace(f.raw), f.decimals)
		if err != nil {
			return out, fmt.Errorf("%s must be a non-negative decimal amount: %w", f.name, err)
		}
		*f.dst = v
	}
	if out.VaultStake.Gt(out.PrincipalSupply) {
		return out, fmt.Errorf("paper.vault_stake must be <= paper.principal_supply, got %s > %s", p.VaultStake, p.PrincipalSupply)
	}
	return out, nil
}
