package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/logging"
)

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level must be one of trace|debug|info|warn|error, got %q", c.LogLevel)
	}
	format := strings.ToLower(strings.TrimSpace(c.LogFormat))
	if format != "" && format != "console" && format != "json" {
		return fmt.Errorf("log_format must be 'console' or 'json', got %q", c.LogFormat)
	}

	t := c.Treasury
	addrs := []struct {
		field string
		value string
	}{
		{"treasury.address", t.Address},
		{"treasury.reserve", t.Reserve},
		{"treasury.principal", t.Principal},
		{"treasury.vault", t.Vault},
		{"treasury.authority", t.Authority},
		{"treasury.warchest", t.Warchest},
		{"treasury.custodian", t.Custodian},
	}
	for _, a := range addrs {
		if !common.IsHexAddress(a.value) {
			return fmt.Errorf("%s must be a hex address, got %q", a.field, a.value)
		}
		if common.HexToAddress(a.value) == (common.Address{}) {
			return fmt.Errorf("%s must not be the zero address", a.field)
		}
	}

	full := uint64(fixedpoint.Full)
	if t.MaxFeeFraction > full {
		return fmt.Errorf("treasury.max_fee_fraction must be within [0,%d], got %d", full, t.MaxFeeFraction)
	}
	if t.MaxLeverageFraction > full {
		return fmt.Errorf("treasury.max_leverage_fraction must be within [0,%d], got %d", full, t.MaxLeverageFraction)
	}
	if t.MinBufferTargetFraction == 0 || t.MinBufferTargetFraction > full {
		return fmt.Errorf("treasury.min_buffer_target_fraction must be within (0,%d], got %d", full, t.MinBufferTargetFraction)
	}
	if t.MinBufferRenewalFraction == 0 || t.MinBufferRenewalFraction > full {
		return fmt.Errorf("treasury.min_buffer_renewal_fraction must be within (0,%d], got %d", full, t.MinBufferRenewalFraction)
	}
	if t.FeeFraction > t.MaxFeeFraction {
		return fmt.Errorf("treasury.fee_fraction must be <= %d, got %d", t.MaxFeeFraction, t.FeeFraction)
	}
	if t.LeverageFraction > t.MaxLeverageFraction {
		return fmt.Errorf("treasury.leverage_fraction must be <= %d, got %d", t.MaxLeverageFraction, t.LeverageFraction)
	}
	if t.BufferTargetFraction < t.MinBufferTargetFraction || t.BufferTargetFraction > full {
		return fmt.Errorf("treasury.buffer_target_fraction must be within [%d,%d], got %d", t.MinBufferTargetFraction, full, t.BufferTargetFraction)
	}
	if t.BufferRenewalFraction < t.MinBufferRenewalFraction || t.BufferRenewalFraction > full {
		return fmt.Errorf("treasury.buffer_renewal_fraction must be within [%d,%d], got %d", t.MinBufferRenewalFraction, full, t.BufferRenewalFraction)
	}
	if t.EpochLength == 0 {
		return fmt.Errorf("treasury.epoch_length must be > 0")
	}

	if _, err := c.Paper.Amounts(); err != nil {
		return err
	}
	if c.Paper.BlockInterval < 10*time.Millisecond {
		return fmt.Errorf("paper.block_interval must be >= 10ms, got %s", c.Paper.BlockInterval)
	}

	switch strings.ToLower(strings.TrimSpace(c.Journal.Driver)) {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Journal.Path) == "" {
			return fmt.Errorf("journal.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("journal.driver must be 'memory' or 'sqlite', got %q", c.Journal.Driver)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id are required when telegram is enabled")
	}
	if c.API.Enabled && strings.TrimSpace(c.API.Addr) == "" {
		return fmt.Errorf("api.addr is required when the api is enabled")
	}

	return nil
}
