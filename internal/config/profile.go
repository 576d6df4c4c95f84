package config

import (
	"fmt"
	"strings"
)

// ApplyProfile applies a risk preset to the treasury parameters.
// Supported profiles:
// - conservative: low leverage, larger buffer, faster renewal
// - standard:     configured values
// - aggressive:   higher leverage, buffer kept at its floor
func ApplyProfile(cfg *Config, profile string) error {
	p := strings.ToLower(strings.TrimSpace(profile))
	if p == "" {
		return nil
	}

	t := &cfg.Treasury
	switch p {
	case "conservative", "safe":
		clampMax(&t.LeverageFraction, 50_000)
		clampMin(&t.BufferTargetFraction, 50_000)
		clampMin(&t.BufferRenewalFraction, 500_000)
	case "standard", "default":
	case "aggressive":
		clampMin(&t.LeverageFraction, 300_000)
		clampMax(&t.LeverageFraction, t.MaxLeverageFraction)
		t.BufferTargetFraction = t.MinBufferTargetFraction
		t.BufferRenewalFraction = t.MinBufferRenewalFraction
	default:
		return fmt.Errorf("unknown profile %q (supported: conservative|standard|aggressive)", profile)
	}
	cfg.Profile = p
	return nil
}

func clampMax(v *uint64, max uint64) {
	if max == 0 {
		return
	}
	if *v > max {
		*v = max
	}
}

func clampMin(v *uint64, min uint64) {
	if *v < min {
		*v = min
	}
}
