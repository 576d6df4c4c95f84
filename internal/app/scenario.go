package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/reconcile"
)

// Scenario is a scripted sequence of treasury actions replayed against the
// paper collaborators.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one scripted action. Amounts are whole-token decimal strings in
// reserve units; fractions are parts per million.
type Step struct {
	Action      string `yaml:"action"`
	Amount      string `yaml:"amount"`
	Blocks      uint64 `yaml:"blocks"`
	Fraction    uint64 `yaml:"fraction"`
	Address     string `yaml:"address"`
	Vault       bool   `yaml:"vault"`
	Principal   bool   `yaml:"principal"`
	ExpectError string `yaml:"expect_error"`
}

// StepResult is what a replayed step did.
type StepResult struct {
	Index   int
	Action  string
	Block   uint64
	Outcome *reconcile.Outcome
	Err     error
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	var sc Scenario
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return sc, fmt.Errorf("scenario %q has no steps", path)
	}
	return sc, nil
}

// Replay runs every step in order. A step failure stops the replay unless the
// step names the error it expects.
func (a *App) Replay(ctx context.Context, sc Scenario) ([]StepResult, error) {
	results := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		action := strings.ToLower(strings.TrimSpace(step.Action))
		out, err := a.runStep(ctx, action, step)
		res := StepResult{Index: i, Action: action, Block: a.Block(), Outcome: out, Err: err}
		results = append(results, res)

		switch {
		case step.ExpectError != "" && err == nil:
			return results, fmt.Errorf("step %d (%s): expected error %q, got none", i, action, step.ExpectError)
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			return results, fmt.Errorf("step %d (%s): expected error %q, got %w", i, action, step.ExpectError, err)
		case step.ExpectError == "" && err != nil:
			return results, fmt.Errorf("step %d (%s): %w", i, action, err)
		}
		a.log.Debug().Int("step", i).Str("action", action).Uint64("block", res.Block).Err(err).Msg("scenario step")
	}
	return results, nil
}

func (a *App) runStep(ctx context.Context, action string, step Step) (*reconcile.Outcome, error) {
	amount := func() (*uint256.Int, error) {
		return fixedpoint.Parse(strings.TrimSpace(step.Amount), fixedpoint.ReserveDecimals)
	}
	custodian := a.custodianAddr()
	authority := a.authority()

	switch action {
	case "send":
		v, err := amount()
		if err != nil {
			return nil, err
		}
		return nil, a.Treasury.SendToCustodian(ctx, custodian, v)
	case "recall":
		v, err := amount()
		if err != nil {
			return nil, err
		}
		return nil, a.Treasury.RecallFromCustodian(ctx, custodian, v)
	case "yield":
		v, err := amount()
		if err != nil {
			return nil, err
		}
		return nil, a.custodian.Yield(v)
	case "lose":
		v, err := amount()
		if err != nil {
			return nil, err
		}
		return nil, a.custodian.Lose(v)
	case "report":
		return a.ReportCustodian(ctx)
	case "advance":
		a.Advance(step.Blocks)
		return nil, nil
	case "set_fee":
		return nil, a.Treasury.SetFeeFraction(ctx, authority, fixedpoint.Fraction(step.Fraction))
	case "set_leverage":
		return nil, a.Treasury.SetLeverageFraction(ctx, authority, fixedpoint.Fraction(step.Fraction))
	case "set_buffer_target":
		return nil, a.Treasury.SetBufferTargetFraction(ctx, authority, fixedpoint.Fraction(step.Fraction))
	case "set_buffer_renewal":
		return nil, a.Treasury.SetBufferRenewalRate(ctx, authority, fixedpoint.Fraction(step.Fraction))
	case "set_warchest":
		if !common.IsHexAddress(step.Address) {
			return nil, fmt.Errorf("set_warchest: %q is not a hex address", step.Address)
		}
		return nil, a.Treasury.SetWarchest(ctx, authority, common.HexToAddress(step.Address))
	case "unfreeze":
		return nil, a.Unfreeze(ctx, step.Vault, step.Principal)
	default:
		return nil, fmt.Errorf("unknown scenario action %q", step.Action)
	}
}
