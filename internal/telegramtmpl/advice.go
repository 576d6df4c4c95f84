package telegramtmpl

import (
	"fmt"
	"strings"
)

// DailyAdviceInput describes inputs for generating daily actions and risk hints.
type DailyAdviceInput struct {
	VaultFrozen     bool
	PrincipalFrozen bool
	// Percentages of par, target and ceiling respectively.
	BackingRatioPct   float64
	BufferCoveragePct float64
	UtilizationPct    float64
	LossReports       int
	LossStages        []string
}

// BuildDailyActions generates prioritized daily actions for the authority.
func BuildDailyActions(in DailyAdviceInput) []string {
	actions := make([]string, 0, 4)
	if in.PrincipalFrozen {
		actions = append(actions, "Principal frozen: review the custodian loss before unfreezing redemptions.")
	}
	if in.VaultFrozen {
		actions = append(actions, "Vault deposits frozen: unfreeze once stakers have been informed.")
	}
	if in.BackingRatioPct < 100 {
		actions = append(actions, "Backing below par: profit will recover the peg before distribution.")
	}
	if in.BufferCoveragePct < 50 {
		actions = append(actions, "Buffer under half its target: consider a higher renewal rate.")
	}
	if len(actions) == 0 {
		actions = append(actions, "No action required. Keep reporting on schedule.")
	}
	if len(actions) > 3 {
		actions = actions[:3]
	}
	return actions
}

// BuildRiskHints generates risk hints for the daily summary.
func BuildRiskHints(in DailyAdviceInput) []string {
	hints := make([]string, 0, 3)
	if in.UtilizationPct >= 90 {
		hints = append(hints, fmt.Sprintf("Allocation near the leverage ceiling (%.1f%%).", in.UtilizationPct))
	}
	if in.LossReports > 0 {
		hints = append(hints, fmt.Sprintf("%d loss report(s) today.", in.LossReports))
	}
	if len(in.LossStages) > 0 {
		hints = append(hints, "Loss stages reached: "+strings.Join(in.LossStages, ","))
	}
	return hints
}
