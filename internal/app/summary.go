package app

import (
	"context"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/telegramtmpl"
)

func timeUntilMidnightUTC() time.Duration {
	now := time.Now().UTC()
	return startOfUTCDay(now).Add(24 * time.Hour).Sub(now)
}

// percentOf returns 100*num/den, or 100 when den is zero.
func percentOf(num, den *uint256.Int) float64 {
	if den == nil || den.IsZero() {
		return 100
	}
	n := decimal.NewFromBigInt(num.ToBig(), 0)
	d := decimal.NewFromBigInt(den.ToBig(), 0)
	return n.Mul(decimal.NewFromInt(100)).Div(d).InexactFloat64()
}

// DailySummary renders the Telegram daily summary for the current state.
func (a *App) DailySummary() (string, error) {
	v, err := a.Treasury.View()
	if err != nil {
		return "", err
	}
	stats := a.stats.Snapshot()
	stages := make([]string, 0, len(stats.LossesByStage))
	for stage := range stats.LossesByStage {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	in := telegramtmpl.DailyAdviceInput{
		VaultFrozen:       v.VaultFrozen,
		PrincipalFrozen:   v.PrincipalFrozen,
		BackingRatioPct:   percentOf(v.BackingRatio, collab.WAD),
		BufferCoveragePct: percentOf(v.BufferHeld, v.BufferTarget),
		UtilizationPct:    percentOf(v.CustodianBalance, v.LeverageCeiling),
		LossReports:       stats.LossReportsDaily,
		LossStages:        stages,
	}
	data := telegramtmpl.BuildDailyData(
		a.cfg.Profile,
		v.VaultFrozen || v.PrincipalFrozen,
		v.Block,
		stats.ProfitReportsDaily,
		stats.LossReportsDaily,
		fixedpoint.Format(stats.FeesDaily, fixedpoint.ReserveDecimals),
		fixedpoint.Format(stats.LossDaily, fixedpoint.ReserveDecimals),
		telegramtmpl.BuildDailyActions(in),
		telegramtmpl.BuildRiskHints(in),
	)
	data.BufferHeld = fixedpoint.Format(v.BufferHeld, fixedpoint.PrincipalDecimals)
	data.BufferTarget = fixedpoint.Format(v.BufferTarget, fixedpoint.PrincipalDecimals)
	data.BackingRatio = fixedpoint.Format(v.BackingRatio, fixedpoint.PrincipalDecimals)
	return telegramtmpl.RenderDailyHTML(data), nil
}

func (a *App) sendDailySummary(ctx context.Context) {
	msg, err := a.DailySummary()
	if err != nil {
		a.log.Warn().Err(err).Msg("daily summary unavailable")
		return
	}
	a.notify(ctx, func(n Notifier) error { return n.NotifyDailySummary(ctx, msg) })
}
