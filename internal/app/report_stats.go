package app

import (
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/reconcile"
)

// ReportStats counts committed reports. Daily fields reset at UTC midnight.
type ReportStats struct {
	DayStartUTC time.Time
	LastUpdated time.Time

	ProfitReports    int
	LossReports      int
	LossesByStage    map[string]int
	VaultFreezes     int
	PrincipalFreezes int
	FeesTotal        *uint256.Int

	ProfitReportsDaily int
	LossReportsDaily   int
	FeesDaily          *uint256.Int
	LossDaily          *uint256.Int
}

type reportStats struct {
	mu sync.RWMutex

	dayStartUTC time.Time
	lastUpdated time.Time

	profitReports    int
	lossReports      int
	lossesByStage    map[reconcile.Stage]int
	vaultFreezes     int
	principalFreezes int
	feesTotal        uint256.Int

	profitReportsDaily int
	lossReportsDaily   int
	feesDaily          uint256.Int
	lossDaily          uint256.Int
}

func newReportStats() *reportStats {
	now := time.Now().UTC()
	return &reportStats{
		dayStartUTC:   startOfUTCDay(now),
		lastUpdated:   now,
		lossesByStage: make(map[reconcile.Stage]int),
	}
}

func startOfUTCDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func (c *reportStats) ensureDayLocked(now time.Time) {
	day := startOfUTCDay(now)
	if !day.After(c.dayStartUTC) {
		return
	}
	c.dayStartUTC = day
	c.profitReportsDaily = 0
	c.lossReportsDaily = 0
	c.feesDaily.Clear()
	c.lossDaily.Clear()
}

// Record counts one committed outcome observed at now.
func (c *reportStats) Record(o *reconcile.Outcome, now time.Time) {
	if o == nil || o.Kind == reconcile.KindNone {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.lastUpdated = now.UTC()

	switch o.Kind {
	case reconcile.KindProfit:
		c.profitReports++
		c.profitReportsDaily++
		addSaturating(&c.feesTotal, o.Fee)
		addSaturating(&c.feesDaily, o.Fee)
	case reconcile.KindLoss:
		c.lossReports++
		c.lossReportsDaily++
		c.lossesByStage[o.Stage]++
		addSaturating(&c.lossDaily, o.Delta)
	}
	if o.VaultFrozen {
		c.vaultFreezes++
	}
	if o.PrincipalFrozen {
		c.principalFreezes++
	}
}

// addSaturating adds v into dst, pinning at the maximum on overflow.
func addSaturating(dst *uint256.Int, v *uint256.Int) {
	if v == nil {
		return
	}
	if _, overflow := dst.AddOverflow(dst, v); overflow {
		dst.SetAllOne()
	}
}

// Snapshot returns a copy of the counters.
func (c *reportStats) Snapshot() ReportStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(time.Now())

	byStage := make(map[string]int, len(c.lossesByStage))
	for stage, n := range c.lossesByStage {
		byStage[stage.String()] = n
	}
	return ReportStats{
		DayStartUTC:        c.dayStartUTC,
		LastUpdated:        c.lastUpdated,
		ProfitReports:      c.profitReports,
		LossReports:        c.lossReports,
		LossesByStage:      byStage,
		VaultFreezes:       c.vaultFreezes,
		PrincipalFreezes:   c.principalFreezes,
		FeesTotal:          c.feesTotal.Clone(),
		ProfitReportsDaily: c.profitReportsDaily,
		LossReportsDaily:   c.lossReportsDaily,
		FeesDaily:          c.feesDaily.Clone(),
		LossDaily:          c.lossDaily.Clone(),
	}
}
