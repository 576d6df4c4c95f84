package telegramtmpl

import (
	"fmt"
	"strings"
)

// DailyData describes the data required to render a daily Telegram treasury
// summary. Amounts are preformatted decimal strings.
type DailyData struct {
	Profile       string
	Status        string
	Block         uint64
	ProfitReports int
	LossReports   int
	Fees          string
	Loss          string
	BufferHeld    string
	BufferTarget  string
	BackingRatio  string
	Actions       []string
	RiskHints     []string
}

// BuildDailyData normalizes daily template inputs into a renderable payload.
func BuildDailyData(
	profile string,
	frozen bool,
	block uint64,
	profitReports int,
	lossReports int,
	fees string,
	loss string,
	actions []string,
	riskHints []string,
) DailyData {
	status := "ACTIVE"
	if frozen {
		status = "FROZEN"
	}
	if len(actions) > 3 {
		actions = actions[:3]
	}
	return DailyData{
		Profile:       strings.ToUpper(strings.TrimSpace(profile)),
		Status:        status,
		Block:         block,
		ProfitReports: profitReports,
		LossReports:   lossReports,
		Fees:          fees,
		Loss:          loss,
		Actions:       actions,
		RiskHints:     riskHints,
	}
}

// RenderDailyHTML renders a daily Telegram treasury summary in HTML parse mode.
func RenderDailyHTML(d DailyData) string {
	var b strings.Builder
	b.WriteString("<b>Daily Treasury Summary</b>\n")
	b.WriteString(fmt.Sprintf("Profile: %s\nStatus: %s\nBlock: %d\n", d.Profile, d.Status, d.Block))
	b.WriteString(fmt.Sprintf("Reports: %d profit / %d loss\nFees: %s\nLoss: %s\n", d.ProfitReports, d.LossReports, d.Fees, d.Loss))
	if d.BufferTarget != "" {
		b.WriteString(fmt.Sprintf("Buffer: %s / %s\n", d.BufferHeld, d.BufferTarget))
	}
	if d.BackingRatio != "" {
		b.WriteString(fmt.Sprintf("Backing Ratio: %s\n", d.BackingRatio))
	}
	if len(d.Actions) > 0 {
		b.WriteString("\n<b>Actions</b>\n")
		for _, a := range d.Actions {
			b.WriteString("- " + a + "\n")
		}
	}
	if len(d.RiskHints) > 0 {
		b.WriteString("\n<b>Risk Hints</b>\n")
		for _, h := range d.RiskHints {
			b.WriteString("- " + h + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}
