package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/reconcile"
)

// Notifier sends alerts to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyOutcome sends a reconciliation summary. Unchanged reports are
// skipped.
func (n *Notifier) NotifyOutcome(ctx context.Context, o *reconcile.Outcome) error {
	if o == nil {
		return nil
	}
	var b strings.Builder
	switch o.Kind {
	case reconcile.KindProfit:
		fmt.Fprintf(&b, "<b>Profit Reported</b>\nBlock: %d\nProfit: %s\nFee: %s\nBuffer Top-Up: %s\nPeg Recovered: %s\nEpoch Profit: %s",
			o.Block,
			reserve(o.Delta),
			reserve(o.Fee),
			reserve(o.BufferTopUp),
			reserve(o.PegRecovered),
			principal(o.EpochAmount),
		)
	case reconcile.KindLoss:
		fmt.Fprintf(&b, "<b>Loss Reported</b>\nBlock: %d\nLoss: %s\nStage: <code>%s</code>\nBuffer Burned: %s\nVault Burned: %s",
			o.Block,
			reserve(o.Delta),
			o.Stage,
			principal(o.BufferBurned),
			principal(o.VaultBurned),
		)
		if o.Stage == reconcile.StageBacking {
			fmt.Fprintf(&b, "\nBacking Ratio: %s -> %s", ratio(o.RatioBefore), ratio(o.RatioAfter))
		}
	default:
		return nil
	}
	if err := n.Send(ctx, b.String()); err != nil {
		return err
	}
	if o.VaultFrozen {
		if err := n.NotifyFreeze(ctx, "vault deposits", o.Block); err != nil {
			return err
		}
	}
	if o.PrincipalFrozen {
		if err := n.NotifyFreeze(ctx, "principal token", o.Block); err != nil {
			return err
		}
	}
	return nil
}

// NotifyFreeze sends a freeze alert.
func (n *Notifier) NotifyFreeze(ctx context.Context, what string, block uint64) error {
	msg := fmt.Sprintf("<b>FROZEN</b>\n%s frozen at block %d. Authority action required to unfreeze.", what, block)
	return n.Send(ctx, msg)
}

// NotifyUnfreeze sends an unfreeze confirmation.
func (n *Notifier) NotifyUnfreeze(ctx context.Context, what string) error {
	return n.Send(ctx, fmt.Sprintf("<b>Unfrozen</b>\n%s unfrozen by authority.", what))
}

func reserve(v *uint256.Int) string {
	return fixedpoint.Format(v, fixedpoint.ReserveDecimals) + " reserve"
}

func principal(v *uint256.Int) string {
	return fixedpoint.Format(v, fixedpoint.PrincipalDecimals) + " principal"
}

func ratio(v *uint256.Int) string {
	return fixedpoint.Format(v, fixedpoint.PrincipalDecimals)
}

// NotifyDailySummary sends a pre-rendered daily summary template.
func (n *Notifier) NotifyDailySummary(ctx context.Context, textHTML string) error {
	return n.Send(ctx, textHTML)
}
