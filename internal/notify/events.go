package notify

import (
	"fmt"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
)

// Event type names used for notification filtering.
const (
	EventPositionClosed  = "position_closed"
	EventStoppedOut      = "stopped_out"
	EventLiquidation     = "liquidation"
	EventCooldownEngaged = "cooldown_engaged"
	EventDailyLimitHit   = "daily_limit_hit"
)

// CloseEventType classifies a close event for filtering. Stop-outs and
// liquidations get their own types so operators can subscribe to bad news
// only.
func CloseEventType(event domain.CloseEvent) string {
	switch event.ExitReason {
	case domain.ExitReasonSLHit:
		return EventStoppedOut
	case domain.ExitReasonLiquidation:
		return EventLiquidation
	default:
		return EventPositionClosed
	}
}

// FormatClose renders a close event as a notification title and body.
func FormatClose(event domain.CloseEvent) (title, message string) {
	outcome := "closed"
	switch event.ExitReason {
	case domain.ExitReasonSLHit:
		outcome = "stopped out"
	case domain.ExitReasonLiquidation:
		outcome = "LIQUIDATED"
	}

	title = fmt.Sprintf("%s %s %s", event.Symbol, event.Side, outcome)
	message = fmt.Sprintf(
		"Bot %s\nReason: %s\nP&L: %+.2f USD (%+.2f%%)\nClosed: %s",
		event.BotID,
		event.ExitReason,
		event.RealizedPnL,
		event.PnLPercent,
		event.ClosedAt.Format(time.RFC3339),
	)
	return title, message
}

// FormatDailyLimit renders a daily-loss-limit admission block as a
// notification.
func FormatDailyLimit(subscriptionID string, dailyLoss float64) (title, message string) {
	title = "Daily loss limit reached"
	message = fmt.Sprintf(
		"Subscription %s\nAccumulated loss today: %.2f USD\nNew trades blocked until the next local day",
		subscriptionID,
		dailyLoss,
	)
	return title, message
}

// FormatCooldown renders a cooldown engagement as a notification.
func FormatCooldown(subscriptionID string, state domain.SubscriptionRiskState) (title, message string) {
	title = "Cooldown engaged"
	message = fmt.Sprintf(
		"Subscription %s\nConsecutive losses: %d\nTrading suspended until %s",
		subscriptionID,
		state.ConsecutiveLosses,
		state.CooldownUntil.Format(time.RFC3339),
	)
	return title, message
}
