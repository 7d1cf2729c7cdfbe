package domain

import "time"

// Event bus channels.
const (
	ChannelPositionClosed = "positions.closed"
	ChannelCooldown       = "risk.cooldown"
)

// CloseEvent is the analytics event emitted after every terminal transition.
// It is published to the event bus and to the analytics topic, and drives the
// asynchronous governor update and performance refresh.
type CloseEvent struct {
	PositionID     string     `json:"position_id"`
	BotID          string     `json:"bot_id"`
	SubscriptionID string     `json:"subscription_id"`
	PromptID       string     `json:"prompt_id"`
	RiskProfileID  string     `json:"risk_profile_id"`
	Symbol         string     `json:"symbol"`
	Side           Side       `json:"side"`
	ExitReason     ExitReason `json:"exit_reason"`
	RealizedPnL    float64    `json:"realized_pnl"`
	PnLPercent     float64    `json:"pnl_percent"`
	ClosedAt       time.Time  `json:"closed_at"`
}

// CooldownEvent announces that a subscription entered cooldown after a loss
// streak.
type CooldownEvent struct {
	SubscriptionID    string    `json:"subscription_id"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CooldownUntil     time.Time `json:"cooldown_until"`
}

// BotPerformance is the aggregate performance rollup for one bot, recomputed
// from its full closed-position set after every close. Recomputing over an
// identical set yields an identical rollup.
type BotPerformance struct {
	BotID             string    `json:"bot_id"`
	TotalTrades       int       `json:"total_trades"`
	Wins              int       `json:"wins"`
	Losses            int       `json:"losses"`
	WinRate           float64   `json:"win_rate"`
	TotalPnL          float64   `json:"total_pnl"`
	AvgPnL            float64   `json:"avg_pnl"`
	AvgWin            float64   `json:"avg_win"`
	AvgLoss           float64   `json:"avg_loss"`
	ProfitFactor      float64   `json:"profit_factor"`
	TPHitRate         float64   `json:"tp_hit_rate"`
	SLHitRate         float64   `json:"sl_hit_rate"`
	RRAchievementRate float64   `json:"rr_achievement_rate"`
	GeneratedAt       time.Time `json:"generated_at"`
}
