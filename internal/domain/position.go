package domain

import "time"

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT, used as the P&L multiplier.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// PositionStatus tracks the lifecycle of a position. A position is created
// OPEN and transitions exactly once to CLOSED or STOPPED_OUT.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "OPEN"
	PositionStatusClosed     PositionStatus = "CLOSED"
	PositionStatusStoppedOut PositionStatus = "STOPPED_OUT"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonTPHit        ExitReason = "TP_HIT"
	ExitReasonSLHit        ExitReason = "SL_HIT"
	ExitReasonManual       ExitReason = "MANUAL"
	ExitReasonTimeout      ExitReason = "TIMEOUT"
	ExitReasonLiquidation  ExitReason = "LIQUIDATION"
	ExitReasonTrailingStop ExitReason = "TRAILING_STOP"
)

// TerminalStatus maps an exit reason to the terminal position status.
// Stop-outs and liquidations become STOPPED_OUT; everything else CLOSED.
func (r ExitReason) TerminalStatus() PositionStatus {
	switch r {
	case ExitReasonSLHit, ExitReasonLiquidation:
		return PositionStatusStoppedOut
	default:
		return PositionStatusClosed
	}
}

// Position is a single open or historical trade belonging to a bot
// subscription. Exit fields are nil while the position is OPEN and are set
// exactly once by the closer.
type Position struct {
	ID             string  `json:"id"`
	BotID          string  `json:"bot_id"`
	SubscriptionID string  `json:"subscription_id"`
	PromptID       string  `json:"prompt_id,omitempty"`
	RiskProfileID  string  `json:"risk_profile_id,omitempty"`
	Symbol         string  `json:"symbol"`
	Side           Side    `json:"side"`
	Quantity       float64 `json:"quantity"`
	EntryPrice     float64 `json:"entry_price"`

	EntryTime time.Time `json:"entry_time"`

	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`

	// Trailing-stop state. Once armed, TrailingTrigger only ever moves in
	// the favorable direction until the position closes.
	TrailingArmed      bool    `json:"trailing_armed"`
	BestFavorablePrice float64 `json:"best_favorable_price,omitempty"`
	TrailingTrigger    float64 `json:"trailing_trigger,omitempty"`

	Status     PositionStatus `json:"status"`
	ExitPrice  *float64       `json:"exit_price,omitempty"`
	ExitTime   *time.Time     `json:"exit_time,omitempty"`
	ExitReason *ExitReason    `json:"exit_reason,omitempty"`

	RealizedPnL     float64 `json:"realized_pnl"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	PnLPercent      float64 `json:"pnl_percent"`
	PlannedRR       float64 `json:"planned_rr_ratio"`
	ActualRR        float64 `json:"actual_rr_ratio"`
	FeesPaid        float64 `json:"fees_paid"`
	Slippage        float64 `json:"slippage"`
	DurationMinutes float64 `json:"duration_minutes"`

	LastUpdatedPrice float64 `json:"last_updated_price"`
}

// IsOpen reports whether the position is still open.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// UnrealizedAt computes the unrealized P&L in USD at the given mark price.
// Only meaningful while the position is OPEN; once closed the realized P&L
// is authoritative.
func (p Position) UnrealizedAt(markPrice float64) float64 {
	return p.Side.Sign() * (markPrice - p.EntryPrice) * p.Quantity
}

// Notional returns the entry notional value of the position in USD.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Quantity
}
