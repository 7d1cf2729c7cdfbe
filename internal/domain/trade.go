package domain

// TradeProposal is a candidate trade submitted for risk evaluation before it
// is admitted. In AI_PROMPT mode ProposedStopLoss / ProposedTakeProfit carry
// the LLM-suggested levels; a nil proposal field means no suggestion was made
// and the DEFAULT block applies.
type TradeProposal struct {
	SubscriptionID string
	Symbol         string
	Side           Side
	Quantity       float64
	EntryPrice     float64
	Leverage       float64

	ProposedStopLoss   *float64
	ProposedTakeProfit *float64
}

// Notional returns the proposal's entry notional in USD.
func (t TradeProposal) Notional() float64 {
	return t.EntryPrice * t.Quantity
}

// AccountState is a snapshot of the subscription's account at evaluation
// time: free balance and the notional already committed to open positions.
type AccountState struct {
	Balance          float64
	OpenExposure     float64
	OpenPositionSize float64
}

// RejectReason explains why a trade proposal was not admitted.
type RejectReason string

const (
	RejectOutsideTradingWindow RejectReason = "OUTSIDE_TRADING_WINDOW"
	RejectInCooldown           RejectReason = "IN_COOLDOWN"
	RejectDailyLossLimitHit    RejectReason = "DAILY_LOSS_LIMIT_HIT"
	RejectExposureExceeded     RejectReason = "EXPOSURE_EXCEEDED"
	RejectRRTooLow             RejectReason = "RR_TOO_LOW"
)

// Decision is the outcome of evaluating a trade proposal. An approved
// decision carries the effective quantity and the stop-loss / take-profit
// prices the position must be created with.
type Decision struct {
	Approved           bool
	Reason             RejectReason
	Quantity           float64
	EffectiveSL        float64
	EffectiveTP        float64
	UsedFallbackParams bool // AI proposal was missing or invalid
}

// Approve builds an approved decision.
func Approve(quantity, effectiveSL, effectiveTP float64) Decision {
	return Decision{
		Approved:    true,
		Quantity:    quantity,
		EffectiveSL: effectiveSL,
		EffectiveTP: effectiveTP,
	}
}

// Reject builds a rejected decision with the given reason.
func Reject(reason RejectReason) Decision {
	return Decision{Reason: reason}
}
