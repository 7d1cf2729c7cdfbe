package monitor

import (
	"time"

	"github.com/botfolio/riskengine/internal/domain"
)

// TrailingState is the trailing-stop snapshot carried by a position.
type TrailingState struct {
	Armed           bool
	BestPrice       float64
	TrailingTrigger float64
}

// advanceTrailing computes the next trailing state for a position at the
// given mark price. The trigger ratchets: once armed it only ever moves in
// the position's favorable direction. changed reports whether the state
// differs from what the position currently carries and must be persisted.
func advanceTrailing(cfg *domain.TrailingStopConfig, p domain.Position, mark float64) (TrailingState, bool) {
	cur := TrailingState{
		Armed:           p.TrailingArmed,
		BestPrice:       p.BestFavorablePrice,
		TrailingTrigger: p.TrailingTrigger,
	}
	if cfg == nil || !cfg.Enabled || p.EntryPrice <= 0 {
		return cur, false
	}

	sign := p.Side.Sign()
	next := cur

	if !next.Armed {
		movePct := sign * (mark - p.EntryPrice) / p.EntryPrice * 100
		if movePct < cfg.ActivationPercent {
			return cur, false
		}
		next.Armed = true
		next.BestPrice = mark
		next.TrailingTrigger = triggerFrom(mark, sign, cfg.TrailingPercent)
		return next, true
	}

	// Armed: ratchet the best favorable price and the trigger behind it.
	if sign*(mark-next.BestPrice) > 0 {
		next.BestPrice = mark
		candidate := triggerFrom(mark, sign, cfg.TrailingPercent)
		if sign*(candidate-next.TrailingTrigger) > 0 {
			next.TrailingTrigger = candidate
		}
	}

	return next, next != cur
}

// triggerFrom places the trailing trigger trailingPct behind the best price,
// on the losing side for the position's direction.
func triggerFrom(best, sign, trailingPct float64) float64 {
	return best * (1 - sign*trailingPct/100)
}

// evaluateExit checks the exit triggers for a position at the given mark
// price, in fixed priority: stop-loss, take-profit, trailing stop, then the
// trading-window forced exit. At most one reason fires per call. When a gap
// move breaches both the stop and the target in the same observation, the
// stop wins.
func evaluateExit(p domain.Position, cfg domain.RiskConfig, trailing TrailingState, mark float64, now time.Time) (domain.ExitReason, bool) {
	sign := p.Side.Sign()

	if p.StopLoss > 0 && sign*(mark-p.StopLoss) <= 0 {
		return domain.ExitReasonSLHit, true
	}
	if p.TakeProfit > 0 && sign*(mark-p.TakeProfit) >= 0 {
		return domain.ExitReasonTPHit, true
	}
	if trailing.Armed && sign*(mark-trailing.TrailingTrigger) <= 0 {
		return domain.ExitReasonTrailingStop, true
	}
	if w := cfg.TradingWindow; w != nil && w.Enabled && w.ForceExitOutside && !w.Covers(now) {
		return domain.ExitReasonTimeout, true
	}

	return "", false
}
