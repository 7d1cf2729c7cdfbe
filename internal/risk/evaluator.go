// Package risk implements the pure pre-trade rule evaluator: it admits or
// rejects trade proposals against a subscription's risk profile and computes
// the effective stop-loss / take-profit levels a position must carry.
package risk

import (
	"math"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
)

// Evaluator applies a RiskConfig to trade proposals. It holds no state and
// performs no I/O; every input it needs is passed to Evaluate.
type Evaluator struct{}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs the admission sequence for a trade proposal:
// trading window, cooldown, daily loss, exposure and sizing, risk-reward.
// The first failed check rejects the proposal; a proposal passing all checks
// is approved with the effective quantity and SL/TP levels.
//
// A config that fails validation never admits a trade: the error is returned
// to the caller and no decision is made.
func (e *Evaluator) Evaluate(
	cfg domain.RiskConfig,
	state domain.SubscriptionRiskState,
	account domain.AccountState,
	proposal domain.TradeProposal,
	now time.Time,
) (domain.Decision, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Decision{}, err
	}

	// 1. Trading window.
	if w := cfg.TradingWindow; w != nil && w.Enabled && !w.Covers(now) {
		return domain.Reject(domain.RejectOutsideTradingWindow), nil
	}

	// 2. Cooldown.
	if state.InCooldown(now) {
		return domain.Reject(domain.RejectInCooldown), nil
	}

	// 3. Daily loss limit. A state that is due for its daily reset has not
	// accumulated anything today, so it never blocks.
	if !state.NeedsDailyReset(now) {
		limit := cfg.Default.DailyLossLimitPct / 100 * account.Balance
		if state.DailyLossAmount >= limit {
			return domain.Reject(domain.RejectDailyLossLimitHit), nil
		}
	}

	// 4. Exposure and sizing.
	notional := proposal.Notional()
	p := cfg.Default
	if p.MaxPositionSize > 0 && notional > p.MaxPositionSize {
		return domain.Reject(domain.RejectExposureExceeded), nil
	}
	if p.MaxPortfolioExposure > 0 && account.OpenExposure+notional > p.MaxPortfolioExposure {
		return domain.Reject(domain.RejectExposureExceeded), nil
	}
	if proposal.Leverage > p.MaxLeverage {
		return domain.Reject(domain.RejectExposureExceeded), nil
	}

	// 5. Effective levels and risk-reward.
	sl, tp, usedFallback := e.effectiveLevels(cfg, proposal)

	risk := math.Abs(proposal.EntryPrice - sl)
	reward := math.Abs(tp - proposal.EntryPrice)
	if risk <= 0 || reward/risk < p.MinRiskRewardRatio {
		return domain.Reject(domain.RejectRRTooLow), nil
	}

	quantity := e.sizedQuantity(p, account, proposal, risk)

	decision := domain.Approve(quantity, sl, tp)
	decision.UsedFallbackParams = usedFallback
	return decision, nil
}

// effectiveLevels resolves the SL/TP prices for a proposal according to the
// config mode. In AI_PROMPT mode the proposed levels are clamped into the
// configured hard bounds; a missing or invalid proposal falls back to the
// DEFAULT block unconditionally, so the position is never unbounded.
func (e *Evaluator) effectiveLevels(cfg domain.RiskConfig, proposal domain.TradeProposal) (sl, tp float64, usedFallback bool) {
	if cfg.Mode == domain.RiskModeAIPrompt {
		slPct, tpPct, ok := proposedPercents(proposal)
		if ok {
			b := cfg.AI
			slPct = clamp(slPct, b.MinStopLossPercent, b.MaxStopLossPercent)
			tpPct = clamp(tpPct, b.MinTakeProfitPercent, b.MaxTakeProfitPercent)
			sl, tp = levelsFromPercents(proposal, slPct, tpPct)
			return sl, tp, false
		}
		usedFallback = true
	}

	sl, tp = levelsFromPercents(proposal, cfg.Default.StopLossPercent, cfg.Default.TakeProfitPercent)
	return sl, tp, usedFallback
}

// proposedPercents converts LLM-proposed absolute levels to percent
// distances from entry. It reports ok=false when either level is missing,
// non-finite, non-positive, or on the wrong side of the entry price.
func proposedPercents(p domain.TradeProposal) (slPct, tpPct float64, ok bool) {
	if p.ProposedStopLoss == nil || p.ProposedTakeProfit == nil {
		return 0, 0, false
	}
	sl, tp := *p.ProposedStopLoss, *p.ProposedTakeProfit
	if !isFinitePositive(sl) || !isFinitePositive(tp) || p.EntryPrice <= 0 {
		return 0, 0, false
	}

	sign := p.Side.Sign()
	// The stop must be on the losing side of entry and the target on the
	// winning side.
	if sign*(p.EntryPrice-sl) <= 0 || sign*(tp-p.EntryPrice) <= 0 {
		return 0, 0, false
	}

	slPct = math.Abs(p.EntryPrice-sl) / p.EntryPrice * 100
	tpPct = math.Abs(tp-p.EntryPrice) / p.EntryPrice * 100
	return slPct, tpPct, true
}

// levelsFromPercents builds absolute SL/TP prices from percent distances,
// placed on the correct side of entry for the proposal's direction.
func levelsFromPercents(p domain.TradeProposal, slPct, tpPct float64) (sl, tp float64) {
	sign := p.Side.Sign()
	sl = p.EntryPrice * (1 - sign*slPct/100)
	tp = p.EntryPrice * (1 + sign*tpPct/100)
	return sl, tp
}

// sizedQuantity caps the proposed quantity so the loss at the stop never
// exceeds risk_per_trade_percent of the balance, and the notional never
// exceeds max_position_size.
func (e *Evaluator) sizedQuantity(p domain.RiskParams, account domain.AccountState, proposal domain.TradeProposal, riskPerUnit float64) float64 {
	quantity := proposal.Quantity

	if p.RiskPerTradePercent > 0 && riskPerUnit > 0 {
		maxRiskQty := (p.RiskPerTradePercent / 100 * account.Balance) / riskPerUnit
		if maxRiskQty < quantity {
			quantity = maxRiskQty
		}
	}
	if p.MaxPositionSize > 0 && proposal.EntryPrice > 0 {
		maxNotionalQty := p.MaxPositionSize / proposal.EntryPrice
		if maxNotionalQty < quantity {
			quantity = maxNotionalQty
		}
	}
	return quantity
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
