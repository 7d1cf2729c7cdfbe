package domain

import (
	"fmt"
	"time"
)

// RiskMode selects how stop-loss / take-profit levels are sourced.
type RiskMode string

const (
	// RiskModeDefault uses the operator-configured parameters as-is.
	RiskModeDefault RiskMode = "DEFAULT"
	// RiskModeAIPrompt accepts LLM-proposed levels clamped into hard bounds,
	// falling back to the DEFAULT block when the proposal is missing or
	// invalid.
	RiskModeAIPrompt RiskMode = "AI_PROMPT"
)

// RiskParams holds the basic numeric risk bounds shared by both modes.
type RiskParams struct {
	StopLossPercent      float64 `json:"stop_loss_percent"`
	TakeProfitPercent    float64 `json:"take_profit_percent"`
	MaxPositionSize      float64 `json:"max_position_size"`
	MinRiskRewardRatio   float64 `json:"min_risk_reward_ratio"`
	RiskPerTradePercent  float64 `json:"risk_per_trade_percent"`
	MaxLeverage          float64 `json:"max_leverage"`
	MaxPortfolioExposure float64 `json:"max_portfolio_exposure"`
	DailyLossLimitPct    float64 `json:"daily_loss_limit_percent"`
}

// TrailingStopConfig enables a trailing exit trigger that arms once price has
// moved favorably by ActivationPercent from entry and then trails
// TrailingPercent behind the best favorable price.
type TrailingStopConfig struct {
	Enabled           bool    `json:"enabled"`
	ActivationPercent float64 `json:"activation_percent"`
	TrailingPercent   float64 `json:"trailing_percent"`
}

// TradingWindowConfig restricts new-trade admission to the given hours and
// weekdays. Hours are in the subscription's local time, [StartHour, EndHour).
// A window wrapping midnight (StartHour > EndHour) is permitted.
type TradingWindowConfig struct {
	Enabled    bool  `json:"enabled"`
	StartHour  int   `json:"start_hour"`
	EndHour    int   `json:"end_hour"`
	DaysOfWeek []int `json:"days_of_week"` // 0 = Sunday

	// ForceExitOutside additionally closes open positions once the window
	// ends, not just blocks new admissions.
	ForceExitOutside bool `json:"force_exit_outside"`
}

// Covers reports whether t falls inside the window's hours and weekdays.
// A window with StartHour > EndHour wraps midnight; equal hours cover the
// whole day. An empty DaysOfWeek list permits every day.
func (w *TradingWindowConfig) Covers(t time.Time) bool {
	if len(w.DaysOfWeek) > 0 {
		day := int(t.Weekday())
		permitted := false
		for _, d := range w.DaysOfWeek {
			if d == day {
				permitted = true
				break
			}
		}
		if !permitted {
			return false
		}
	}

	h := t.Hour()
	if w.StartHour == w.EndHour {
		return true
	}
	if w.StartHour < w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}

// CooldownConfig suspends new-trade admission after a streak of losses.
type CooldownConfig struct {
	Enabled          bool `json:"enabled"`
	CooldownMinutes  int  `json:"cooldown_minutes"`
	TriggerLossCount int  `json:"trigger_loss_count"`
}

// AIBounds are the hard clamp bounds applied to LLM-proposed levels in
// AI_PROMPT mode. Percentages are relative to entry price.
type AIBounds struct {
	MinStopLossPercent   float64 `json:"ai_min_stop_loss"`
	MaxStopLossPercent   float64 `json:"ai_max_stop_loss"`
	MinTakeProfitPercent float64 `json:"ai_min_take_profit"`
	MaxTakeProfitPercent float64 `json:"ai_max_take_profit"`
}

// RiskConfig is the per-subscription risk profile. It is a tagged union on
// Mode: DEFAULT uses Default alone; AI_PROMPT additionally carries AI clamp
// bounds and always keeps Default reachable as the fail-closed fallback.
type RiskConfig struct {
	Mode    RiskMode   `json:"mode"`
	Default RiskParams `json:"default"`
	AI      *AIBounds  `json:"ai,omitempty"`

	TrailingStop  *TrailingStopConfig  `json:"trailing_stop,omitempty"`
	TradingWindow *TradingWindowConfig `json:"trading_window,omitempty"`
	Cooldown      *CooldownConfig      `json:"cooldown,omitempty"`
}

// Validate checks the numeric bounds of the configuration. A config that
// fails validation must never admit trades.
func (c RiskConfig) Validate() error {
	switch c.Mode {
	case RiskModeDefault, RiskModeAIPrompt:
	default:
		return fmt.Errorf("%w: unknown risk mode %q", ErrInvalidConfig, c.Mode)
	}

	p := c.Default
	if p.StopLossPercent <= 0 {
		return fmt.Errorf("%w: stop_loss_percent must be > 0, got %v", ErrInvalidConfig, p.StopLossPercent)
	}
	if p.TakeProfitPercent <= 0 {
		return fmt.Errorf("%w: take_profit_percent must be > 0, got %v", ErrInvalidConfig, p.TakeProfitPercent)
	}
	if p.MinRiskRewardRatio < 0.5 {
		return fmt.Errorf("%w: min_risk_reward_ratio must be >= 0.5, got %v", ErrInvalidConfig, p.MinRiskRewardRatio)
	}
	if p.MaxLeverage < 1 || p.MaxLeverage > 125 {
		return fmt.Errorf("%w: max_leverage must be in [1,125], got %v", ErrInvalidConfig, p.MaxLeverage)
	}
	if p.DailyLossLimitPct < 1 || p.DailyLossLimitPct > 50 {
		return fmt.Errorf("%w: daily_loss_limit_percent must be in [1,50], got %v", ErrInvalidConfig, p.DailyLossLimitPct)
	}

	if c.Mode == RiskModeAIPrompt {
		if c.AI == nil {
			return fmt.Errorf("%w: AI_PROMPT mode requires ai bounds", ErrInvalidConfig)
		}
		b := c.AI
		if b.MinStopLossPercent <= 0 || b.MaxStopLossPercent < b.MinStopLossPercent {
			return fmt.Errorf("%w: ai stop-loss bounds invalid [%v,%v]", ErrInvalidConfig, b.MinStopLossPercent, b.MaxStopLossPercent)
		}
		if b.MinTakeProfitPercent <= 0 || b.MaxTakeProfitPercent < b.MinTakeProfitPercent {
			return fmt.Errorf("%w: ai take-profit bounds invalid [%v,%v]", ErrInvalidConfig, b.MinTakeProfitPercent, b.MaxTakeProfitPercent)
		}
	}

	if w := c.TradingWindow; w != nil && w.Enabled {
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
			return fmt.Errorf("%w: trading window hours must be in [0,23]", ErrInvalidConfig)
		}
		for _, d := range w.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: trading window day %d out of range", ErrInvalidConfig, d)
			}
		}
	}

	if cd := c.Cooldown; cd != nil && cd.Enabled {
		if cd.CooldownMinutes <= 0 || cd.TriggerLossCount <= 0 {
			return fmt.Errorf("%w: cooldown requires positive minutes and trigger count", ErrInvalidConfig)
		}
	}

	return nil
}
