package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botfolio/riskengine/internal/domain"
)

func baseConfig() domain.RiskConfig {
	return domain.RiskConfig{
		Mode: domain.RiskModeDefault,
		Default: domain.RiskParams{
			StopLossPercent:      2,
			TakeProfitPercent:    4,
			MaxPositionSize:      10000,
			MinRiskRewardRatio:   2,
			RiskPerTradePercent:  1,
			MaxLeverage:          10,
			MaxPortfolioExposure: 50000,
			DailyLossLimitPct:    5,
		},
	}
}

func baseProposal() domain.TradeProposal {
	return domain.TradeProposal{
		SubscriptionID: "sub-1",
		Symbol:         "BTCUSDT",
		Side:           domain.SideLong,
		Quantity:       10,
		EntryPrice:     100,
		Leverage:       3,
	}
}

func ptr(v float64) *float64 { return &v }

func TestEvaluateRejections(t *testing.T) {
	e := NewEvaluator()
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC) // Tuesday 14:00
	account := domain.AccountState{Balance: 10000}

	t.Run("outside trading window", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TradingWindow = &domain.TradingWindowConfig{
			Enabled:   true,
			StartHour: 9,
			EndHour:   12,
		}

		decision, err := e.Evaluate(cfg, domain.SubscriptionRiskState{}, account, baseProposal(), now)
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.RejectOutsideTradingWindow, decision.Reason)
	})

	t.Run("in cooldown", func(t *testing.T) {
		state := domain.SubscriptionRiskState{CooldownUntil: now.Add(30 * time.Minute)}

		decision, err := e.Evaluate(baseConfig(), state, account, baseProposal(), now)
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.RejectInCooldown, decision.Reason)
	})

	t.Run("daily loss limit hit", func(t *testing.T) {
		// Limit is 5% of a 10000 balance, so 500 of accumulated loss blocks.
		state := domain.SubscriptionRiskState{
			DailyLossAmount:   600,
			LastLossResetDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		}

		decision, err := e.Evaluate(baseConfig(), state, account, baseProposal(), now)
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.RejectDailyLossLimitHit, decision.Reason)
	})

	t.Run("stale daily loss never blocks once the reset is due", func(t *testing.T) {
		state := domain.SubscriptionRiskState{
			DailyLossAmount:   600,
			LastLossResetDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		}

		decision, err := e.Evaluate(baseConfig(), state, account, baseProposal(), now)
		require.NoError(t, err)
		assert.True(t, decision.Approved)
	})

	t.Run("notional above max position size", func(t *testing.T) {
		proposal := baseProposal()
		proposal.Quantity = 200 // 20000 notional against a 10000 cap

		decision, err := e.Evaluate(baseConfig(), domain.SubscriptionRiskState{}, account, proposal, now)
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.RejectExposureExceeded, decision.Reason)
	})

	t.Run("portfolio exposure exceeded", func(t *testing.T) {
		acct := account
		acct.OpenExposure = 49500

		decision, err := e.Evaluate(baseConfig(), domain.SubscriptionRiskState{}, acct, baseProposal(), now)
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.RejectExposureExceeded, decision.Reason)
	})

	t.Run("leverage above maximum", func(t *testing.T) {
		proposal := baseProposal()
		proposal.Leverage = 25

		decision, err := e.Evaluate(baseConfig(), domain.SubscriptionRiskState{}, account, proposal, now)
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.RejectExposureExceeded, decision.Reason)
	})

	t.Run("risk reward below minimum", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Default.MinRiskRewardRatio = 2.5 // defaults yield 4% / 2% = 2.0

		decision, err := e.Evaluate(cfg, domain.SubscriptionRiskState{}, account, baseProposal(), now)
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.Equal(t, domain.RejectRRTooLow, decision.Reason)
	})
}

func TestEvaluateApproval(t *testing.T) {
	e := NewEvaluator()
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	account := domain.AccountState{Balance: 10000}

	t.Run("long levels from default percents", func(t *testing.T) {
		decision, err := e.Evaluate(baseConfig(), domain.SubscriptionRiskState{}, account, baseProposal(), now)
		require.NoError(t, err)
		require.True(t, decision.Approved)
		assert.InDelta(t, 98, decision.EffectiveSL, 1e-9)
		assert.InDelta(t, 104, decision.EffectiveTP, 1e-9)
		assert.Equal(t, 10.0, decision.Quantity)
		assert.False(t, decision.UsedFallbackParams)
	})

	t.Run("short levels mirror around entry", func(t *testing.T) {
		proposal := baseProposal()
		proposal.Side = domain.SideShort

		decision, err := e.Evaluate(baseConfig(), domain.SubscriptionRiskState{}, account, proposal, now)
		require.NoError(t, err)
		require.True(t, decision.Approved)
		assert.InDelta(t, 102, decision.EffectiveSL, 1e-9)
		assert.InDelta(t, 96, decision.EffectiveTP, 1e-9)
	})

	t.Run("quantity capped by risk per trade", func(t *testing.T) {
		proposal := baseProposal()
		proposal.Quantity = 100

		// 1% of 10000 is 100 of risk budget; 2 of risk per unit caps at 50.
		decision, err := e.Evaluate(baseConfig(), domain.SubscriptionRiskState{}, account, proposal, now)
		require.NoError(t, err)
		require.True(t, decision.Approved)
		assert.InDelta(t, 50, decision.Quantity, 1e-9)
	})
}

func TestEvaluateAIMode(t *testing.T) {
	e := NewEvaluator()
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	account := domain.AccountState{Balance: 10000}

	aiConfig := func() domain.RiskConfig {
		cfg := baseConfig()
		cfg.Mode = domain.RiskModeAIPrompt
		cfg.AI = &domain.AIBounds{
			MinStopLossPercent:   1,
			MaxStopLossPercent:   3,
			MinTakeProfitPercent: 2,
			MaxTakeProfitPercent: 6,
		}
		return cfg
	}

	t.Run("proposed levels clamped into bounds", func(t *testing.T) {
		proposal := baseProposal()
		proposal.ProposedStopLoss = ptr(95.0)    // 5% gets clamped to 3%
		proposal.ProposedTakeProfit = ptr(110.0) // 10% gets clamped to 6%

		decision, err := e.Evaluate(aiConfig(), domain.SubscriptionRiskState{}, account, proposal, now)
		require.NoError(t, err)
		require.True(t, decision.Approved)
		assert.InDelta(t, 97, decision.EffectiveSL, 1e-9)
		assert.InDelta(t, 106, decision.EffectiveTP, 1e-9)
		assert.False(t, decision.UsedFallbackParams)
	})

	t.Run("in-bounds proposal used as is", func(t *testing.T) {
		proposal := baseProposal()
		proposal.ProposedStopLoss = ptr(98.0)    // 2%
		proposal.ProposedTakeProfit = ptr(105.0) // 5%

		decision, err := e.Evaluate(aiConfig(), domain.SubscriptionRiskState{}, account, proposal, now)
		require.NoError(t, err)
		require.True(t, decision.Approved)
		assert.InDelta(t, 98, decision.EffectiveSL, 1e-9)
		assert.InDelta(t, 105, decision.EffectiveTP, 1e-9)
	})

	t.Run("missing proposal falls back to defaults", func(t *testing.T) {
		decision, err := e.Evaluate(aiConfig(), domain.SubscriptionRiskState{}, account, baseProposal(), now)
		require.NoError(t, err)
		require.True(t, decision.Approved)
		assert.InDelta(t, 98, decision.EffectiveSL, 1e-9)
		assert.InDelta(t, 104, decision.EffectiveTP, 1e-9)
		assert.True(t, decision.UsedFallbackParams)
	})

	t.Run("stop on the wrong side of entry falls back", func(t *testing.T) {
		proposal := baseProposal()
		proposal.ProposedStopLoss = ptr(105.0) // above entry for a LONG
		proposal.ProposedTakeProfit = ptr(110.0)

		decision, err := e.Evaluate(aiConfig(), domain.SubscriptionRiskState{}, account, proposal, now)
		require.NoError(t, err)
		require.True(t, decision.Approved)
		assert.True(t, decision.UsedFallbackParams)
		assert.InDelta(t, 98, decision.EffectiveSL, 1e-9)
	})

	t.Run("non-positive proposal falls back", func(t *testing.T) {
		proposal := baseProposal()
		proposal.ProposedStopLoss = ptr(-1.0)
		proposal.ProposedTakeProfit = ptr(110.0)

		decision, err := e.Evaluate(aiConfig(), domain.SubscriptionRiskState{}, account, proposal, now)
		require.NoError(t, err)
		require.True(t, decision.Approved)
		assert.True(t, decision.UsedFallbackParams)
	})
}

func TestEvaluateInvalidConfig(t *testing.T) {
	e := NewEvaluator()
	now := time.Now()

	cfg := baseConfig()
	cfg.Default.MaxLeverage = 0

	_, err := e.Evaluate(cfg, domain.SubscriptionRiskState{}, domain.AccountState{Balance: 10000}, baseProposal(), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
