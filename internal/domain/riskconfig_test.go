package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingWindowCovers(t *testing.T) {
	// 2026-03-10 is a Tuesday.
	at := func(hour int) time.Time {
		return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
	}

	tests := []struct {
		name   string
		window TradingWindowConfig
		when   time.Time
		want   bool
	}{
		{
			name:   "inside plain window",
			window: TradingWindowConfig{StartHour: 9, EndHour: 17},
			when:   at(12),
			want:   true,
		},
		{
			name:   "end hour is exclusive",
			window: TradingWindowConfig{StartHour: 9, EndHour: 17},
			when:   at(17),
			want:   false,
		},
		{
			name:   "before start",
			window: TradingWindowConfig{StartHour: 9, EndHour: 17},
			when:   at(8),
			want:   false,
		},
		{
			name:   "wrapping window covers late evening",
			window: TradingWindowConfig{StartHour: 22, EndHour: 6},
			when:   at(23),
			want:   true,
		},
		{
			name:   "wrapping window covers early morning",
			window: TradingWindowConfig{StartHour: 22, EndHour: 6},
			when:   at(3),
			want:   true,
		},
		{
			name:   "wrapping window excludes midday",
			window: TradingWindowConfig{StartHour: 22, EndHour: 6},
			when:   at(12),
			want:   false,
		},
		{
			name:   "equal hours cover the whole day",
			window: TradingWindowConfig{StartHour: 0, EndHour: 0},
			when:   at(15),
			want:   true,
		},
		{
			name:   "weekday permitted",
			window: TradingWindowConfig{StartHour: 9, EndHour: 17, DaysOfWeek: []int{1, 2, 3, 4, 5}},
			when:   at(12),
			want:   true,
		},
		{
			name:   "weekday excluded",
			window: TradingWindowConfig{StartHour: 9, EndHour: 17, DaysOfWeek: []int{6, 0}},
			when:   at(12),
			want:   false,
		},
		{
			name:   "empty day list permits every day",
			window: TradingWindowConfig{StartHour: 9, EndHour: 17, DaysOfWeek: nil},
			when:   at(12),
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Covers(tt.when))
		})
	}
}

func validConfig() RiskConfig {
	return RiskConfig{
		Mode: RiskModeDefault,
		Default: RiskParams{
			StopLossPercent:    2,
			TakeProfitPercent:  4,
			MinRiskRewardRatio: 2,
			MaxLeverage:        10,
			DailyLossLimitPct:  5,
		},
	}
}

func TestRiskConfigValidate(t *testing.T) {
	t.Run("valid default config", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("valid ai config", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = RiskModeAIPrompt
		cfg.AI = &AIBounds{
			MinStopLossPercent:   1,
			MaxStopLossPercent:   3,
			MinTakeProfitPercent: 2,
			MaxTakeProfitPercent: 6,
		}
		require.NoError(t, cfg.Validate())
	})

	mutations := []struct {
		name   string
		mutate func(*RiskConfig)
	}{
		{"unknown mode", func(c *RiskConfig) { c.Mode = "YOLO" }},
		{"zero stop loss", func(c *RiskConfig) { c.Default.StopLossPercent = 0 }},
		{"zero take profit", func(c *RiskConfig) { c.Default.TakeProfitPercent = 0 }},
		{"rr below floor", func(c *RiskConfig) { c.Default.MinRiskRewardRatio = 0.4 }},
		{"leverage below one", func(c *RiskConfig) { c.Default.MaxLeverage = 0.5 }},
		{"leverage above cap", func(c *RiskConfig) { c.Default.MaxLeverage = 200 }},
		{"daily limit too small", func(c *RiskConfig) { c.Default.DailyLossLimitPct = 0.5 }},
		{"daily limit too large", func(c *RiskConfig) { c.Default.DailyLossLimitPct = 80 }},
		{"ai mode without bounds", func(c *RiskConfig) { c.Mode = RiskModeAIPrompt }},
		{"inverted ai stop bounds", func(c *RiskConfig) {
			c.Mode = RiskModeAIPrompt
			c.AI = &AIBounds{MinStopLossPercent: 3, MaxStopLossPercent: 1, MinTakeProfitPercent: 2, MaxTakeProfitPercent: 6}
		}},
		{"window hour out of range", func(c *RiskConfig) {
			c.TradingWindow = &TradingWindowConfig{Enabled: true, StartHour: 25, EndHour: 6}
		}},
		{"window day out of range", func(c *RiskConfig) {
			c.TradingWindow = &TradingWindowConfig{Enabled: true, StartHour: 9, EndHour: 17, DaysOfWeek: []int{7}}
		}},
		{"cooldown without trigger count", func(c *RiskConfig) {
			c.Cooldown = &CooldownConfig{Enabled: true, CooldownMinutes: 60}
		}},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
