package domain

import "time"

// SubscriptionRiskState is the per-subscription mutable risk aggregate:
// accumulated daily loss, loss streak, and cooldown deadline. It is owned
// exclusively by the governor; no other component mutates it.
type SubscriptionRiskState struct {
	SubscriptionID    string
	DailyLossAmount   float64
	LastLossResetDate time.Time // date (midnight, local) of the last daily reset
	CooldownUntil     time.Time // zero when no cooldown is active
	ConsecutiveLosses int
	UpdatedAt         time.Time
}

// InCooldown reports whether the subscription is still cooling down at now.
func (s SubscriptionRiskState) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// NeedsDailyReset reports whether the wall-clock date has advanced past the
// last reset date, meaning the daily loss counter must be zeroed.
func (s SubscriptionRiskState) NeedsDailyReset(now time.Time) bool {
	y1, m1, d1 := s.LastLossResetDate.Date()
	y2, m2, d2 := now.Date()
	if y2 != y1 {
		return y2 > y1
	}
	if m2 != m1 {
		return m2 > m1
	}
	return d2 > d1
}
