// Package governor owns the per-subscription risk aggregates: daily loss
// accumulation, consecutive-loss streaks, and cooldown engagement. All
// mutation of SubscriptionRiskState flows through this single component.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
)

// Governor serializes access to each subscription's risk state. Aggregates
// are guarded by one in-process lock per subscription and persisted through
// the risk-state store.
type Governor struct {
	states domain.RiskStateStore
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Governor backed by the given risk-state store.
func New(states domain.RiskStateStore, logger *slog.Logger) *Governor {
	return &Governor{
		states: states,
		logger: logger.With(slog.String("component", "governor")),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one subscription's aggregate.
func (g *Governor) lockFor(subscriptionID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.locks[subscriptionID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[subscriptionID] = l
	}
	return l
}

// State returns the current risk state for a subscription, applying the
// daily reset when the wall-clock date has advanced past the last reset
// date. A subscription without recorded state gets a fresh zero aggregate.
func (g *Governor) State(ctx context.Context, subscriptionID string, now time.Time) (domain.SubscriptionRiskState, error) {
	l := g.lockFor(subscriptionID)
	l.Lock()
	defer l.Unlock()

	return g.loadLocked(ctx, subscriptionID, now)
}

// RecordClose folds a completed close into the subscription's aggregate:
// losses extend the streak and the daily loss amount, wins reset the streak.
// When the streak reaches the configured trigger count, a cooldown is
// engaged. It returns the updated state and whether this call engaged a
// cooldown.
func (g *Governor) RecordClose(
	ctx context.Context,
	subscriptionID string,
	realizedPnL float64,
	cooldown *domain.CooldownConfig,
	now time.Time,
) (domain.SubscriptionRiskState, bool, error) {
	l := g.lockFor(subscriptionID)
	l.Lock()
	defer l.Unlock()

	state, err := g.loadLocked(ctx, subscriptionID, now)
	if err != nil {
		return domain.SubscriptionRiskState{}, false, err
	}

	if realizedPnL < 0 {
		state.ConsecutiveLosses++
		state.DailyLossAmount += -realizedPnL
	} else {
		state.ConsecutiveLosses = 0
	}

	engaged := false
	if cooldown != nil && cooldown.Enabled &&
		state.ConsecutiveLosses >= cooldown.TriggerLossCount &&
		!state.InCooldown(now) {
		state.CooldownUntil = now.Add(time.Duration(cooldown.CooldownMinutes) * time.Minute)
		engaged = true

		g.logger.WarnContext(ctx, "cooldown engaged",
			slog.String("subscription_id", subscriptionID),
			slog.Int("consecutive_losses", state.ConsecutiveLosses),
			slog.Time("cooldown_until", state.CooldownUntil),
		)
	}

	state.UpdatedAt = now
	if err := g.states.Upsert(ctx, state); err != nil {
		return domain.SubscriptionRiskState{}, false, fmt.Errorf("governor: persist state %s: %w", subscriptionID, err)
	}

	return state, engaged, nil
}

// loadLocked fetches the state and applies the daily reset when due. The
// caller must hold the subscription lock.
func (g *Governor) loadLocked(ctx context.Context, subscriptionID string, now time.Time) (domain.SubscriptionRiskState, error) {
	state, err := g.states.Get(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SubscriptionRiskState{
				SubscriptionID:    subscriptionID,
				LastLossResetDate: midnight(now),
			}, nil
		}
		return domain.SubscriptionRiskState{}, fmt.Errorf("governor: load state %s: %w", subscriptionID, err)
	}

	if state.NeedsDailyReset(now) {
		state.DailyLossAmount = 0
		state.LastLossResetDate = midnight(now)
		state.UpdatedAt = now
		if err := g.states.Upsert(ctx, state); err != nil {
			return domain.SubscriptionRiskState{}, fmt.Errorf("governor: persist daily reset %s: %w", subscriptionID, err)
		}

		g.logger.InfoContext(ctx, "daily loss counter reset",
			slog.String("subscription_id", subscriptionID),
		)
	}

	return state, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
