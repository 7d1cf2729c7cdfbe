package governor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botfolio/riskengine/internal/domain"
)

type fakeStateStore struct {
	states  map[string]domain.SubscriptionRiskState
	upserts int
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]domain.SubscriptionRiskState)}
}

func (f *fakeStateStore) Get(_ context.Context, subscriptionID string) (domain.SubscriptionRiskState, error) {
	state, ok := f.states[subscriptionID]
	if !ok {
		return domain.SubscriptionRiskState{}, domain.ErrNotFound
	}
	return state, nil
}

func (f *fakeStateStore) Upsert(_ context.Context, state domain.SubscriptionRiskState) error {
	f.upserts++
	f.states[state.SubscriptionID] = state
	return nil
}

func testGovernor(store domain.RiskStateStore) *Governor {
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGovernorState(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	t.Run("unknown subscription gets a fresh aggregate", func(t *testing.T) {
		g := testGovernor(newFakeStateStore())

		state, err := g.State(ctx, "sub-1", now)
		require.NoError(t, err)
		assert.Equal(t, "sub-1", state.SubscriptionID)
		assert.Zero(t, state.DailyLossAmount)
		assert.Zero(t, state.ConsecutiveLosses)
		assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), state.LastLossResetDate)
	})

	t.Run("daily reset zeroes the loss counter on a new date", func(t *testing.T) {
		store := newFakeStateStore()
		store.states["sub-1"] = domain.SubscriptionRiskState{
			SubscriptionID:    "sub-1",
			DailyLossAmount:   500,
			ConsecutiveLosses: 2,
			LastLossResetDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		}
		g := testGovernor(store)

		state, err := g.State(ctx, "sub-1", now)
		require.NoError(t, err)
		assert.Zero(t, state.DailyLossAmount)
		assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), state.LastLossResetDate)
		// The streak spans days; only the daily amount resets.
		assert.Equal(t, 2, state.ConsecutiveLosses)
		// The reset is persisted, not just returned.
		assert.Equal(t, 1, store.upserts)
	})

	t.Run("same-day state is returned untouched", func(t *testing.T) {
		store := newFakeStateStore()
		store.states["sub-1"] = domain.SubscriptionRiskState{
			SubscriptionID:    "sub-1",
			DailyLossAmount:   120,
			LastLossResetDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		}
		g := testGovernor(store)

		state, err := g.State(ctx, "sub-1", now)
		require.NoError(t, err)
		assert.Equal(t, 120.0, state.DailyLossAmount)
		assert.Zero(t, store.upserts)
	})
}

func TestGovernorRecordClose(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	cooldown := &domain.CooldownConfig{
		Enabled:          true,
		CooldownMinutes:  60,
		TriggerLossCount: 3,
	}

	t.Run("loss streak engages a cooldown at the trigger count", func(t *testing.T) {
		g := testGovernor(newFakeStateStore())

		for i := 0; i < 2; i++ {
			state, engaged, err := g.RecordClose(ctx, "sub-1", -50, cooldown, now)
			require.NoError(t, err)
			assert.False(t, engaged)
			assert.Equal(t, i+1, state.ConsecutiveLosses)
		}

		state, engaged, err := g.RecordClose(ctx, "sub-1", -50, cooldown, now)
		require.NoError(t, err)
		assert.True(t, engaged)
		assert.Equal(t, 3, state.ConsecutiveLosses)
		assert.Equal(t, now.Add(60*time.Minute), state.CooldownUntil)
		assert.InDelta(t, 150, state.DailyLossAmount, 1e-9)
	})

	t.Run("a win resets the streak", func(t *testing.T) {
		g := testGovernor(newFakeStateStore())

		_, _, err := g.RecordClose(ctx, "sub-1", -50, cooldown, now)
		require.NoError(t, err)
		_, _, err = g.RecordClose(ctx, "sub-1", -50, cooldown, now)
		require.NoError(t, err)

		state, engaged, err := g.RecordClose(ctx, "sub-1", 80, cooldown, now)
		require.NoError(t, err)
		assert.False(t, engaged)
		assert.Zero(t, state.ConsecutiveLosses)
		// Daily loss is an accumulator; wins do not refund it.
		assert.InDelta(t, 100, state.DailyLossAmount, 1e-9)
	})

	t.Run("an active cooldown is not re-engaged or extended", func(t *testing.T) {
		store := newFakeStateStore()
		until := now.Add(30 * time.Minute)
		store.states["sub-1"] = domain.SubscriptionRiskState{
			SubscriptionID:    "sub-1",
			ConsecutiveLosses: 3,
			CooldownUntil:     until,
			LastLossResetDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		}
		g := testGovernor(store)

		state, engaged, err := g.RecordClose(ctx, "sub-1", -50, cooldown, now)
		require.NoError(t, err)
		assert.False(t, engaged)
		assert.Equal(t, until, state.CooldownUntil)
		assert.Equal(t, 4, state.ConsecutiveLosses)
	})

	t.Run("disabled cooldown never engages", func(t *testing.T) {
		g := testGovernor(newFakeStateStore())

		var engaged bool
		var err error
		for i := 0; i < 5; i++ {
			_, engaged, err = g.RecordClose(ctx, "sub-1", -50, nil, now)
			require.NoError(t, err)
			assert.False(t, engaged)
		}
	})

	t.Run("zero pnl close resets the streak", func(t *testing.T) {
		g := testGovernor(newFakeStateStore())

		_, _, err := g.RecordClose(ctx, "sub-1", -50, cooldown, now)
		require.NoError(t, err)

		state, _, err := g.RecordClose(ctx, "sub-1", 0, cooldown, now)
		require.NoError(t, err)
		assert.Zero(t, state.ConsecutiveLosses)
	})
}
