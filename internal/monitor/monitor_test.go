package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botfolio/riskengine/internal/domain"
	"github.com/botfolio/riskengine/pkg/retry"
)

type fakePositionStore struct {
	mu         sync.Mutex
	open       []domain.Position
	unrealized map[string]float64
	trailing   map[string]TrailingState
}

func (f *fakePositionStore) Create(context.Context, domain.Position) error { return nil }
func (f *fakePositionStore) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}
func (f *fakePositionStore) ListOpen(context.Context, string) ([]domain.Position, error) {
	return f.open, nil
}
func (f *fakePositionStore) UpsertUnrealized(_ context.Context, id string, pnl, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unrealized == nil {
		f.unrealized = make(map[string]float64)
	}
	f.unrealized[id] = pnl
	return nil
}
func (f *fakePositionStore) UpdateTrailing(_ context.Context, id string, armed bool, best, trigger float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trailing == nil {
		f.trailing = make(map[string]TrailingState)
	}
	f.trailing[id] = TrailingState{Armed: armed, BestPrice: best, TrailingTrigger: trigger}
	return nil
}
func (f *fakePositionStore) Close(context.Context, string, domain.CloseRecord) error { return nil }
func (f *fakePositionStore) ListClosedByBot(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakePositionStore) ListClosedBefore(context.Context, time.Time) ([]domain.Position, error) {
	return nil, nil
}

type fakeGateway struct {
	live      map[string]*domain.LivePosition
	marks     map[string]float64
	markCalls int
}

func (f *fakeGateway) GetMarkPrice(_ context.Context, symbol string) (float64, error) {
	f.markCalls++
	price, ok := f.marks[symbol]
	if !ok {
		return 0, domain.Permanent(errors.New("unknown symbol"))
	}
	return price, nil
}

func (f *fakeGateway) GetPosition(_ context.Context, symbol string) (*domain.LivePosition, error) {
	return f.live[symbol], nil
}

func (f *fakeGateway) ClosePosition(context.Context, string, float64, domain.Side) (domain.CloseFill, error) {
	return domain.CloseFill{}, errors.New("not implemented")
}

type fakePriceCache struct {
	prices map[string]float64
	at     time.Time
}

func (f *fakePriceCache) SetPrice(context.Context, string, float64, time.Time) error { return nil }
func (f *fakePriceCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return price, f.at, nil
}
func (f *fakePriceCache) GetPrices(context.Context, []string) (map[string]float64, error) {
	return f.prices, nil
}

type fakeConfigSource struct {
	configs map[string]domain.RiskConfig
}

func (f *fakeConfigSource) Get(_ context.Context, subscriptionID string) (domain.RiskConfig, error) {
	cfg, ok := f.configs[subscriptionID]
	if !ok {
		return domain.RiskConfig{}, domain.ErrNotFound
	}
	return cfg, nil
}

type closeCall struct {
	positionID string
	reason     domain.ExitReason
	mark       float64
}

type recordingCloser struct {
	mu    sync.Mutex
	err   error
	calls []closeCall
}

func (r *recordingCloser) Close(_ context.Context, pos domain.Position, reason domain.ExitReason, mark float64) (domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, closeCall{positionID: pos.ID, reason: reason, mark: mark})
	if r.err != nil {
		return domain.Position{}, r.err
	}
	return pos, nil
}

type monitorFixture struct {
	monitor   *Monitor
	positions *fakePositionStore
	gateway   *fakeGateway
	cache     *fakePriceCache
	configs   *fakeConfigSource
	closer    *recordingCloser
	now       time.Time
}

func newMonitorFixture(open ...domain.Position) *monitorFixture {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	f := &monitorFixture{
		positions: &fakePositionStore{open: open},
		gateway: &fakeGateway{
			live:  make(map[string]*domain.LivePosition),
			marks: make(map[string]float64),
		},
		cache:   &fakePriceCache{prices: make(map[string]float64), at: now},
		configs: &fakeConfigSource{configs: make(map[string]domain.RiskConfig)},
		closer:  &recordingCloser{},
		now:     now,
	}
	for _, pos := range open {
		f.gateway.live[pos.Symbol] = &domain.LivePosition{
			Quantity:   pos.Quantity,
			EntryPrice: pos.EntryPrice,
		}
		f.configs.configs[pos.SubscriptionID] = domain.RiskConfig{}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.monitor = New(f.positions, f.gateway, f.cache, f.configs, f.closer, Config{
		Interval:    time.Second,
		Workers:     4,
		PriceMaxAge: 10 * time.Second,
		GatewayRetry: retry.Config{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
		},
	}, logger)
	f.monitor.now = func() time.Time { return f.now }
	return f
}

func openLong(id, sub string) domain.Position {
	return domain.Position{
		ID:             id,
		BotID:          "bot-1",
		SubscriptionID: sub,
		Symbol:         "BTCUSDT",
		Side:           domain.SideLong,
		Quantity:       0.1,
		EntryPrice:     100,
		StopLoss:       98,
		TakeProfit:     104,
		Status:         domain.PositionStatusOpen,
	}
}

func TestMonitorTick(t *testing.T) {
	ctx := context.Background()

	t.Run("breached stop hands the position to the closer", func(t *testing.T) {
		f := newMonitorFixture(openLong("pos-1", "sub-1"))
		f.cache.prices["BTCUSDT"] = 97.5

		result := f.monitor.Tick(ctx)

		assert.Equal(t, 1, result.Checked)
		assert.Equal(t, 1, result.Closed)
		assert.Empty(t, result.Errors)
		require.Len(t, f.closer.calls, 1)
		assert.Equal(t, domain.ExitReasonSLHit, f.closer.calls[0].reason)
		assert.Equal(t, 97.5, f.closer.calls[0].mark)
	})

	t.Run("flat on the exchange records a liquidation", func(t *testing.T) {
		f := newMonitorFixture(openLong("pos-1", "sub-1"))
		f.cache.prices["BTCUSDT"] = 101
		f.gateway.live["BTCUSDT"] = nil

		result := f.monitor.Tick(ctx)

		assert.Equal(t, 1, result.Closed)
		require.Len(t, f.closer.calls, 1)
		assert.Equal(t, domain.ExitReasonLiquidation, f.closer.calls[0].reason)
	})

	t.Run("unrealized pnl is written every pass", func(t *testing.T) {
		f := newMonitorFixture(openLong("pos-1", "sub-1"))
		f.cache.prices["BTCUSDT"] = 101

		result := f.monitor.Tick(ctx)

		assert.Empty(t, result.Errors)
		assert.Zero(t, result.Closed)
		assert.InDelta(t, 0.1, f.positions.unrealized["pos-1"], 1e-9)
	})

	t.Run("trailing state is advanced and persisted", func(t *testing.T) {
		f := newMonitorFixture(openLong("pos-1", "sub-1"))
		f.cache.prices["BTCUSDT"] = 102
		f.configs.configs["sub-1"] = domain.RiskConfig{
			TrailingStop: &domain.TrailingStopConfig{
				Enabled:           true,
				ActivationPercent: 1,
				TrailingPercent:   0.5,
			},
		}

		result := f.monitor.Tick(ctx)

		assert.Equal(t, 1, result.Updated)
		state, ok := f.positions.trailing["pos-1"]
		require.True(t, ok)
		assert.True(t, state.Armed)
		assert.Equal(t, 102.0, state.BestPrice)
		assert.InDelta(t, 102*(1-0.005), state.TrailingTrigger, 1e-9)
	})

	t.Run("stale cache entry falls back to the gateway", func(t *testing.T) {
		f := newMonitorFixture(openLong("pos-1", "sub-1"))
		f.cache.prices["BTCUSDT"] = 97
		f.cache.at = f.now.Add(-time.Minute)
		f.gateway.marks["BTCUSDT"] = 101

		result := f.monitor.Tick(ctx)

		assert.Zero(t, result.Closed)
		assert.Equal(t, 1, f.gateway.markCalls)
	})

	t.Run("missing risk profile is a data integrity error", func(t *testing.T) {
		f := newMonitorFixture(openLong("pos-1", "sub-1"))
		f.cache.prices["BTCUSDT"] = 101
		delete(f.configs.configs, "sub-1")

		result := f.monitor.Tick(ctx)

		require.Len(t, result.Errors, 1)
		assert.ErrorIs(t, result.Errors[0], domain.ErrDataIntegrity)
		assert.Empty(t, f.closer.calls)
	})

	t.Run("losing the close race is success shaped", func(t *testing.T) {
		f := newMonitorFixture(openLong("pos-1", "sub-1"))
		f.cache.prices["BTCUSDT"] = 97
		f.closer.err = domain.ErrConflict

		result := f.monitor.Tick(ctx)

		assert.Empty(t, result.Errors)
		assert.Zero(t, result.Closed)
	})

	t.Run("one failing position never aborts the pass", func(t *testing.T) {
		good := openLong("pos-1", "sub-1")
		bad := openLong("pos-2", "sub-2")
		bad.Symbol = "ETHUSDT"

		f := newMonitorFixture(good, bad)
		f.cache.prices["BTCUSDT"] = 97
		// No cached or gateway price for ETHUSDT, so pos-2 fails.

		result := f.monitor.Tick(ctx)

		assert.Equal(t, 2, result.Checked)
		assert.Equal(t, 1, result.Closed)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "pos-2", result.Errors[0].PositionID)
	})
}
