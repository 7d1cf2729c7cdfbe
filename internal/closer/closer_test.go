package closer

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

func TestComputeClose(t *testing.T) {
	entryTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	exitTime := entryTime.Add(90 * time.Minute)

	t.Run("long take profit", func(t *testing.T) {
		pos := domain.Position{
			Side:       domain.SideLong,
			Quantity:   0.1,
			EntryPrice: 50000,
			EntryTime:  entryTime,
			StopLoss:   49000,
			TakeProfit: 52000,
			FeesPaid:   2.5,
		}

		rec := ComputeClose(pos, domain.ExitReasonTPHit, 52000, 52000, exitTime, 0.0005)

		// Exit fee is 0.0005 * 52000 * 0.1 = 2.6 on top of 2.5 already paid.
		assert.InDelta(t, 5.1, rec.FeesPaid, 1e-9)
		assert.InDelta(t, 194.9, rec.RealizedPnL, 1e-9)
		assert.InDelta(t, 194.9/5000*100, rec.PnLPercent, 1e-9)
		assert.InDelta(t, 2.0, rec.ActualRR, 1e-9)
		assert.InDelta(t, 0, rec.Slippage, 1e-9)
		assert.InDelta(t, 90, rec.DurationMinutes, 1e-9)
		assert.Equal(t, domain.PositionStatusClosed, rec.Status)
		assert.Equal(t, domain.ExitReasonTPHit, rec.ExitReason)
	})

	t.Run("short stop out", func(t *testing.T) {
		pos := domain.Position{
			Side:       domain.SideShort,
			Quantity:   1,
			EntryPrice: 3000,
			EntryTime:  entryTime,
			StopLoss:   3100,
			TakeProfit: 2800,
		}

		rec := ComputeClose(pos, domain.ExitReasonSLHit, 3100, 3100, exitTime, 0)

		assert.InDelta(t, -100, rec.RealizedPnL, 1e-9)
		assert.InDelta(t, -100.0/3000*100, rec.PnLPercent, 1e-9)
		assert.InDelta(t, -1.0, rec.ActualRR, 1e-9)
		assert.Equal(t, domain.PositionStatusStoppedOut, rec.Status)
	})

	t.Run("slippage against the intended level", func(t *testing.T) {
		pos := domain.Position{
			Side:       domain.SideLong,
			Quantity:   1,
			EntryPrice: 100,
			EntryTime:  entryTime,
			StopLoss:   98,
		}

		// Triggered at 97.9, filled at 97.8: slippage measured off the stop.
		rec := ComputeClose(pos, domain.ExitReasonSLHit, 97.8, 97.9, exitTime, 0)
		assert.InDelta(t, 0.2, rec.Slippage, 1e-9)
	})

	t.Run("manual close measures slippage off the trigger", func(t *testing.T) {
		pos := domain.Position{
			Side:       domain.SideLong,
			Quantity:   1,
			EntryPrice: 100,
			EntryTime:  entryTime,
		}

		rec := ComputeClose(pos, domain.ExitReasonManual, 99.5, 100, exitTime, 0)
		assert.InDelta(t, 0.5, rec.Slippage, 1e-9)
		assert.Equal(t, domain.PositionStatusClosed, rec.Status)
	})

	t.Run("liquidation stops out at the mark", func(t *testing.T) {
		pos := domain.Position{
			Side:       domain.SideLong,
			Quantity:   2,
			EntryPrice: 100,
			EntryTime:  entryTime,
			StopLoss:   95,
		}

		rec := ComputeClose(pos, domain.ExitReasonLiquidation, 94, 94, exitTime, 0)
		assert.Equal(t, domain.PositionStatusStoppedOut, rec.Status)
		assert.InDelta(t, -12, rec.RealizedPnL, 1e-9)
	})
}

// --- fakes ---

type fakeLocks struct {
	err      error
	acquired []string
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, key)
	return func() {}, nil
}

type fakeGateway struct {
	fill  domain.CloseFill
	err   error
	calls int
}

func (f *fakeGateway) GetMarkPrice(context.Context, string) (float64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeGateway) GetPosition(context.Context, string) (*domain.LivePosition, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) ClosePosition(_ context.Context, _ string, _ float64, _ domain.Side) (domain.CloseFill, error) {
	f.calls++
	if f.err != nil {
		return domain.CloseFill{}, f.err
	}
	return f.fill, nil
}

type fakePositions struct {
	closeErr error
	closed   map[string]domain.CloseRecord
}

func (f *fakePositions) Create(context.Context, domain.Position) error { return nil }
func (f *fakePositions) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}
func (f *fakePositions) ListOpen(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakePositions) UpsertUnrealized(context.Context, string, float64, float64) error {
	return nil
}
func (f *fakePositions) UpdateTrailing(context.Context, string, bool, float64, float64) error {
	return nil
}
func (f *fakePositions) Close(_ context.Context, id string, rec domain.CloseRecord) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	if f.closed == nil {
		f.closed = make(map[string]domain.CloseRecord)
	}
	f.closed[id] = rec
	return nil
}
func (f *fakePositions) ListClosedByBot(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakePositions) ListClosedBefore(context.Context, time.Time) ([]domain.Position, error) {
	return nil, nil
}

type fakeBus struct {
	mu       sync.Mutex
	channels []string
}

func (f *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeSink struct {
	events []domain.CloseEvent
}

func (f *fakeSink) Dispatch(event domain.CloseEvent) {
	f.events = append(f.events, event)
}

type closerFixture struct {
	closer    *Closer
	locks     *fakeLocks
	gateway   *fakeGateway
	positions *fakePositions
	bus       *fakeBus
	audit     *fakeAudit
	sink      *fakeSink
}

func newCloserFixture() *closerFixture {
	f := &closerFixture{
		locks:     &fakeLocks{},
		gateway:   &fakeGateway{fill: domain.CloseFill{FillPrice: 51950, OrderID: "ord-1"}},
		positions: &fakePositions{},
		bus:       &fakeBus{},
		audit:     &fakeAudit{},
		sink:      &fakeSink{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.closer = New(f.positions, f.gateway, f.locks, f.bus, f.audit, f.sink, Config{
		TakerFeeRate: 0.0005,
		OrderRetry: retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			RetryIf:      domain.IsTransient,
		},
	}, logger)
	return f
}

func openPosition() domain.Position {
	return domain.Position{
		ID:             "pos-1",
		BotID:          "bot-1",
		SubscriptionID: "sub-1",
		Symbol:         "BTCUSDT",
		Side:           domain.SideLong,
		Quantity:       0.1,
		EntryPrice:     50000,
		EntryTime:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		StopLoss:       49000,
		TakeProfit:     52000,
		Status:         domain.PositionStatusOpen,
	}
}

func TestCloserClose(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path commits and fans out", func(t *testing.T) {
		f := newCloserFixture()

		closed, err := f.closer.Close(ctx, openPosition(), domain.ExitReasonTPHit, 52000)
		require.NoError(t, err)

		assert.Equal(t, 1, f.gateway.calls)
		assert.Equal(t, []string{"close:pos-1"}, f.locks.acquired)

		rec, ok := f.positions.closed["pos-1"]
		require.True(t, ok)
		assert.Equal(t, 51950.0, rec.ExitPrice)
		assert.Equal(t, domain.PositionStatusClosed, closed.Status)
		require.NotNil(t, closed.ExitPrice)
		assert.Equal(t, 51950.0, *closed.ExitPrice)

		assert.Equal(t, []string{"position_closed"}, f.audit.events)
		assert.Equal(t, []string{domain.ChannelPositionClosed}, f.bus.channels)
		require.Len(t, f.sink.events, 1)
		assert.Equal(t, "pos-1", f.sink.events[0].PositionID)
		assert.Equal(t, domain.ExitReasonTPHit, f.sink.events[0].ExitReason)
	})

	t.Run("lock held means a close is already in flight", func(t *testing.T) {
		f := newCloserFixture()
		f.locks.err = domain.ErrLockHeld

		_, err := f.closer.Close(ctx, openPosition(), domain.ExitReasonSLHit, 49000)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Zero(t, f.gateway.calls)
	})

	t.Run("losing the store race is benign", func(t *testing.T) {
		f := newCloserFixture()
		f.positions.closeErr = domain.ErrConflict

		_, err := f.closer.Close(ctx, openPosition(), domain.ExitReasonTPHit, 52000)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Empty(t, f.sink.events)
		assert.Empty(t, f.bus.channels)
	})

	t.Run("liquidation never touches the exchange", func(t *testing.T) {
		f := newCloserFixture()

		closed, err := f.closer.Close(ctx, openPosition(), domain.ExitReasonLiquidation, 48000)
		require.NoError(t, err)

		assert.Zero(t, f.gateway.calls)
		require.NotNil(t, closed.ExitPrice)
		assert.Equal(t, 48000.0, *closed.ExitPrice)
		assert.Equal(t, domain.PositionStatusStoppedOut, closed.Status)
	})

	t.Run("transient gateway failure is retried", func(t *testing.T) {
		f := newCloserFixture()
		g := &flakyGateway{failures: 1, fill: domain.CloseFill{FillPrice: 51900}}
		f.closer.gateway = g

		closed, err := f.closer.Close(ctx, openPosition(), domain.ExitReasonTPHit, 52000)
		require.NoError(t, err)
		assert.Equal(t, 2, g.calls)
		require.NotNil(t, closed.ExitPrice)
		assert.Equal(t, 51900.0, *closed.ExitPrice)
	})

	t.Run("permanent gateway failure aborts without committing", func(t *testing.T) {
		f := newCloserFixture()
		f.gateway.err = domain.Permanent(errors.New("unknown symbol"))

		_, err := f.closer.Close(ctx, openPosition(), domain.ExitReasonTPHit, 52000)
		require.Error(t, err)
		assert.Equal(t, 1, f.gateway.calls)
		assert.Empty(t, f.positions.closed)
	})
}

// flakyGateway fails the first failures close attempts with a transient error.
type flakyGateway struct {
	failures int
	fill     domain.CloseFill
	calls    int
}

func (f *flakyGateway) GetMarkPrice(context.Context, string) (float64, error) {
	return 0, errors.New("not implemented")
}

func (f *flakyGateway) GetPosition(context.Context, string) (*domain.LivePosition, error) {
	return nil, errors.New("not implemented")
}

func (f *flakyGateway) ClosePosition(context.Context, string, float64, domain.Side) (domain.CloseFill, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.CloseFill{}, domain.Transient(errors.New("timeout"))
	}
	return f.fill, nil
}
