package analytics

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

func closedPosition(pnl float64, reason domain.ExitReason, plannedRR, actualRR float64) domain.Position {
	return domain.Position{
		BotID:       "bot-1",
		Status:      reason.TerminalStatus(),
		ExitReason:  &reason,
		RealizedPnL: pnl,
		PlannedRR:   plannedRR,
		ActualRR:    actualRR,
	}
}

func TestComputePerformance(t *testing.T) {
	generatedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("empty set yields a zero rollup", func(t *testing.T) {
		perf := ComputePerformance("bot-1", nil, generatedAt)
		assert.Equal(t, "bot-1", perf.BotID)
		assert.Zero(t, perf.TotalTrades)
		assert.Zero(t, perf.WinRate)
		assert.Zero(t, perf.ProfitFactor)
		assert.Equal(t, generatedAt, perf.GeneratedAt)
	})

	t.Run("mixed outcomes", func(t *testing.T) {
		closed := []domain.Position{
			closedPosition(100, domain.ExitReasonTPHit, 2, 2.5),
			closedPosition(50, domain.ExitReasonManual, 2, 1),
			closedPosition(-30, domain.ExitReasonSLHit, 0, -1),
			closedPosition(0, domain.ExitReasonTimeout, 0, 0),
		}

		perf := ComputePerformance("bot-1", closed, generatedAt)

		assert.Equal(t, 4, perf.TotalTrades)
		assert.Equal(t, 2, perf.Wins)
		assert.Equal(t, 1, perf.Losses)
		assert.InDelta(t, 50, perf.WinRate, 1e-9)
		assert.InDelta(t, 120, perf.TotalPnL, 1e-9)
		assert.InDelta(t, 30, perf.AvgPnL, 1e-9)
		assert.InDelta(t, 75, perf.AvgWin, 1e-9)
		assert.InDelta(t, -30, perf.AvgLoss, 1e-9)
		assert.InDelta(t, 5, perf.ProfitFactor, 1e-9)
		assert.InDelta(t, 25, perf.TPHitRate, 1e-9)
		assert.InDelta(t, 25, perf.SLHitRate, 1e-9)

		// Two trades carried a planned RR; only one achieved it.
		assert.InDelta(t, 50, perf.RRAchievementRate, 1e-9)
	})

	t.Run("zero pnl counts as neither win nor loss", func(t *testing.T) {
		closed := []domain.Position{
			closedPosition(0, domain.ExitReasonManual, 0, 0),
			closedPosition(0, domain.ExitReasonManual, 0, 0),
		}

		perf := ComputePerformance("bot-1", closed, generatedAt)
		assert.Equal(t, 2, perf.TotalTrades)
		assert.Zero(t, perf.Wins)
		assert.Zero(t, perf.Losses)
		assert.Zero(t, perf.WinRate)
	})

	t.Run("no losses reports gross profit as the factor", func(t *testing.T) {
		closed := []domain.Position{
			closedPosition(80, domain.ExitReasonTPHit, 0, 0),
			closedPosition(20, domain.ExitReasonTPHit, 0, 0),
		}

		perf := ComputePerformance("bot-1", closed, generatedAt)
		assert.InDelta(t, 100, perf.ProfitFactor, 1e-9)
	})

	t.Run("recomputing the same set is a fixed point", func(t *testing.T) {
		closed := []domain.Position{
			closedPosition(100, domain.ExitReasonTPHit, 2, 2.5),
			closedPosition(-40, domain.ExitReasonSLHit, 2, -1),
		}

		first := ComputePerformance("bot-1", closed, generatedAt)
		second := ComputePerformance("bot-1", closed, generatedAt)
		assert.Equal(t, first, second)
	})
}

// fakePositionStore is a no-op base for tests that only need a method or two.
type fakePositionStore struct{}

func (fakePositionStore) Create(context.Context, domain.Position) error { return nil }
func (fakePositionStore) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}
func (fakePositionStore) ListOpen(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}
func (fakePositionStore) UpsertUnrealized(context.Context, string, float64, float64) error {
	return nil
}
func (fakePositionStore) UpdateTrailing(context.Context, string, bool, float64, float64) error {
	return nil
}
func (fakePositionStore) Close(context.Context, string, domain.CloseRecord) error { return nil }
func (fakePositionStore) ListClosedByBot(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}
func (fakePositionStore) ListClosedBefore(context.Context, time.Time) ([]domain.Position, error) {
	return nil, nil
}

type stubPositionLister struct {
	fakePositionStore
	closed []domain.Position
}

func (s *stubPositionLister) ListClosedByBot(context.Context, string) ([]domain.Position, error) {
	return s.closed, nil
}

type stubPerformanceStore struct {
	upserted []domain.BotPerformance
}

func (s *stubPerformanceStore) Upsert(_ context.Context, perf domain.BotPerformance) error {
	s.upserted = append(s.upserted, perf)
	return nil
}

func (s *stubPerformanceStore) Get(context.Context, string) (domain.BotPerformance, error) {
	return domain.BotPerformance{}, domain.ErrNotFound
}

func TestAggregatorRefresh(t *testing.T) {
	positions := &stubPositionLister{closed: []domain.Position{
		closedPosition(100, domain.ExitReasonTPHit, 0, 0),
		closedPosition(-20, domain.ExitReasonSLHit, 0, 0),
	}}
	rollups := &stubPerformanceStore{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := NewAggregator(positions, rollups, logger)

	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return fixed }

	perf, err := agg.Refresh(context.Background(), "bot-1")
	require.NoError(t, err)

	assert.Equal(t, 2, perf.TotalTrades)
	assert.InDelta(t, 80, perf.TotalPnL, 1e-9)
	assert.Equal(t, fixed, perf.GeneratedAt)

	require.Len(t, rollups.upserted, 1)
	assert.Equal(t, perf, rollups.upserted[0])
}
