// Package analytics handles everything that happens after a close commits:
// performance aggregation, the close-event topic, and the asynchronous
// dispatch pipeline that ties them together.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
)

// Aggregator recomputes per-bot performance rollups. Each refresh rescans
// the bot's full closed-position set, so running it twice over the same set
// writes the same rollup.
type Aggregator struct {
	positions domain.PositionStore
	rollups   domain.PerformanceStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(positions domain.PositionStore, rollups domain.PerformanceStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		positions: positions,
		rollups:   rollups,
		logger:    logger.With(slog.String("component", "aggregator")),
		now:       time.Now,
	}
}

// Refresh recomputes and stores the rollup for one bot.
func (a *Aggregator) Refresh(ctx context.Context, botID string) (domain.BotPerformance, error) {
	closed, err := a.positions.ListClosedByBot(ctx, botID)
	if err != nil {
		return domain.BotPerformance{}, fmt.Errorf("analytics: list closed for %s: %w", botID, err)
	}

	perf := ComputePerformance(botID, closed, a.now().UTC())
	if err := a.rollups.Upsert(ctx, perf); err != nil {
		return domain.BotPerformance{}, fmt.Errorf("analytics: store rollup for %s: %w", botID, err)
	}

	a.logger.DebugContext(ctx, "performance rollup refreshed",
		slog.String("bot_id", botID),
		slog.Int("total_trades", perf.TotalTrades),
		slog.Float64("win_rate", perf.WinRate),
	)
	return perf, nil
}

// ComputePerformance folds a set of closed positions into a rollup. A trade
// with zero realized P&L counts as neither win nor loss but still appears in
// the totals. With no losing trades the profit factor is reported as the
// gross profit, since the true ratio has no finite value.
func ComputePerformance(botID string, closed []domain.Position, generatedAt time.Time) domain.BotPerformance {
	perf := domain.BotPerformance{
		BotID:       botID,
		GeneratedAt: generatedAt,
	}

	var (
		grossWin, grossLoss    float64
		tpHits, slHits         int
		rrAchieved, rrEligible int
	)

	for _, p := range closed {
		perf.TotalTrades++
		perf.TotalPnL += p.RealizedPnL

		switch {
		case p.RealizedPnL > 0:
			perf.Wins++
			grossWin += p.RealizedPnL
		case p.RealizedPnL < 0:
			perf.Losses++
			grossLoss += -p.RealizedPnL
		}

		if p.ExitReason != nil {
			switch *p.ExitReason {
			case domain.ExitReasonTPHit:
				tpHits++
			case domain.ExitReasonSLHit:
				slHits++
			}
		}

		if p.PlannedRR > 0 {
			rrEligible++
			if p.ActualRR >= p.PlannedRR {
				rrAchieved++
			}
		}
	}

	if perf.TotalTrades > 0 {
		n := float64(perf.TotalTrades)
		perf.WinRate = float64(perf.Wins) / n * 100
		perf.AvgPnL = perf.TotalPnL / n
		perf.TPHitRate = float64(tpHits) / n * 100
		perf.SLHitRate = float64(slHits) / n * 100
	}
	if perf.Wins > 0 {
		perf.AvgWin = grossWin / float64(perf.Wins)
	}
	if perf.Losses > 0 {
		perf.AvgLoss = -grossLoss / float64(perf.Losses)
	}
	if grossLoss > 0 {
		perf.ProfitFactor = grossWin / grossLoss
	} else {
		perf.ProfitFactor = grossWin
	}
	if rrEligible > 0 {
		perf.RRAchievementRate = float64(rrAchieved) / float64(rrEligible) * 100
	}

	return perf
}
