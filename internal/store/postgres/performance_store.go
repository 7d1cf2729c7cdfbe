package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botfolio/riskengine/internal/domain"
)

// PerformanceStore implements domain.PerformanceStore using PostgreSQL.
type PerformanceStore struct {
	pool *pgxpool.Pool
}

// NewPerformanceStore creates a new PerformanceStore backed by the given pool.
func NewPerformanceStore(pool *pgxpool.Pool) *PerformanceStore {
	return &PerformanceStore{pool: pool}
}

// Upsert replaces the performance rollup for a bot.
func (s *PerformanceStore) Upsert(ctx context.Context, perf domain.BotPerformance) error {
	const query = `
		INSERT INTO bot_performance (
			bot_id, total_trades, wins, losses, win_rate,
			total_pnl, avg_pnl, avg_win, avg_loss, profit_factor,
			tp_hit_rate, sl_hit_rate, rr_achievement_rate, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (bot_id) DO UPDATE SET
			total_trades        = EXCLUDED.total_trades,
			wins                = EXCLUDED.wins,
			losses              = EXCLUDED.losses,
			win_rate            = EXCLUDED.win_rate,
			total_pnl           = EXCLUDED.total_pnl,
			avg_pnl             = EXCLUDED.avg_pnl,
			avg_win             = EXCLUDED.avg_win,
			avg_loss            = EXCLUDED.avg_loss,
			profit_factor       = EXCLUDED.profit_factor,
			tp_hit_rate         = EXCLUDED.tp_hit_rate,
			sl_hit_rate         = EXCLUDED.sl_hit_rate,
			rr_achievement_rate = EXCLUDED.rr_achievement_rate,
			generated_at        = EXCLUDED.generated_at`

	_, err := s.pool.Exec(ctx, query,
		perf.BotID, perf.TotalTrades, perf.Wins, perf.Losses, perf.WinRate,
		perf.TotalPnL, perf.AvgPnL, perf.AvgWin, perf.AvgLoss, perf.ProfitFactor,
		perf.TPHitRate, perf.SLHitRate, perf.RRAchievementRate, perf.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert performance %s: %w", perf.BotID, err)
	}
	return nil
}

// Get returns the stored performance rollup for a bot.
func (s *PerformanceStore) Get(ctx context.Context, botID string) (domain.BotPerformance, error) {
	const query = `
		SELECT bot_id, total_trades, wins, losses, win_rate,
		       total_pnl, avg_pnl, avg_win, avg_loss, profit_factor,
		       tp_hit_rate, sl_hit_rate, rr_achievement_rate, generated_at
		FROM bot_performance
		WHERE bot_id = $1`

	var perf domain.BotPerformance
	err := s.pool.QueryRow(ctx, query, botID).Scan(
		&perf.BotID, &perf.TotalTrades, &perf.Wins, &perf.Losses, &perf.WinRate,
		&perf.TotalPnL, &perf.AvgPnL, &perf.AvgWin, &perf.AvgLoss, &perf.ProfitFactor,
		&perf.TPHitRate, &perf.SLHitRate, &perf.RRAchievementRate, &perf.GeneratedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BotPerformance{}, domain.ErrNotFound
		}
		return domain.BotPerformance{}, fmt.Errorf("postgres: get performance %s: %w", botID, err)
	}
	return perf, nil
}

// Compile-time interface check.
var _ domain.PerformanceStore = (*PerformanceStore)(nil)
