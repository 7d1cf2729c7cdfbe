package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botfolio/riskengine/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, bot_id, subscription_id, prompt_id, risk_profile_id,
	symbol, side, quantity, entry_price, entry_time,
	stop_loss, take_profit,
	trailing_armed, best_favorable_price, trailing_trigger,
	status, exit_price, exit_time, exit_reason,
	realized_pnl, unrealized_pnl, pnl_percent,
	planned_rr, actual_rr, fees_paid, slippage, duration_minutes,
	last_updated_price`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string
	var exitReason *string

	err := row.Scan(
		&p.ID, &p.BotID, &p.SubscriptionID, &p.PromptID, &p.RiskProfileID,
		&p.Symbol, &side, &p.Quantity, &p.EntryPrice, &p.EntryTime,
		&p.StopLoss, &p.TakeProfit,
		&p.TrailingArmed, &p.BestFavorablePrice, &p.TrailingTrigger,
		&status, &p.ExitPrice, &p.ExitTime, &exitReason,
		&p.RealizedPnL, &p.UnrealizedPnL, &p.PnLPercent,
		&p.PlannedRR, &p.ActualRR, &p.FeesPaid, &p.Slippage, &p.DurationMinutes,
		&p.LastUpdatedPrice,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	if exitReason != nil {
		r := domain.ExitReason(*exitReason)
		p.ExitReason = &r
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new OPEN position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, bot_id, subscription_id, prompt_id, risk_profile_id,
			symbol, side, quantity, entry_price, entry_time,
			stop_loss, take_profit,
			trailing_armed, best_favorable_price, trailing_trigger,
			status, planned_rr, fees_paid, last_updated_price, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.BotID, p.SubscriptionID, p.PromptID, p.RiskProfileID,
		p.Symbol, string(p.Side), p.Quantity, p.EntryPrice, p.EntryTime,
		p.StopLoss, p.TakeProfit,
		p.TrailingArmed, p.BestFavorablePrice, p.TrailingTrigger,
		string(p.Status), p.PlannedRR, p.FeesPaid, p.LastUpdatedPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns all OPEN positions, optionally scoped to one bot.
func (s *PositionStore) ListOpen(ctx context.Context, botID string) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status = 'OPEN'`
	args := []any{}
	if botID != "" {
		query += ` AND bot_id = $1`
		args = append(args, botID)
	}
	query += ` ORDER BY entry_time ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// UpsertUnrealized writes the per-tick mark-to-market fields. The write is
// idempotent (same inputs, same row) and restricted to OPEN positions so a
// late-arriving tick cannot touch a position that closed meanwhile.
func (s *PositionStore) UpsertUnrealized(ctx context.Context, id string, unrealizedPnL, markPrice float64) error {
	const query = `
		UPDATE positions SET
			unrealized_pnl     = $2,
			last_updated_price = $3,
			updated_at         = NOW()
		WHERE id = $1 AND status = 'OPEN'`

	if _, err := s.pool.Exec(ctx, query, id, unrealizedPnL, markPrice); err != nil {
		return fmt.Errorf("postgres: upsert unrealized pnl %s: %w", id, err)
	}
	return nil
}

// UpdateTrailing persists trailing-stop state for an OPEN position.
func (s *PositionStore) UpdateTrailing(ctx context.Context, id string, armed bool, bestPrice, trigger float64) error {
	const query = `
		UPDATE positions SET
			trailing_armed       = $2,
			best_favorable_price = $3,
			trailing_trigger     = $4,
			updated_at           = NOW()
		WHERE id = $1 AND status = 'OPEN'`

	if _, err := s.pool.Exec(ctx, query, id, armed, bestPrice, trigger); err != nil {
		return fmt.Errorf("postgres: update trailing %s: %w", id, err)
	}
	return nil
}

// Close transitions a position to its terminal state. The UPDATE is guarded
// on the current status still being OPEN; when a concurrent caller won the
// race, zero rows are affected and ErrConflict is returned so the loser can
// treat it as a benign no-op.
func (s *PositionStore) Close(ctx context.Context, id string, rec domain.CloseRecord) error {
	const query = `
		UPDATE positions SET
			status           = $2,
			exit_price       = $3,
			exit_time        = $4,
			exit_reason      = $5,
			realized_pnl     = $6,
			pnl_percent      = $7,
			actual_rr        = $8,
			duration_minutes = $9,
			fees_paid        = $10,
			slippage         = $11,
			unrealized_pnl   = 0,
			updated_at       = NOW()
		WHERE id = $1 AND status = 'OPEN'`

	tag, err := s.pool.Exec(ctx, query,
		id, string(rec.Status),
		rec.ExitPrice, rec.ExitTime, string(rec.ExitReason),
		rec.RealizedPnL, rec.PnLPercent, rec.ActualRR, rec.DurationMinutes,
		rec.FeesPaid, rec.Slippage,
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ListClosedByBot returns all terminal positions for a bot, ordered by exit
// time so repeated aggregation runs see a stable ordering.
func (s *PositionStore) ListClosedByBot(ctx context.Context, botID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE bot_id = $1 AND status IN ('CLOSED', 'STOPPED_OUT')
		 ORDER BY exit_time ASC`, botID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions for bot %s: %w", botID, err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns terminal positions with an exit time strictly
// before the cutoff, for archival.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status IN ('CLOSED', 'STOPPED_OUT') AND exit_time < $1
		 ORDER BY exit_time ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions before %s: %w", before, err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
