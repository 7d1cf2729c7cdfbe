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

// RiskStateStore implements domain.RiskStateStore using PostgreSQL.
type RiskStateStore struct {
	pool *pgxpool.Pool
}

// NewRiskStateStore creates a new RiskStateStore backed by the given pool.
func NewRiskStateStore(pool *pgxpool.Pool) *RiskStateStore {
	return &RiskStateStore{pool: pool}
}

// Get returns the risk state for a subscription, or domain.ErrNotFound when
// no state has been recorded yet.
func (s *RiskStateStore) Get(ctx context.Context, subscriptionID string) (domain.SubscriptionRiskState, error) {
	const query = `
		SELECT subscription_id, daily_loss_amount, last_loss_reset_date,
		       cooldown_until, consecutive_losses, updated_at
		FROM subscription_risk_states
		WHERE subscription_id = $1`

	var st domain.SubscriptionRiskState
	var cooldownUntil *time.Time

	err := s.pool.QueryRow(ctx, query, subscriptionID).Scan(
		&st.SubscriptionID, &st.DailyLossAmount, &st.LastLossResetDate,
		&cooldownUntil, &st.ConsecutiveLosses, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SubscriptionRiskState{}, domain.ErrNotFound
		}
		return domain.SubscriptionRiskState{}, fmt.Errorf("postgres: get risk state %s: %w", subscriptionID, err)
	}
	if cooldownUntil != nil {
		st.CooldownUntil = *cooldownUntil
	}
	return st, nil
}

// Upsert writes the full risk state for a subscription. A zero CooldownUntil
// is stored as NULL.
func (s *RiskStateStore) Upsert(ctx context.Context, st domain.SubscriptionRiskState) error {
	const query = `
		INSERT INTO subscription_risk_states (
			subscription_id, daily_loss_amount, last_loss_reset_date,
			cooldown_until, consecutive_losses, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (subscription_id) DO UPDATE SET
			daily_loss_amount    = EXCLUDED.daily_loss_amount,
			last_loss_reset_date = EXCLUDED.last_loss_reset_date,
			cooldown_until       = EXCLUDED.cooldown_until,
			consecutive_losses   = EXCLUDED.consecutive_losses,
			updated_at           = NOW()`

	var cooldown *time.Time
	if !st.CooldownUntil.IsZero() {
		cooldown = &st.CooldownUntil
	}

	_, err := s.pool.Exec(ctx, query,
		st.SubscriptionID, st.DailyLossAmount, st.LastLossResetDate,
		cooldown, st.ConsecutiveLosses,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert risk state %s: %w", st.SubscriptionID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RiskStateStore = (*RiskStateStore)(nil)
