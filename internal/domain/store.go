package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CloseRecord bundles the terminal fields written when a position is closed.
type CloseRecord struct {
	ExitPrice       float64
	ExitReason      ExitReason
	ExitTime        time.Time
	Status          PositionStatus
	RealizedPnL     float64
	PnLPercent      float64
	ActualRR        float64
	DurationMinutes float64
	FeesPaid        float64
	Slippage        float64
}

// PositionStore persists positions. Positions are never deleted; closed rows
// are archived out of band.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)

	// ListOpen returns all OPEN positions, optionally scoped to one bot
	// (empty botID means all bots).
	ListOpen(ctx context.Context, botID string) ([]Position, error)

	// UpsertUnrealized persists the per-tick mark-to-market fields. The
	// write is idempotent and only applies while the position is OPEN.
	UpsertUnrealized(ctx context.Context, id string, unrealizedPnL, markPrice float64) error

	// UpdateTrailing persists the trailing-stop state. Only applies while
	// the position is OPEN.
	UpdateTrailing(ctx context.Context, id string, armed bool, bestPrice, trigger float64) error

	// Close transitions the position to its terminal state. The update is
	// guarded on the current status being OPEN; it returns ErrConflict when
	// the position was already closed by a concurrent caller.
	Close(ctx context.Context, id string, rec CloseRecord) error

	// ListClosedByBot returns all CLOSED / STOPPED_OUT positions for a bot.
	ListClosedByBot(ctx context.Context, botID string) ([]Position, error)

	// ListClosedBefore returns closed positions whose exit time is strictly
	// before the cutoff, for archival.
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
}

// RiskStateStore persists per-subscription risk aggregates.
type RiskStateStore interface {
	// Get returns the state for a subscription, or ErrNotFound when the
	// subscription has no recorded state yet.
	Get(ctx context.Context, subscriptionID string) (SubscriptionRiskState, error)
	Upsert(ctx context.Context, state SubscriptionRiskState) error
}

// PerformanceStore persists per-bot performance rollups.
type PerformanceStore interface {
	Upsert(ctx context.Context, perf BotPerformance) error
	Get(ctx context.Context, botID string) (BotPerformance, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
