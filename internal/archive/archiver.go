// Package archive runs the periodic cold-storage archival of closed
// positions.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
)

// Runner drives the blob archiver on a fixed interval.
type Runner struct {
	archiver      domain.Archiver
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

// NewRunner creates a Runner. Positions closed more than retentionDays ago
// are archived on every run.
func NewRunner(archiver domain.Archiver, retentionDays int, interval time.Duration, logger *slog.Logger) *Runner {
	if retentionDays < 1 {
		retentionDays = 90
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Runner{
		archiver:      archiver,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With(slog.String("component", "archive")),
	}
}

// Run executes a single archive pass. The cutoff is derived from the
// retention window at call time.
func (r *Runner) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)

	archived, err := r.archiver.ArchivePositions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: positions before %v: %w", cutoff, err)
	}

	r.logger.InfoContext(ctx, "archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("positions_archived", archived),
	)
	return nil
}

// RunLoop runs an archive pass immediately and then on every interval until
// the context is cancelled. A failed pass is logged and retried on the next
// tick.
func (r *Runner) RunLoop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", r.interval),
		slog.Int("retention_days", r.retentionDays),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.ErrorContext(ctx, "archive run failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
