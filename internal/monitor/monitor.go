// Package monitor polls open positions against live mark prices, maintains
// unrealized P&L and trailing-stop state, and hands triggered exits to the
// closer.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/botfolio/riskengine/internal/domain"
	"github.com/botfolio/riskengine/internal/metrics"
	"github.com/botfolio/riskengine/pkg/retry"
)

// PositionCloser executes terminal transitions for triggered positions.
type PositionCloser interface {
	Close(ctx context.Context, pos domain.Position, reason domain.ExitReason, markPrice float64) (domain.Position, error)
}

// Config tunes the monitor loop.
type Config struct {
	// Interval between ticks.
	Interval time.Duration
	// Workers bounds concurrent position checks within one tick.
	Workers int
	// BotID optionally scopes the monitor to one bot's positions.
	BotID string
	// PriceMaxAge is how old a cached mark price may be before the monitor
	// falls back to the gateway.
	PriceMaxAge time.Duration
	// GatewayRetry governs retries of gateway price reads.
	GatewayRetry retry.Config
}

// TickResult summarizes one monitor pass.
type TickResult struct {
	Checked int
	Updated int
	Closed  int
	Errors  []domain.TickError
}

// Monitor drives the per-position risk checks. Each tick lists open
// positions and fans them out over a bounded worker pool; a position is
// handled by exactly one worker per tick, and a position whose close is
// committed mid-tick is excluded from further action until the next tick.
type Monitor struct {
	positions domain.PositionStore
	gateway   domain.ExchangeGateway
	prices    domain.PriceCache
	configs   domain.RiskConfigSource
	closer    PositionCloser
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Monitor.
func New(
	positions domain.PositionStore,
	gateway domain.ExchangeGateway,
	prices domain.PriceCache,
	configs domain.RiskConfigSource,
	closer PositionCloser,
	cfg Config,
	logger *slog.Logger,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.PriceMaxAge <= 0 {
		cfg.PriceMaxAge = 10 * time.Second
	}
	return &Monitor{
		positions: positions,
		gateway:   gateway,
		prices:    prices,
		configs:   configs,
		closer:    closer,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "monitor")),
		now:       time.Now,
	}
}

// Run ticks immediately, then on every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitor started",
		slog.Duration("interval", m.cfg.Interval),
		slog.Int("workers", m.cfg.Workers),
	)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		result := m.Tick(ctx)
		if len(result.Errors) > 0 {
			m.logger.WarnContext(ctx, "tick completed with errors",
				slog.Int("checked", result.Checked),
				slog.Int("closed", result.Closed),
				slog.Int("errors", len(result.Errors)),
			)
		}

		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one monitor pass over all open positions. A failure on one
// position never aborts the pass; it is recorded and the remaining positions
// proceed.
func (m *Monitor) Tick(ctx context.Context) TickResult {
	start := m.now()

	open, err := m.positions.ListOpen(ctx, m.cfg.BotID)
	if err != nil {
		m.logger.ErrorContext(ctx, "list open positions failed", slog.Any("error", err))
		return TickResult{Errors: []domain.TickError{{Err: fmt.Errorf("monitor: list open: %w", err)}}}
	}

	metrics.OpenPositions.Set(float64(len(open)))

	var (
		mu     sync.Mutex
		result TickResult
	)
	result.Checked = len(open)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)

	for _, pos := range open {
		pos := pos
		g.Go(func() error {
			outcome, err := m.checkPosition(gctx, pos)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Errors = append(result.Errors, domain.TickError{
					PositionID: pos.ID,
					Symbol:     pos.Symbol,
					Err:        err,
				})
				metrics.TickErrors.Inc()
			case outcome.closed:
				result.Closed++
				metrics.PositionClosures.WithLabelValues(string(outcome.reason)).Inc()
			case outcome.updated:
				result.Updated++
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.TicksTotal.Inc()
	metrics.PositionsChecked.Add(float64(result.Checked))
	metrics.TickDuration.Observe(m.now().Sub(start).Seconds())

	return result
}

type checkOutcome struct {
	closed  bool
	updated bool
	reason  domain.ExitReason
}

// checkPosition runs the full per-position sequence: resolve mark price,
// reconcile against the exchange, update unrealized P&L and trailing state,
// and hand any triggered exit to the closer.
func (m *Monitor) checkPosition(ctx context.Context, pos domain.Position) (checkOutcome, error) {
	mark, err := m.markPrice(ctx, pos.Symbol)
	if err != nil {
		return checkOutcome{}, fmt.Errorf("monitor: mark price %s: %w", pos.Symbol, err)
	}

	// Reconcile with the exchange. A position the exchange no longer holds
	// was liquidated (or closed out of band); record the terminal state
	// rather than monitoring a ghost.
	live, err := m.gateway.GetPosition(ctx, pos.Symbol)
	if err != nil {
		return checkOutcome{}, fmt.Errorf("monitor: live position %s: %w", pos.Symbol, err)
	}
	if live == nil || live.Quantity == 0 {
		m.logger.WarnContext(ctx, "position gone on exchange, recording liquidation",
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
		)
		return m.handOff(ctx, pos, domain.ExitReasonLiquidation, mark)
	}

	cfg, err := m.configs.Get(ctx, pos.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return checkOutcome{}, fmt.Errorf("monitor: position %s references unknown risk profile: %w", pos.ID, domain.ErrDataIntegrity)
		}
		return checkOutcome{}, fmt.Errorf("monitor: risk config %s: %w", pos.SubscriptionID, err)
	}

	// The store restricts these writes to OPEN rows, so a position that went
	// terminal under us is silently left alone.
	if err := m.positions.UpsertUnrealized(ctx, pos.ID, pos.UnrealizedAt(mark), mark); err != nil {
		return checkOutcome{}, fmt.Errorf("monitor: update unrealized %s: %w", pos.ID, err)
	}

	trailing, changed := advanceTrailing(cfg.TrailingStop, pos, mark)
	if changed {
		if err := m.positions.UpdateTrailing(ctx, pos.ID, trailing.Armed, trailing.BestPrice, trailing.TrailingTrigger); err != nil {
			return checkOutcome{}, fmt.Errorf("monitor: update trailing %s: %w", pos.ID, err)
		}
		pos.TrailingArmed = trailing.Armed
		pos.BestFavorablePrice = trailing.BestPrice
		pos.TrailingTrigger = trailing.TrailingTrigger
	}

	reason, triggered := evaluateExit(pos, cfg, trailing, mark, m.now())
	if !triggered {
		return checkOutcome{updated: changed}, nil
	}
	return m.handOff(ctx, pos, reason, mark)
}

// handOff sends a triggered position to the closer. Losing the close race is
// a success: the position went terminal exactly once, by someone else.
func (m *Monitor) handOff(ctx context.Context, pos domain.Position, reason domain.ExitReason, mark float64) (checkOutcome, error) {
	if _, err := m.closer.Close(ctx, pos, reason, mark); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return checkOutcome{}, nil
		}
		return checkOutcome{}, fmt.Errorf("monitor: close %s (%s): %w", pos.ID, reason, err)
	}
	return checkOutcome{closed: true, reason: reason}, nil
}

// markPrice reads the cached mark for a symbol, falling back to the gateway
// on a miss or when the cached entry is older than PriceMaxAge. Gateway
// reads retry transient failures only.
func (m *Monitor) markPrice(ctx context.Context, symbol string) (float64, error) {
	price, ts, err := m.prices.GetPrice(ctx, symbol)
	if err == nil && m.now().Sub(ts) <= m.cfg.PriceMaxAge {
		return price, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		m.logger.DebugContext(ctx, "price cache read failed, using gateway",
			slog.String("symbol", symbol),
			slog.Any("error", err),
		)
	}

	cfg := m.cfg.GatewayRetry
	if cfg.RetryIf == nil {
		cfg.RetryIf = domain.IsTransient
	}
	return retry.DoWithResult(ctx, cfg, func() (float64, error) {
		return m.gateway.GetMarkPrice(ctx, symbol)
	})
}
