// Package closer executes the terminal transition of a position: it submits
// the reduce-only close order, computes the final economics, and commits the
// OPEN to CLOSED / STOPPED_OUT transition exactly once.
package closer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
	"github.com/botfolio/riskengine/pkg/retry"
)

const closeLockTTL = 30 * time.Second

// EventSink receives close events for fire-and-forget post-close processing.
// Delivery must never block and its failure never rolls back a close.
type EventSink interface {
	Dispatch(event domain.CloseEvent)
}

// Config tunes the closer.
type Config struct {
	// TakerFeeRate estimates the exit fee as a fraction of exit notional,
	// added to the fees already accumulated on the position.
	TakerFeeRate float64
	// OrderRetry governs retries of the exchange close order.
	OrderRetry retry.Config
}

// Closer performs position closes. The database status guard is the
// correctness mechanism; the distributed lock only suppresses duplicate
// exchange orders when several processes race on the same position.
type Closer struct {
	positions domain.PositionStore
	gateway   domain.ExchangeGateway
	locks     domain.LockManager
	bus       domain.SignalBus
	audit     domain.AuditStore
	sink      EventSink
	cfg       Config
	logger    *slog.Logger
}

// New creates a Closer. bus, audit and sink may be nil; the corresponding
// post-close steps are skipped.
func New(
	positions domain.PositionStore,
	gateway domain.ExchangeGateway,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	sink EventSink,
	cfg Config,
	logger *slog.Logger,
) *Closer {
	return &Closer{
		positions: positions,
		gateway:   gateway,
		locks:     locks,
		bus:       bus,
		audit:     audit,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "closer")),
	}
}

// Close transitions a position to its terminal state for the given reason.
// markPrice is the price at which the trigger was observed; for LIQUIDATION
// it is also the exit price, since the exchange already flattened the
// position and there is nothing left to sell.
//
// Losing the close race to another actor returns domain.ErrConflict. That is
// a benign outcome: the position was closed exactly once, just not by us.
func (c *Closer) Close(ctx context.Context, pos domain.Position, reason domain.ExitReason, markPrice float64) (domain.Position, error) {
	unlock, err := c.locks.Acquire(ctx, "close:"+pos.ID, closeLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			c.logger.InfoContext(ctx, "close already in flight",
				slog.String("position_id", pos.ID),
				slog.String("exit_reason", string(reason)),
			)
			return domain.Position{}, domain.ErrConflict
		}
		return domain.Position{}, fmt.Errorf("closer: acquire lock %s: %w", pos.ID, err)
	}
	defer unlock()

	exitPrice := markPrice
	orderID := ""
	if reason != domain.ExitReasonLiquidation {
		fill, err := retry.DoWithResult(ctx, c.cfg.OrderRetry, func() (domain.CloseFill, error) {
			return c.gateway.ClosePosition(ctx, pos.Symbol, pos.Quantity, pos.Side)
		})
		if err != nil {
			return domain.Position{}, fmt.Errorf("closer: close order %s %s: %w", pos.ID, pos.Symbol, err)
		}
		exitPrice = fill.FillPrice
		orderID = fill.OrderID
	}

	now := time.Now().UTC()
	record := ComputeClose(pos, reason, exitPrice, markPrice, now, c.cfg.TakerFeeRate)

	if err := c.positions.Close(ctx, pos.ID, record); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			c.logger.InfoContext(ctx, "lost close race, position already terminal",
				slog.String("position_id", pos.ID),
				slog.String("exit_reason", string(reason)),
			)
			return domain.Position{}, domain.ErrConflict
		}
		return domain.Position{}, fmt.Errorf("closer: commit close %s: %w", pos.ID, err)
	}

	closed := applyRecord(pos, record)

	c.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", pos.ID),
		slog.String("bot_id", pos.BotID),
		slog.String("symbol", pos.Symbol),
		slog.String("exit_reason", string(reason)),
		slog.String("status", string(record.Status)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("realized_pnl", record.RealizedPnL),
		slog.String("order_id", orderID),
	)

	c.afterClose(ctx, closed, record)
	return closed, nil
}

// afterClose runs the post-commit side effects. None of them can undo the
// transition; failures are logged and dropped.
func (c *Closer) afterClose(ctx context.Context, pos domain.Position, record domain.CloseRecord) {
	if c.audit != nil {
		if err := c.audit.Log(ctx, "position_closed", map[string]any{
			"position_id":  pos.ID,
			"bot_id":       pos.BotID,
			"symbol":       pos.Symbol,
			"exit_reason":  string(record.ExitReason),
			"status":       string(record.Status),
			"exit_price":   record.ExitPrice,
			"realized_pnl": record.RealizedPnL,
		}); err != nil {
			c.logger.WarnContext(ctx, "audit log failed", slog.String("position_id", pos.ID), slog.Any("error", err))
		}
	}

	event := domain.CloseEvent{
		PositionID:     pos.ID,
		BotID:          pos.BotID,
		SubscriptionID: pos.SubscriptionID,
		PromptID:       pos.PromptID,
		RiskProfileID:  pos.RiskProfileID,
		Symbol:         pos.Symbol,
		Side:           pos.Side,
		ExitReason:     record.ExitReason,
		RealizedPnL:    record.RealizedPnL,
		PnLPercent:     record.PnLPercent,
		ClosedAt:       record.ExitTime,
	}

	if c.bus != nil {
		payload, err := json.Marshal(event)
		if err == nil {
			if err := c.bus.Publish(ctx, domain.ChannelPositionClosed, payload); err != nil {
				c.logger.WarnContext(ctx, "close signal publish failed", slog.String("position_id", pos.ID), slog.Any("error", err))
			}
		}
	}

	if c.sink != nil {
		c.sink.Dispatch(event)
	}
}

// ComputeClose derives the terminal economics of a position. exitPrice is
// the actual fill, triggerPrice the price at which the exit condition was
// observed; the difference between the intended level and the fill is
// recorded as slippage.
func ComputeClose(pos domain.Position, reason domain.ExitReason, exitPrice, triggerPrice float64, exitTime time.Time, takerFeeRate float64) domain.CloseRecord {
	sign := pos.Side.Sign()

	fees := pos.FeesPaid
	if takerFeeRate > 0 {
		fees += takerFeeRate * exitPrice * pos.Quantity
	}

	realized := sign*(exitPrice-pos.EntryPrice)*pos.Quantity - fees

	pnlPct := 0.0
	if notional := pos.Notional(); notional > 0 {
		pnlPct = realized / notional * 100
	}

	actualRR := 0.0
	if riskPerUnit := math.Abs(pos.EntryPrice - pos.StopLoss); riskPerUnit > 0 && pos.StopLoss > 0 {
		actualRR = sign * (exitPrice - pos.EntryPrice) / riskPerUnit
	}

	slippage := 0.0
	if level := intendedLevel(pos, reason); level > 0 {
		slippage = math.Abs(exitPrice - level)
	} else if triggerPrice > 0 {
		slippage = math.Abs(exitPrice - triggerPrice)
	}

	return domain.CloseRecord{
		ExitPrice:       exitPrice,
		ExitReason:      reason,
		ExitTime:        exitTime,
		Status:          reason.TerminalStatus(),
		RealizedPnL:     realized,
		PnLPercent:      pnlPct,
		ActualRR:        actualRR,
		DurationMinutes: exitTime.Sub(pos.EntryTime).Minutes(),
		FeesPaid:        fees,
		Slippage:        slippage,
	}
}

// intendedLevel returns the price the exit was supposed to fill at, when the
// reason has one.
func intendedLevel(pos domain.Position, reason domain.ExitReason) float64 {
	switch reason {
	case domain.ExitReasonSLHit:
		return pos.StopLoss
	case domain.ExitReasonTPHit:
		return pos.TakeProfit
	case domain.ExitReasonTrailingStop:
		return pos.TrailingTrigger
	default:
		return 0
	}
}

func applyRecord(pos domain.Position, record domain.CloseRecord) domain.Position {
	pos.Status = record.Status
	pos.ExitPrice = &record.ExitPrice
	pos.ExitTime = &record.ExitTime
	reason := record.ExitReason
	pos.ExitReason = &reason
	pos.RealizedPnL = record.RealizedPnL
	pos.UnrealizedPnL = 0
	pos.PnLPercent = record.PnLPercent
	pos.ActualRR = record.ActualRR
	pos.FeesPaid = record.FeesPaid
	pos.Slippage = record.Slippage
	pos.DurationMinutes = record.DurationMinutes
	return pos
}
