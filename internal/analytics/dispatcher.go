package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
	"github.com/botfolio/riskengine/internal/metrics"
)

// governorSink receives close results for quota accounting.
type governorSink interface {
	RecordClose(ctx context.Context, subscriptionID string, realizedPnL float64, cooldown *domain.CooldownConfig, now time.Time) (domain.SubscriptionRiskState, bool, error)
}

// refresher recomputes a bot's performance rollup.
type refresher interface {
	Refresh(ctx context.Context, botID string) (domain.BotPerformance, error)
}

// closePublisher sends close events to the analytics topic.
type closePublisher interface {
	PublishClose(ctx context.Context, event domain.CloseEvent) error
}

const eventTimeout = 30 * time.Second

// Dispatcher decouples the close path from its analytics side effects. The
// closer enqueues events without blocking; a single worker drains the queue
// and runs the governor update, the rollup refresh, and the topic publish.
// Side-effect failures are logged and never revisit the closed position.
type Dispatcher struct {
	governor  governorSink
	rollups   refresher
	publisher closePublisher
	configs   domain.RiskConfigSource
	bus       domain.SignalBus
	queue     chan domain.CloseEvent
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given queue depth. publisher
// and bus may be nil; the corresponding side effects are skipped.
func NewDispatcher(
	governor governorSink,
	rollups refresher,
	publisher closePublisher,
	configs domain.RiskConfigSource,
	bus domain.SignalBus,
	queueSize int,
	logger *slog.Logger,
) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		governor:  governor,
		rollups:   rollups,
		publisher: publisher,
		configs:   configs,
		bus:       bus,
		queue:     make(chan domain.CloseEvent, queueSize),
		logger:    logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch enqueues a close event. It never blocks; when the queue is full
// the event is dropped and counted. The authoritative close record is
// already committed, so a dropped event loses derived data only.
func (d *Dispatcher) Dispatch(event domain.CloseEvent) {
	select {
	case d.queue <- event:
	default:
		metrics.CloseEventsDropped.Inc()
		d.logger.Warn("dispatch queue full, dropping close event",
			slog.String("position_id", event.PositionID),
			slog.String("bot_id", event.BotID),
		)
	}
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "dispatcher started", slog.Int("queue_size", cap(d.queue)))

	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "dispatcher stopped")
			return ctx.Err()
		case event := <-d.queue:
			d.process(ctx, event)
		}
	}
}

func (d *Dispatcher) process(parent context.Context, event domain.CloseEvent) {
	ctx, cancel := context.WithTimeout(parent, eventTimeout)
	defer cancel()

	var cooldown *domain.CooldownConfig
	if cfg, err := d.configs.Get(ctx, event.SubscriptionID); err == nil {
		cooldown = cfg.Cooldown
	} else {
		d.logger.WarnContext(ctx, "risk config lookup failed, governing without cooldown",
			slog.String("subscription_id", event.SubscriptionID),
			slog.Any("error", err),
		)
	}

	state, engaged, err := d.governor.RecordClose(ctx, event.SubscriptionID, event.RealizedPnL, cooldown, event.ClosedAt)
	if err != nil {
		d.logger.ErrorContext(ctx, "governor update failed",
			slog.String("position_id", event.PositionID),
			slog.Any("error", err),
		)
	} else if engaged && d.bus != nil {
		payload, _ := json.Marshal(domain.CooldownEvent{
			SubscriptionID:    state.SubscriptionID,
			ConsecutiveLosses: state.ConsecutiveLosses,
			CooldownUntil:     state.CooldownUntil,
		})
		if err := d.bus.Publish(ctx, domain.ChannelCooldown, payload); err != nil {
			d.logger.ErrorContext(ctx, "cooldown event publish failed",
				slog.String("subscription_id", state.SubscriptionID),
				slog.Any("error", err),
			)
		}
	}

	if _, err := d.rollups.Refresh(ctx, event.BotID); err != nil {
		d.logger.ErrorContext(ctx, "performance refresh failed",
			slog.String("bot_id", event.BotID),
			slog.Any("error", err),
		)
	}

	if d.publisher != nil {
		if err := d.publisher.PublishClose(ctx, event); err != nil {
			d.logger.ErrorContext(ctx, "close event publish failed",
				slog.String("position_id", event.PositionID),
				slog.Any("error", err),
			)
		}
	}
}
