package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/botfolio/riskengine/internal/domain"
	"github.com/botfolio/riskengine/internal/notify"
	"github.com/botfolio/riskengine/internal/server"
	"github.com/botfolio/riskengine/internal/server/handler"
)

// MonitorMode runs the engine loop without the HTTP API: position monitoring,
// the close-event dispatcher, the price feed, archival, and the notification
// relay.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)
	return g.Wait()
}

// ServerMode runs only the HTTP API. Nothing watches positions; closes happen
// through the manual endpoint.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return a.runNotificationRelay(ctx, deps)
	})
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the engine loop and the HTTP API together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// startEngine adds the engine goroutines to the group: the monitor loop, the
// close-event dispatcher, the websocket feed and archive loop when
// configured, and the notification relay.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	g.Go(func() error {
		return deps.Dispatcher.Run(ctx)
	})
	if deps.Feed != nil {
		g.Go(func() error {
			return deps.Feed.Run(ctx)
		})
	}
	if deps.Archive != nil {
		g.Go(func() error {
			return deps.Archive.RunLoop(ctx)
		})
	}
	g.Go(func() error {
		return a.runNotificationRelay(ctx, deps)
	})
}

// runNotificationRelay forwards close and cooldown events from the bus to the
// configured notification channels. Malformed payloads are logged and
// skipped.
func (a *App) runNotificationRelay(ctx context.Context, deps *Dependencies) error {
	closes, err := deps.Bus.Subscribe(ctx, domain.ChannelPositionClosed)
	if err != nil {
		return fmt.Errorf("notification relay: subscribe %s: %w", domain.ChannelPositionClosed, err)
	}
	cooldowns, err := deps.Bus.Subscribe(ctx, domain.ChannelCooldown)
	if err != nil {
		return fmt.Errorf("notification relay: subscribe %s: %w", domain.ChannelCooldown, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case payload, ok := <-closes:
			if !ok {
				return nil
			}
			var event domain.CloseEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				a.logger.WarnContext(ctx, "notification relay: bad close payload",
					slog.Any("error", err),
				)
				continue
			}
			title, message := notify.FormatClose(event)
			if err := deps.Notifier.Notify(ctx, notify.CloseEventType(event), title, message); err != nil {
				a.logger.WarnContext(ctx, "notification relay: close delivery failed",
					slog.String("position_id", event.PositionID),
					slog.Any("error", err),
				)
			}

		case payload, ok := <-cooldowns:
			if !ok {
				return nil
			}
			var event domain.CooldownEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				a.logger.WarnContext(ctx, "notification relay: bad cooldown payload",
					slog.Any("error", err),
				)
				continue
			}
			title, message := notify.FormatCooldown(event.SubscriptionID, domain.SubscriptionRiskState{
				SubscriptionID:    event.SubscriptionID,
				ConsecutiveLosses: event.ConsecutiveLosses,
				CooldownUntil:     event.CooldownUntil,
			})
			if err := deps.Notifier.Notify(ctx, notify.EventCooldownEngaged, title, message); err != nil {
				a.logger.WarnContext(ctx, "notification relay: cooldown delivery failed",
					slog.String("subscription_id", event.SubscriptionID),
					slog.Any("error", err),
				)
			}
		}
	}
}

// startHTTPServer adds the API server goroutines to the group. The server is
// shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var adv handler.ProposalAdvisor
	if deps.Advisor != nil {
		adv = deps.Advisor
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Health, a.logger),
		Positions:   handler.NewPositionHandler(deps.Positions, deps.Gateway, deps.Closer, a.logger),
		Performance: handler.NewPerformanceHandler(deps.Performance, a.logger),
		Audit:       handler.NewAuditHandler(deps.Audit, a.logger),
		Evaluate:    handler.NewEvaluateHandler(deps.Evaluator, deps.Configs, deps.Governor, adv, deps.Notifier, a.logger),
	}

	var limiter domain.RateLimiter
	if a.cfg.Server.RateLimit > 0 {
		limiter = deps.RateLimiter
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, limiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
