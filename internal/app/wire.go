package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/botfolio/riskengine/internal/advisor"
	"github.com/botfolio/riskengine/internal/analytics"
	"github.com/botfolio/riskengine/internal/archive"
	s3blob "github.com/botfolio/riskengine/internal/blob/s3"
	"github.com/botfolio/riskengine/internal/cache/redis"
	"github.com/botfolio/riskengine/internal/closer"
	"github.com/botfolio/riskengine/internal/config"
	"github.com/botfolio/riskengine/internal/domain"
	"github.com/botfolio/riskengine/internal/exchange/binance"
	"github.com/botfolio/riskengine/internal/feed"
	"github.com/botfolio/riskengine/internal/governor"
	"github.com/botfolio/riskengine/internal/monitor"
	"github.com/botfolio/riskengine/internal/notify"
	"github.com/botfolio/riskengine/internal/risk"
	"github.com/botfolio/riskengine/internal/server/handler"
	"github.com/botfolio/riskengine/internal/store/postgres"
	"github.com/botfolio/riskengine/pkg/retry"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Positions   domain.PositionStore
	RiskStates  domain.RiskStateStore
	Performance domain.PerformanceStore
	Audit       domain.AuditStore

	// Caches and coordination
	Prices      domain.PriceCache
	Configs     domain.RiskConfigSource
	Locks       domain.LockManager
	Bus         domain.SignalBus
	RateLimiter domain.RateLimiter

	// Exchange
	Gateway domain.ExchangeGateway

	// Engine components
	Evaluator  *risk.Evaluator
	Governor   *governor.Governor
	Aggregator *analytics.Aggregator
	Dispatcher *analytics.Dispatcher
	Closer     *closer.Closer
	Monitor    *monitor.Monitor
	Feed       *feed.Feed      // nil when no feed symbols are configured
	Advisor    *advisor.Client // nil when no advisor API key is configured
	Archive    *archive.Runner // nil unless archival is enabled

	// Notifications
	Notifier *notify.Notifier

	// Health checks, keyed by dependency name.
	Health map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	positionStore := postgres.NewPositionStore(pool)
	deps.Positions = positionStore
	deps.RiskStates = postgres.NewRiskStateStore(pool)
	deps.Performance = postgres.NewPerformanceStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Prices = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	defaultRisk := cfg.Risk.Domain()
	deps.Configs = redis.NewConfigSource(redisClient, &defaultRisk)

	// --- Exchange gateway ---
	deps.Gateway = binance.New(binance.Config{
		APIKey:    cfg.Exchange.APIKey,
		SecretKey: cfg.Exchange.SecretKey,
		Testnet:   cfg.Exchange.Testnet,
		Timeout:   cfg.Exchange.Timeout.Duration,
	}, logger)

	// --- Engine components ---
	deps.Evaluator = risk.NewEvaluator()
	deps.Governor = governor.New(deps.RiskStates, logger)
	deps.Aggregator = analytics.NewAggregator(deps.Positions, deps.Performance, logger)

	// Kafka producer; an empty broker list disables publishing.
	if len(cfg.Kafka.Brokers) > 0 {
		producer := analytics.NewProducer(analytics.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		closers = append(closers, func() { _ = producer.Close() })

		deps.Dispatcher = analytics.NewDispatcher(
			deps.Governor, deps.Aggregator, producer, deps.Configs, deps.Bus, 0, logger,
		)
	} else {
		deps.Dispatcher = analytics.NewDispatcher(
			deps.Governor, deps.Aggregator, nil, deps.Configs, deps.Bus, 0, logger,
		)
	}

	orderRetry := retry.DefaultConfig()
	orderRetry.RetryIf = domain.IsTransient

	deps.Closer = closer.New(
		deps.Positions, deps.Gateway, deps.Locks, deps.Bus, deps.Audit, deps.Dispatcher,
		closer.Config{
			TakerFeeRate: cfg.Closer.TakerFeeRate,
			OrderRetry:   orderRetry,
		}, logger,
	)

	gatewayRetry := retry.DefaultConfig()
	gatewayRetry.RetryIf = domain.IsTransient

	deps.Monitor = monitor.New(
		deps.Positions, deps.Gateway, deps.Prices, deps.Configs, deps.Closer,
		monitor.Config{
			Interval:     cfg.Monitor.Interval.Duration,
			Workers:      cfg.Monitor.Workers,
			BotID:        cfg.Monitor.BotID,
			PriceMaxAge:  cfg.Monitor.PriceMaxAge.Duration,
			GatewayRetry: gatewayRetry,
		}, logger,
	)

	// Websocket mark-price feed.
	if len(cfg.Exchange.FeedSymbols) > 0 {
		deps.Feed = feed.New(feed.Config{
			Testnet: cfg.Exchange.Testnet,
			Symbols: cfg.Exchange.FeedSymbols,
		}, deps.Prices, logger)
	}

	// LLM advisor for AI_PROMPT subscriptions.
	if cfg.Advisor.APIKey != "" {
		deps.Advisor = advisor.New(advisor.Config{
			APIKey:  cfg.Advisor.APIKey,
			BaseURL: cfg.Advisor.BaseURL,
			Model:   cfg.Advisor.Model,
			Timeout: cfg.Advisor.Timeout.Duration,
		}, logger)
	}

	// --- S3 cold-storage archival ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		archiver := s3blob.NewArchiver(s3blob.NewWriter(s3Client), positionStore, deps.Audit)
		deps.Archive = archive.NewRunner(
			archiver,
			cfg.Archive.RetentionDays,
			cfg.Archive.Interval.Duration,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	deps.Health = map[string]handler.Pinger{
		"postgres": pgClient,
		"redis":    redisClient,
	}

	return deps, cleanup, nil
}
