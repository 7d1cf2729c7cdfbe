// Package config defines the top-level configuration for the risk engine and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/botfolio/riskengine/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RISKD_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	S3       S3Config       `toml:"s3"`
	Exchange ExchangeConfig `toml:"exchange"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Closer   CloserConfig   `toml:"closer"`
	Advisor  AdvisorConfig  `toml:"advisor"`
	Archive  ArchiveConfig  `toml:"archive"`
	Risk     RiskConfig     `toml:"risk"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	// PriceTTL expires cached mark prices so a dead feed cannot serve
	// stale marks forever.
	PriceTTL duration `toml:"price_ttl"`
}

// KafkaConfig holds the analytics topic parameters. An empty broker list
// disables the close-event producer.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ExchangeConfig holds the exchange gateway credentials.
type ExchangeConfig struct {
	APIKey    string   `toml:"api_key"`
	SecretKey string   `toml:"secret_key"`
	Testnet   bool     `toml:"testnet"`
	Timeout   duration `toml:"timeout"`

	// FeedSymbols are streamed over the websocket feed into the price
	// cache. Symbols not listed here fall back to REST lookups per tick.
	FeedSymbols []string `toml:"feed_symbols"`
}

// MonitorConfig tunes the position monitor loop.
type MonitorConfig struct {
	Interval    duration `toml:"interval"`
	Workers     int      `toml:"workers"`
	BotID       string   `toml:"bot_id"`
	PriceMaxAge duration `toml:"price_max_age"`
}

// CloserConfig tunes the trade closer.
type CloserConfig struct {
	TakerFeeRate float64 `toml:"taker_fee_rate"`
}

// AdvisorConfig holds the LLM endpoint for AI_PROMPT level proposals. An
// empty API key disables the advisor; AI_PROMPT subscriptions then always
// use the fallback parameters.
type AdvisorConfig struct {
	APIKey  string   `toml:"api_key"`
	BaseURL string   `toml:"base_url"`
	Model   string   `toml:"model"`
	Timeout duration `toml:"timeout"`
}

// ArchiveConfig controls cold-storage archival of closed positions.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// RiskConfig is the operator-supplied default risk profile, applied to
// subscriptions that have no profile of their own in the config store.
type RiskConfig struct {
	Mode                 string  `toml:"mode"`
	StopLossPercent      float64 `toml:"stop_loss_percent"`
	TakeProfitPercent    float64 `toml:"take_profit_percent"`
	MaxPositionSize      float64 `toml:"max_position_size"`
	MinRiskRewardRatio   float64 `toml:"min_risk_reward_ratio"`
	RiskPerTradePercent  float64 `toml:"risk_per_trade_percent"`
	MaxLeverage          float64 `toml:"max_leverage"`
	MaxPortfolioExposure float64 `toml:"max_portfolio_exposure"`
	DailyLossLimitPct    float64 `toml:"daily_loss_limit_percent"`
}

// Domain converts the TOML default profile to the domain representation.
func (r RiskConfig) Domain() domain.RiskConfig {
	return domain.RiskConfig{
		Mode: domain.RiskMode(r.Mode),
		Default: domain.RiskParams{
			StopLossPercent:      r.StopLossPercent,
			TakeProfitPercent:    r.TakeProfitPercent,
			MaxPositionSize:      r.MaxPositionSize,
			MinRiskRewardRatio:   r.MinRiskRewardRatio,
			RiskPerTradePercent:  r.RiskPerTradePercent,
			MaxLeverage:          r.MaxLeverage,
			MaxPortfolioExposure: r.MaxPortfolioExposure,
			DailyLossLimitPct:    r.DailyLossLimitPct,
		},
	}
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "riskengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{30 * time.Second},
		},
		Kafka: KafkaConfig{
			Topic: "position-closes",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "riskengine-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Exchange: ExchangeConfig{
			Testnet:     true,
			Timeout:     duration{10 * time.Second},
			FeedSymbols: []string{"BTCUSDT", "ETHUSDT"},
		},
		Monitor: MonitorConfig{
			Interval:    duration{3 * time.Minute},
			Workers:     8,
			PriceMaxAge: duration{10 * time.Second},
		},
		Closer: CloserConfig{
			TakerFeeRate: 0.0005,
		},
		Advisor: AdvisorConfig{
			Model:   "gpt-4o-mini",
			Timeout: duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Risk: RiskConfig{
			Mode:                 "DEFAULT",
			StopLossPercent:      2.0,
			TakeProfitPercent:    4.0,
			MaxPositionSize:      10_000,
			MinRiskRewardRatio:   1.5,
			RiskPerTradePercent:  1.0,
			MaxLeverage:          10,
			MaxPortfolioExposure: 50_000,
			DailyLossLimitPct:    5.0,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"position_closed", "stopped_out", "liquidation", "cooldown_engaged", "daily_limit_hit"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Exchange credentials are required whenever the monitor runs.
	needsExchange := c.Mode == "monitor" || c.Mode == "full"
	if needsExchange {
		if c.Exchange.APIKey == "" || c.Exchange.SecretKey == "" {
			errs = append(errs, "exchange: api_key and secret_key are required for mode "+c.Mode)
		}
	}

	// Monitor
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if c.Monitor.Workers < 1 {
		errs = append(errs, "monitor: workers must be >= 1")
	}

	// Closer
	if c.Closer.TakerFeeRate < 0 || c.Closer.TakerFeeRate > 0.01 {
		errs = append(errs, fmt.Sprintf("closer: taker_fee_rate must be in [0, 0.01], got %v", c.Closer.TakerFeeRate))
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Default risk profile must itself be a valid profile.
	if err := c.Risk.Domain().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("risk: %v", err))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
