package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RISKD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RISKD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RISKD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RISKD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RISKD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RISKD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RISKD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RISKD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RISKD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RISKD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RISKD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RISKD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "RISKD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RISKD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RISKD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RISKD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RISKD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RISKD_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "RISKD_REDIS_PRICE_TTL")

	// ── Kafka ──
	setStringSlice(&cfg.Kafka.Brokers, "RISKD_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "RISKD_KAFKA_TOPIC")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "RISKD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RISKD_S3_REGION")
	setStr(&cfg.S3.Bucket, "RISKD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RISKD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RISKD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RISKD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RISKD_S3_FORCE_PATH_STYLE")

	// ── Exchange ──
	setStr(&cfg.Exchange.APIKey, "RISKD_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.SecretKey, "RISKD_EXCHANGE_SECRET_KEY")
	setBool(&cfg.Exchange.Testnet, "RISKD_EXCHANGE_TESTNET")
	setDuration(&cfg.Exchange.Timeout, "RISKD_EXCHANGE_TIMEOUT")
	setStringSlice(&cfg.Exchange.FeedSymbols, "RISKD_EXCHANGE_FEED_SYMBOLS")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "RISKD_MONITOR_INTERVAL")
	setInt(&cfg.Monitor.Workers, "RISKD_MONITOR_WORKERS")
	setStr(&cfg.Monitor.BotID, "RISKD_MONITOR_BOT_ID")
	setDuration(&cfg.Monitor.PriceMaxAge, "RISKD_MONITOR_PRICE_MAX_AGE")

	// ── Closer ──
	setFloat64(&cfg.Closer.TakerFeeRate, "RISKD_CLOSER_TAKER_FEE_RATE")

	// ── Advisor ──
	setStr(&cfg.Advisor.APIKey, "RISKD_ADVISOR_API_KEY")
	setStr(&cfg.Advisor.BaseURL, "RISKD_ADVISOR_BASE_URL")
	setStr(&cfg.Advisor.Model, "RISKD_ADVISOR_MODEL")
	setDuration(&cfg.Advisor.Timeout, "RISKD_ADVISOR_TIMEOUT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "RISKD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "RISKD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "RISKD_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RISKD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RISKD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RISKD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "RISKD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "RISKD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "RISKD_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RISKD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RISKD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RISKD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RISKD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "RISKD_MODE")
	setStr(&cfg.LogLevel, "RISKD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
