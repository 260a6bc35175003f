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
// built-in defaults, applies SWAPSMITH_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SWAPSMITH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "SWAPSMITH_DATABASE_DSN")
	setStr(&cfg.Database.Host, "SWAPSMITH_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SWAPSMITH_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SWAPSMITH_DATABASE_NAME")
	setStr(&cfg.Database.User, "SWAPSMITH_DATABASE_USER")
	setStr(&cfg.Database.Password, "SWAPSMITH_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SWAPSMITH_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "SWAPSMITH_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SWAPSMITH_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SWAPSMITH_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SWAPSMITH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWAPSMITH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWAPSMITH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWAPSMITH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWAPSMITH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWAPSMITH_REDIS_TLS_ENABLED")

	// ── Aggregator ──
	setStr(&cfg.Aggregator.BaseURL, "SWAPSMITH_AGGREGATOR_BASE_URL")
	setStr(&cfg.Aggregator.APIKey, "SWAPSMITH_AGGREGATOR_API_KEY")
	setDuration(&cfg.Aggregator.Timeout, "SWAPSMITH_AGGREGATOR_TIMEOUT")
	setInt(&cfg.Aggregator.RateLimitPerSec, "SWAPSMITH_AGGREGATOR_RATE_LIMIT_PER_SEC")
	setDuration(&cfg.Aggregator.RateLimitWindow, "SWAPSMITH_AGGREGATOR_RATE_LIMIT_WINDOW")

	// ── Monitor ──
	setDuration(&cfg.Monitor.TickInterval, "SWAPSMITH_MONITOR_TICK_INTERVAL")
	setInt(&cfg.Monitor.MaxConcurrency, "SWAPSMITH_MONITOR_MAX_CONCURRENCY")

	// ── DCA ──
	setDuration(&cfg.DCA.TickInterval, "SWAPSMITH_DCA_TICK_INTERVAL")
	setInt(&cfg.DCA.ClaimBatchSize, "SWAPSMITH_DCA_CLAIM_BATCH_SIZE")
	setDuration(&cfg.DCA.ProcessingWindow, "SWAPSMITH_DCA_PROCESSING_WINDOW")
	setInt(&cfg.DCA.MaxConcurrency, "SWAPSMITH_DCA_MAX_CONCURRENCY")

	// ── Limit worker ──
	setDuration(&cfg.LimitWorker.TickInterval, "SWAPSMITH_LIMIT_WORKER_TICK_INTERVAL")
	setInt(&cfg.LimitWorker.MaxConcurrency, "SWAPSMITH_LIMIT_WORKER_MAX_CONCURRENCY")
	setDuration(&cfg.LimitWorker.MaxStaleness, "SWAPSMITH_LIMIT_WORKER_MAX_STALENESS")
	setInt(&cfg.LimitWorker.MaxRetries, "SWAPSMITH_LIMIT_WORKER_MAX_RETRIES")
	setDuration(&cfg.LimitWorker.BaseBackoff, "SWAPSMITH_LIMIT_WORKER_BASE_BACKOFF")
	setDuration(&cfg.LimitWorker.MaxBackoff, "SWAPSMITH_LIMIT_WORKER_MAX_BACKOFF")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SWAPSMITH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SWAPSMITH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SWAPSMITH_SERVER_CORS_ORIGINS")

	// ── Auth ──
	setStr(&cfg.Auth.JWTSecret, "SWAPSMITH_AUTH_JWT_SECRET")
	setStr(&cfg.Auth.AdminAPIKey, "SWAPSMITH_AUTH_ADMIN_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWAPSMITH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWAPSMITH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWAPSMITH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWAPSMITH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWAPSMITH_MODE")
	setStr(&cfg.LogLevel, "SWAPSMITH_LOG_LEVEL")
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
