// Package config defines the top-level configuration for the swap
// orchestration core and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SWAPSMITH_* environment
// variables.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Aggregator  AggregatorConfig  `toml:"aggregator"`
	Monitor     MonitorConfig     `toml:"monitor"`
	DCA         DCAConfig         `toml:"dca"`
	LimitWorker LimitWorkerConfig `toml:"limit_worker"`
	Server      ServerConfig      `toml:"server"`
	Auth        AuthConfig        `toml:"auth"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// AggregatorConfig holds the swap aggregator's API endpoint, credentials,
// and outbound rate limit.
type AggregatorConfig struct {
	BaseURL           string   `toml:"base_url"`
	APIKey            string   `toml:"api_key"`
	Timeout           duration `toml:"timeout"`
	RateLimitPerSec   int      `toml:"rate_limit_per_sec"`
	RateLimitWindow   duration `toml:"rate_limit_window"`
}

// MonitorConfig holds Order Monitor tuning parameters.
type MonitorConfig struct {
	TickInterval   duration `toml:"tick_interval"`
	MaxConcurrency int      `toml:"max_concurrency"`
}

// DCAConfig holds DCA Scheduler tuning parameters.
type DCAConfig struct {
	TickInterval     duration `toml:"tick_interval"`
	ClaimBatchSize   int      `toml:"claim_batch_size"`
	ProcessingWindow duration `toml:"processing_window"`
	RetryDelay       duration `toml:"retry_delay"`
	MaxConcurrency   int      `toml:"max_concurrency"`
}

// LimitWorkerConfig holds Limit-Order Worker tuning parameters.
type LimitWorkerConfig struct {
	TickInterval   duration `toml:"tick_interval"`
	MaxConcurrency int      `toml:"max_concurrency"`
	MaxStaleness   duration `toml:"max_staleness"`
	MaxRetries     int      `toml:"max_retries"`
	BaseBackoff    duration `toml:"base_backoff"`
	MaxBackoff     duration `toml:"max_backoff"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// AuthConfig holds the credentials the HTTP API verifies incoming requests
// against: an HMAC secret for per-user JWTs and a static key for admin-only
// routes.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	AdminAPIKey string `toml:"admin_api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "swapsmith",
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
			TLSEnabled: false,
		},
		Aggregator: AggregatorConfig{
			Timeout:         duration{15 * time.Second},
			RateLimitPerSec: 5,
			RateLimitWindow: duration{time.Second},
		},
		Monitor: MonitorConfig{
			TickInterval:   duration{10 * time.Second},
			MaxConcurrency: 5,
		},
		DCA: DCAConfig{
			TickInterval:     duration{60 * time.Second},
			ClaimBatchSize:   20,
			ProcessingWindow: duration{10 * time.Minute},
			RetryDelay:       duration{5 * time.Minute},
			MaxConcurrency:   5,
		},
		LimitWorker: LimitWorkerConfig{
			TickInterval:   duration{30 * time.Second},
			MaxConcurrency: 10,
			MaxStaleness:   duration{10 * time.Minute},
			MaxRetries:     5,
			BaseBackoff:    duration{time.Minute},
			MaxBackoff:     duration{30 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"order.settled", "order.failed", "order.refunded", "dca_plan_dead", "limit_order_dead"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor":      true,
	"dca":          true,
	"limit_worker": true,
	"server":       true,
	"full":         true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, dca, limit_worker, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Aggregator.BaseURL == "" {
		errs = append(errs, "aggregator: base_url must not be empty")
	}
	if c.Aggregator.APIKey == "" {
		errs = append(errs, "aggregator: api_key must not be empty")
	}
	if c.Aggregator.RateLimitPerSec <= 0 {
		errs = append(errs, "aggregator: rate_limit_per_sec must be > 0")
	}

	if c.Monitor.MaxConcurrency < 1 {
		errs = append(errs, "monitor: max_concurrency must be >= 1")
	}
	if c.DCA.MaxConcurrency < 1 {
		errs = append(errs, "dca: max_concurrency must be >= 1")
	}
	if c.DCA.ClaimBatchSize < 1 {
		errs = append(errs, "dca: claim_batch_size must be >= 1")
	}
	if c.LimitWorker.MaxConcurrency < 1 {
		errs = append(errs, "limit_worker: max_concurrency must be >= 1")
	}
	if c.LimitWorker.MaxRetries < 0 {
		errs = append(errs, "limit_worker: max_retries must be >= 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth: jwt_secret must not be empty when server is enabled")
		}
		if c.Auth.AdminAPIKey == "" {
			errs = append(errs, "auth: admin_api_key must not be empty when server is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
