package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/swapsmith/orchestrator/internal/aggregator"
	"github.com/swapsmith/orchestrator/internal/cache/redis"
	"github.com/swapsmith/orchestrator/internal/config"
	"github.com/swapsmith/orchestrator/internal/domain"
	"github.com/swapsmith/orchestrator/internal/notify"
	"github.com/swapsmith/orchestrator/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	OrderStore         domain.OrderStore
	WatchedOrderStore   domain.WatchedOrderStore
	StatusLogStore      domain.StatusLogStore
	DCAPlanStore        domain.DCAPlanStore
	LimitOrderStore     domain.LimitOrderStore
	PriceSnapshotStore  domain.PriceSnapshotStore
	UserStore           domain.UserStore
	CoinGiftStore       domain.CoinGiftStore
	AdminAuditStore     domain.AdminAuditStore
	AdminCoinStore      domain.AdminCoinStore
	ConversationStore   domain.ConversationStore

	// Caches
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Aggregator (the orchestrator's sole upstream boundary)
	Aggregator domain.AggregatorClient

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources. Every operating mode
// touches postgres and redis, so both are always constructed.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.WatchedOrderStore = postgres.NewWatchedOrderStore(pool)
	deps.StatusLogStore = postgres.NewStatusLogStore(pool)
	deps.DCAPlanStore = postgres.NewDCAPlanStore(pool)
	deps.LimitOrderStore = postgres.NewLimitOrderStore(pool)
	deps.PriceSnapshotStore = postgres.NewPriceSnapshotStore(pool)
	deps.UserStore = postgres.NewUserStore(pool)
	deps.CoinGiftStore = postgres.NewCoinGiftStore(pool)
	deps.AdminAuditStore = postgres.NewAdminAuditStore(pool)
	deps.AdminCoinStore = postgres.NewAdminCoinStore(pool)
	deps.ConversationStore = postgres.NewConversationStore(pool)

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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(
		redisClient,
		cfg.Aggregator.RateLimitPerSec,
		cfg.Aggregator.RateLimitWindow.Duration,
	)

	// --- Aggregator client ---
	deps.Aggregator = aggregator.NewClient(aggregator.Config{
		BaseURL: cfg.Aggregator.BaseURL,
		APIKey:  cfg.Aggregator.APIKey,
		Timeout: cfg.Aggregator.Timeout.Duration,
	})

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

	return deps, cleanup, nil
}
