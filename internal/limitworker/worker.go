// Package limitworker implements the Limit-Order Worker: it watches cached
// reference prices and fires armed limit orders once their target condition
// is met, retrying failed executions with exponential backoff before giving
// up permanently.
package limitworker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// OrderTracker registers a newly created order with the Order Monitor.
type OrderTracker interface {
	Track(externalOrderID, userID string, status domain.OrderStatus, createdAt time.Time)
}

// Config controls the worker's evaluation cadence and retry policy.
type Config struct {
	TickInterval   time.Duration
	MaxConcurrency int
	MaxStaleness   time.Duration
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// Defaults fills zero-valued fields with production defaults.
func (c Config) Defaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 10
	}
	if c.MaxStaleness <= 0 {
		c.MaxStaleness = 10 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Minute
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Minute
	}
	return c
}

// retryBackoff returns the delay before the (attempt+1)th retry, a capped
// exponential function of attempt with no randomized jitter (the worker's
// own evaluation tick already staggers retries across orders).
func retryBackoff(cfg Config, attempt int) time.Duration {
	d := time.Duration(float64(cfg.BaseBackoff) * math.Pow(2, float64(attempt)))
	if d > cfg.MaxBackoff || d <= 0 {
		return cfg.MaxBackoff
	}
	return d
}

// Worker evaluates armed limit orders against cached prices and executes
// those whose condition is met.
type Worker struct {
	cfg Config

	limitOrders domain.LimitOrderStore
	prices      domain.PriceCache
	agg         domain.AggregatorClient
	users       domain.UserStore
	tracker     OrderTracker
	logger      *slog.Logger
}

// New constructs a Worker. cfg is defaulted via Config.Defaults.
func New(
	limitOrders domain.LimitOrderStore,
	prices domain.PriceCache,
	agg domain.AggregatorClient,
	users domain.UserStore,
	tracker OrderTracker,
	logger *slog.Logger,
	cfg Config,
) *Worker {
	return &Worker{
		cfg:         cfg.Defaults(),
		limitOrders: limitOrders,
		prices:      prices,
		agg:         agg,
		users:       users,
		tracker:     tracker,
		logger:      logger.With(slog.String("component", "limitworker")),
	}
}

// Run executes the worker's tick loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("limit order worker started")
	defer w.logger.Info("limit order worker stopped")

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.Error("limit worker tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	due, err := w.limitOrders.ListArmedDue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("limitworker: list armed due: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.MaxConcurrency)

	for _, lo := range due {
		lo := lo
		g.Go(func() error {
			w.evaluate(gctx, lo)
			return nil
		})
	}
	return g.Wait()
}

// evaluate checks one armed limit order's condition against the cached
// price and fires execution if met. A stale or missing price is treated as
// "not yet met" rather than an error: the order stays armed and is
// re-evaluated on the next tick once a fresh price arrives.
func (w *Worker) evaluate(ctx context.Context, lo domain.LimitOrder) {
	log := w.logger.With(slog.Int64("limit_order_id", lo.ID), slog.String("user_id", lo.UserID))

	snap, err := w.prices.GetPrice(ctx, lo.ReferenceAsset, lo.ReferenceChain)
	if err != nil {
		log.Debug("no cached price yet", slog.String("error", err.Error()))
		return
	}
	if snap.Stale(time.Now(), w.cfg.MaxStaleness) {
		log.Debug("cached price too stale to act on")
		return
	}
	if !lo.Condition.Met(snap.Price, lo.TargetPrice) {
		return
	}

	if err := w.limitOrders.MarkTriggered(ctx, lo.ID); err != nil {
		log.Error("mark triggered failed", slog.String("error", err.Error()))
		return
	}
	if err := w.limitOrders.MarkExecuting(ctx, lo.ID); err != nil {
		log.Error("mark executing failed", slog.String("error", err.Error()))
		return
	}

	if err := w.fire(ctx, lo, log); err != nil {
		w.handleFailure(ctx, lo, err, log)
	}
}

func (w *Worker) fire(ctx context.Context, lo domain.LimitOrder, log *slog.Logger) error {
	user, err := w.users.GetByID(ctx, lo.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !user.HasSettlementAddress() {
		return fmt.Errorf("user has no settlement address")
	}

	quote, err := w.agg.GetQuote(ctx, lo.SourceAsset, lo.SourceNetwork, lo.Amount, lo.DestAsset, lo.DestNetwork)
	if err != nil {
		return fmt.Errorf("get quote: %w", err)
	}

	created, err := w.agg.CreateOrder(ctx, domain.CreateOrderRequest{
		RateFingerprint: quote.RateFingerprint,
		UserID:          lo.UserID,
		SettlementAddr:  user.SettlementAddress,
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	now := time.Now()
	order := domain.Order{
		ExternalOrderID:      created.ExternalOrderID,
		UserID:               lo.UserID,
		SourceAsset:          lo.SourceAsset,
		SourceNetwork:        lo.SourceNetwork,
		SourceAmount:         lo.Amount,
		DestAsset:            lo.DestAsset,
		DestNetwork:          lo.DestNetwork,
		ExpectedSettleAmount: quote.DestAmount,
		DepositAddress:       created.DepositAddress,
		DepositMemo:          created.DepositMemo,
		Status:               created.Status,
	}
	watched := domain.WatchedOrder{
		ExternalOrderID: created.ExternalOrderID,
		UserID:          lo.UserID,
		LastStatus:      created.Status,
		CreatedAt:       now,
	}

	if err := w.limitOrders.CompleteExecution(ctx, lo.ID, order, watched); err != nil {
		return fmt.Errorf("persist execution: %w", err)
	}

	w.tracker.Track(created.ExternalOrderID, lo.UserID, created.Status, now)
	log.Info("limit order executed", slog.String("order_id", created.ExternalOrderID))
	return nil
}

// handleFailure retries up to MaxRetries with exponential backoff, then
// permanently stops the order.
func (w *Worker) handleFailure(ctx context.Context, lo domain.LimitOrder, cause error, log *slog.Logger) {
	log.Warn("limit order execution failed", slog.String("error", cause.Error()))

	if lo.RetryCount >= w.cfg.MaxRetries {
		if err := w.limitOrders.MarkDead(ctx, lo.ID, cause.Error()); err != nil {
			log.Error("mark dead failed", slog.String("error", err.Error()))
		}
		log.Error("limit order exhausted retries, marked dead")
		return
	}

	delay := retryBackoff(w.cfg, lo.RetryCount)
	retryAfter := time.Now().Add(delay)
	if err := w.limitOrders.ScheduleRetry(ctx, lo.ID, lo.RetryCount+1, retryAfter, cause.Error()); err != nil {
		log.Error("schedule retry failed", slog.String("error", err.Error()))
	}
}
