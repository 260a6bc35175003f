// Package dcascheduler implements the DCA Scheduler: a periodic claim-and-
// execute worker that advances recurring swap plans, safe to run as
// multiple concurrent instances against the same database.
package dcascheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// OrderTracker registers a newly created order with the Order Monitor so it
// is polled for status changes from the moment it is placed.
type OrderTracker interface {
	Track(externalOrderID, userID string, status domain.OrderStatus, createdAt time.Time)
}

// Config controls the scheduler's claim behavior.
type Config struct {
	TickInterval     time.Duration
	ClaimBatchSize   int
	ProcessingWindow time.Duration
	RetryDelay       time.Duration
	MaxConcurrency   int
}

// Defaults fills zero-valued fields with production defaults.
func (c Config) Defaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 60 * time.Second
	}
	if c.ClaimBatchSize <= 0 {
		c.ClaimBatchSize = 20
	}
	if c.ProcessingWindow <= 0 {
		c.ProcessingWindow = 10 * time.Minute
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Minute
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 5
	}
	return c
}

// Scheduler periodically claims due DCA plans and executes them.
type Scheduler struct {
	cfg Config

	plans   domain.DCAPlanStore
	users   domain.UserStore
	agg     domain.AggregatorClient
	tracker OrderTracker
	logger  *slog.Logger
}

// New constructs a Scheduler. cfg is defaulted via Config.Defaults.
func New(
	plans domain.DCAPlanStore,
	users domain.UserStore,
	agg domain.AggregatorClient,
	tracker OrderTracker,
	logger *slog.Logger,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		cfg:     cfg.Defaults(),
		plans:   plans,
		users:   users,
		agg:     agg,
		tracker: tracker,
		logger:  logger.With(slog.String("component", "dcascheduler")),
	}
}

// Run executes the scheduler's tick loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("dca scheduler started")
	defer s.logger.Info("dca scheduler stopped")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("dca tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// tick claims a batch of due plans and executes each concurrently, bounded
// by MaxConcurrency.
func (s *Scheduler) tick(ctx context.Context) error {
	claimed, err := s.plans.ClaimDue(ctx, time.Now(), s.cfg.ProcessingWindow, s.cfg.ClaimBatchSize)
	if err != nil {
		return fmt.Errorf("dcascheduler: claim due: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}
	s.logger.Info("claimed due dca plans", slog.Int("count", len(claimed)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for _, plan := range claimed {
		plan := plan
		g.Go(func() error {
			s.execute(gctx, plan)
			return nil
		})
	}
	return g.Wait()
}

// execute runs a single claimed plan to completion, rescheduling it via
// CompleteExecution on success or Reschedule on failure. If CompleteExecution
// itself fails, the error is only logged and the plan keeps the claim
// sentinel, becoming claimable again once ProcessingWindow has passed.
func (s *Scheduler) execute(ctx context.Context, plan domain.DCAPlan) {
	log := s.logger.With(slog.Int64("plan_id", plan.ID), slog.String("user_id", plan.UserID))
	nextRun := time.Now().Add(time.Duration(plan.IntervalHours) * time.Hour)
	retryAt := time.Now().Add(s.cfg.RetryDelay)

	user, err := s.users.GetByID(ctx, plan.UserID)
	if err != nil {
		log.Error("load user failed, rescheduling without executing", slog.String("error", err.Error()))
		s.reschedule(ctx, plan.ID, retryAt, err.Error(), log)
		return
	}
	if !user.HasSettlementAddress() {
		log.Warn("user has no settlement address, skipping this cycle")
		s.reschedule(ctx, plan.ID, nextRun, "no settlement address configured", log)
		return
	}

	quote, err := s.agg.GetQuote(ctx, plan.SourceAsset, plan.SourceNetwork, plan.AmountPerExec, plan.DestAsset, plan.DestNetwork)
	if err != nil {
		log.Error("get quote failed, rescheduling", slog.String("error", err.Error()))
		s.reschedule(ctx, plan.ID, retryAt, err.Error(), log)
		return
	}

	created, err := s.agg.CreateOrder(ctx, domain.CreateOrderRequest{
		RateFingerprint: quote.RateFingerprint,
		UserID:          plan.UserID,
		SettlementAddr:  user.SettlementAddress,
	})
	if err != nil {
		log.Error("create order failed, rescheduling", slog.String("error", err.Error()))
		s.reschedule(ctx, plan.ID, retryAt, err.Error(), log)
		return
	}

	now := time.Now()
	order := domain.Order{
		ExternalOrderID:      created.ExternalOrderID,
		UserID:               plan.UserID,
		SourceAsset:          plan.SourceAsset,
		SourceNetwork:        plan.SourceNetwork,
		SourceAmount:         plan.AmountPerExec,
		DestAsset:            plan.DestAsset,
		DestNetwork:          plan.DestNetwork,
		ExpectedSettleAmount: quote.DestAmount,
		DepositAddress:       created.DepositAddress,
		DepositMemo:          created.DepositMemo,
		Status:               created.Status,
	}
	watched := domain.WatchedOrder{
		ExternalOrderID: created.ExternalOrderID,
		UserID:          plan.UserID,
		LastStatus:      created.Status,
		CreatedAt:       now,
	}

	if err := s.plans.CompleteExecution(ctx, plan.ID, order, watched, nextRun); err != nil {
		log.Error("persist dca execution failed", slog.String("error", err.Error()))
		return
	}

	s.tracker.Track(created.ExternalOrderID, plan.UserID, created.Status, now)
	log.Info("dca plan executed", slog.String("order_id", created.ExternalOrderID))
}

func (s *Scheduler) reschedule(ctx context.Context, planID int64, nextRun time.Time, lastError string, log *slog.Logger) {
	if err := s.plans.Reschedule(ctx, planID, nextRun, lastError); err != nil {
		log.Error("reschedule failed", slog.String("error", err.Error()))
	}
}
