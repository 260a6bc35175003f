// Package monitor implements the Order Monitor: a crash-safe, poll-driven
// component that watches non-terminal swap orders until the aggregator
// reports a terminal status, persisting and fanning out every observed
// transition.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// reconcileLockTTL bounds how long one instance's reconcile pass may hold
// the cross-instance tie-breaker lock before another instance is allowed to
// take over a stalled run.
const reconcileLockTTL = 5 * time.Minute

// resumeJitterMax is the upper bound of the random delay applied before the
// first poll batch after a rate-limit pause lifts, so that multiple Monitor
// instances paused by the same 429 do not resume in lockstep.
const resumeJitterMax = 5 * time.Second

// Config controls the monitor's polling behavior.
type Config struct {
	TickInterval      time.Duration
	MaxConcurrency    int
	BackoffSchedule   []BackoffStep
	RateLimitKey      string
	ReconcileInterval time.Duration
}

// Defaults fills zero-valued fields with the monitor's production defaults.
func (c Config) Defaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 5
	}
	if len(c.BackoffSchedule) == 0 {
		c.BackoffSchedule = defaultSchedule
	}
	if c.RateLimitKey == "" {
		c.RateLimitKey = "aggregator:status"
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = time.Hour
	}
	return c
}

type trackedOrder struct {
	userID       string
	createdAt    time.Time
	lastStatus   domain.OrderStatus
	lastPolledAt time.Time
}

// Monitor tracks every non-terminal order and polls the aggregator for
// status updates, applying an age-based backoff so long-lived orders do not
// consume polling budget at the same rate as fresh ones.
type Monitor struct {
	cfg Config

	orders    domain.OrderStore
	watched   domain.WatchedOrderStore
	statusLog domain.StatusLogStore
	agg       domain.AggregatorClient
	bus       domain.SignalBus
	limiter   domain.RateLimiter
	locks     domain.LockManager
	logger    *slog.Logger

	mu      sync.RWMutex
	tracked map[string]*trackedOrder

	pausedUntil atomic.Int64 // unix nano; zero means not paused
	sf          singleflight.Group
}

// New constructs a Monitor. cfg is defaulted via Config.Defaults before use.
// locks may be nil, in which case Reconcile runs unconditionally on every
// instance that calls it instead of electing a single winner.
func New(
	orders domain.OrderStore,
	watched domain.WatchedOrderStore,
	statusLog domain.StatusLogStore,
	agg domain.AggregatorClient,
	bus domain.SignalBus,
	limiter domain.RateLimiter,
	locks domain.LockManager,
	logger *slog.Logger,
	cfg Config,
) *Monitor {
	return &Monitor{
		cfg:       cfg.Defaults(),
		orders:    orders,
		watched:   watched,
		statusLog: statusLog,
		agg:       agg,
		bus:       bus,
		limiter:   limiter,
		locks:     locks,
		logger:    logger.With(slog.String("component", "monitor")),
		tracked:   make(map[string]*trackedOrder),
	}
}

// Track registers an order for monitoring. Safe to call for an order already
// tracked (no-op on the in-memory side; callers should still have persisted
// the WatchedOrder row via domain.WatchedOrderStore.Insert first).
func (m *Monitor) Track(externalOrderID, userID string, status domain.OrderStatus, createdAt time.Time) {
	if status.Terminal() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracked[externalOrderID]; ok {
		return
	}
	m.tracked[externalOrderID] = &trackedOrder{
		userID:    userID,
		createdAt: createdAt,
		lastStatus: status,
	}
}

// Untrack stops polling an order. Called once a terminal status is recorded.
func (m *Monitor) Untrack(externalOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, externalOrderID)
}

// LoadPending seeds the in-memory tracked set from the durable watched-order
// table, making restart recovery a pure reload with no reconstruction logic.
func (m *Monitor) LoadPending(ctx context.Context) error {
	rows, err := m.watched.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("monitor: load pending: %w", err)
	}
	for _, w := range rows {
		m.Track(w.ExternalOrderID, w.UserID, w.LastStatus, w.CreatedAt)
	}
	m.logger.Info("loaded pending orders", slog.Int("count", len(m.tracked)))
	return nil
}

// Reconcile re-runs LoadPending and then force-polls every currently
// tracked order once, ignoring each order's per-order backoff interval. It
// is meant to be scheduled periodically (hourly) to recover from any missed
// transitions, and is safe to also trigger manually. Concurrent callers
// (a manual trigger racing the scheduled tick) are collapsed into a single
// in-flight run via singleflight. A per-order poll failure is logged by
// doPoll/handlePollError and never aborts the rest of the batch.
func (m *Monitor) Reconcile(ctx context.Context) error {
	_, err, _ := m.sf.Do("reconcile", func() (any, error) {
		return nil, m.doReconcile(ctx)
	})
	return err
}

func (m *Monitor) doReconcile(ctx context.Context) error {
	log := m.logger.With(slog.String("op", "reconcile"))

	if m.locks != nil {
		lock, err := m.locks.Acquire(ctx, "monitor:reconcile", reconcileLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			log.Info("reconcile already running on another instance, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("monitor: reconcile: acquire lock: %w", err)
		}
		defer lock.Unlock(ctx)
	}

	if err := m.LoadPending(ctx); err != nil {
		return fmt.Errorf("monitor: reconcile: %w", err)
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.tracked))
	for id := range m.tracked {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	log.Info("force-polling tracked orders", slog.Int("count", len(ids)))
	for _, id := range ids {
		// pollOne (not doPoll) so a reconcile force-poll and a concurrent
		// regular tick for the same order coalesce instead of racing.
		m.pollOne(ctx, id)
	}
	return nil
}

// Run executes the monitor's tick loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started")
	defer m.logger.Info("monitor stopped")

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.tick(ctx, now)
		}
	}
}

// RunReconcileLoop calls Reconcile every cfg.ReconcileInterval until ctx is
// cancelled. Run it alongside Run in its own goroutine; a failed reconcile
// pass is logged and does not stop the loop.
func (m *Monitor) RunReconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Reconcile(ctx); err != nil {
				m.logger.Error("reconcile failed", slog.String("error", err.Error()))
			}
		}
	}
}

// tick polls every tracked order that is due, bounding concurrent aggregator
// calls at MaxConcurrency via an errgroup.
func (m *Monitor) tick(ctx context.Context, now time.Time) {
	if paused := m.pausedUntil.Load(); paused != 0 && now.UnixNano() < paused {
		return
	}

	due := m.dueOrders(now)
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrency)

	for _, id := range due {
		id := id
		g.Go(func() error {
			m.pollOne(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) dueOrders(now time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	due := make([]string, 0, len(m.tracked))
	for id, t := range m.tracked {
		age := now.Sub(t.createdAt)
		interval := pollInterval(m.cfg.BackoffSchedule, age)
		if now.Sub(t.lastPolledAt) >= interval {
			due = append(due, id)
		}
	}
	return due
}

// pollOne fetches the current status for one order, coalescing concurrent
// callers for the same order ID via singleflight (a restart-triggered
// reconcile and a regular tick can otherwise race on the same order).
func (m *Monitor) pollOne(ctx context.Context, externalOrderID string) {
	_, _, _ = m.sf.Do(externalOrderID, func() (any, error) {
		m.doPoll(ctx, externalOrderID)
		return nil, nil
	})
}

func (m *Monitor) doPoll(ctx context.Context, externalOrderID string) {
	log := m.logger.With(slog.String("order_id", externalOrderID))

	if allowed, err := m.limiter.Allow(ctx, m.cfg.RateLimitKey); err != nil {
		log.Warn("rate limiter error, polling anyway", slog.String("error", err.Error()))
	} else if !allowed {
		return
	}

	m.mu.Lock()
	if t, ok := m.tracked[externalOrderID]; ok {
		t.lastPolledAt = time.Now()
	}
	m.mu.Unlock()

	result, err := m.agg.GetOrderStatus(ctx, externalOrderID)
	if err != nil {
		m.handlePollError(externalOrderID, err, log)
		return
	}

	m.applyStatus(ctx, externalOrderID, result.Status, log)
}

func (m *Monitor) handlePollError(externalOrderID string, err error, log *slog.Logger) {
	var aggErr *domain.AggregatorError
	if !errors.As(err, &aggErr) {
		log.Error("poll failed", slog.String("error", err.Error()))
		return
	}
	if aggErr.HTTPStatus == 429 {
		pause := aggErr.RetryAfter
		if pause <= 0 {
			pause = 60 * time.Second
		}
		// A random 0-5s jitter is folded into the pause deadline itself so
		// that every Monitor instance paused by the same 429 resumes at a
		// different instant instead of all hammering the aggregator at once.
		jitter := time.Duration(rand.Int64N(int64(resumeJitterMax) + 1))
		m.pausedUntil.Store(time.Now().Add(pause).Add(jitter).UnixNano())
		log.Warn("rate limited by aggregator, pausing monitor",
			slog.Duration("pause", pause), slog.Duration("jitter", jitter))
		return
	}
	if aggErr.Retryable() {
		log.Warn("transient aggregator error", slog.String("error", aggErr.Error()))
		return
	}
	log.Error("permanent aggregator error", slog.String("error", aggErr.Error()))
}

// applyStatus validates, persists, and publishes an observed transition. It
// is idempotent: re-observing the same status for an order is a no-op
// beyond refreshing lastPolledAt, so a duplicate aggregator response from a
// retried request never double-counts a transition.
func (m *Monitor) applyStatus(ctx context.Context, externalOrderID string, newStatus domain.OrderStatus, log *slog.Logger) {
	m.mu.RLock()
	t, tracked := m.tracked[externalOrderID]
	m.mu.RUnlock()
	if !tracked {
		return
	}
	if newStatus == t.lastStatus {
		return
	}
	if !newStatus.IsReachableFrom(t.lastStatus) {
		log.Warn("aggregator reported unreachable transition, recording anyway",
			slog.String("from", string(t.lastStatus)), slog.String("to", string(newStatus)))
	}

	oldStatus := t.lastStatus

	if err := m.orders.UpdateStatus(ctx, externalOrderID, newStatus); err != nil {
		log.Error("persist order status failed", slog.String("error", err.Error()))
		return
	}
	if err := m.watched.UpdateStatus(ctx, externalOrderID, newStatus); err != nil {
		log.Error("persist watched order status failed", slog.String("error", err.Error()))
	}
	if err := m.statusLog.Append(ctx, domain.StatusLog{
		ExternalOrderID: externalOrderID,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		PayloadFingerprint: fmt.Sprintf("%s->%s", oldStatus, newStatus),
	}); err != nil {
		log.Error("append status log failed", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	t.lastStatus = newStatus
	terminal := newStatus.Terminal()
	m.mu.Unlock()

	change := domain.StatusChange{
		ExternalOrderID: externalOrderID,
		UserID:          t.userID,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		EmittedAt:       time.Now(),
	}
	if err := m.bus.Publish(ctx, change); err != nil {
		log.Warn("publish status change failed", slog.String("error", err.Error()))
	}

	log.Info("order status transitioned",
		slog.String("from", string(oldStatus)), slog.String("to", string(newStatus)))

	if terminal {
		m.Untrack(externalOrderID)
	}
}
