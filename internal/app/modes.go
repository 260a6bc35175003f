package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swapsmith/orchestrator/internal/dcascheduler"
	"github.com/swapsmith/orchestrator/internal/domain"
	"github.com/swapsmith/orchestrator/internal/limitworker"
	"github.com/swapsmith/orchestrator/internal/monitor"
	"github.com/swapsmith/orchestrator/internal/server"
	"github.com/swapsmith/orchestrator/internal/server/handler"
)

// noopTracker discards Track calls. It is used when a mode runs the DCA
// scheduler or limit-order worker without an in-process Order Monitor; the
// watched_order row persisted by CompleteExecution is still enough for a
// separately running Monitor to pick the order up on its next LoadPending
// (at startup or during its hourly Reconcile).
type noopTracker struct{}

func (noopTracker) Track(externalOrderID, userID string, status domain.OrderStatus, createdAt time.Time) {
}

// MonitorMode runs only the Order Monitor, polling the aggregator for
// status updates on every non-terminal order.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	mon := a.buildMonitor(deps)
	if err := mon.LoadPending(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(ctx) })
	g.Go(func() error { return mon.RunReconcileLoop(ctx) })
	g.Go(func() error { return a.runNotifyBridge(ctx, deps) })
	return g.Wait()
}

// DCAMode runs only the DCA Scheduler.
func (a *App) DCAMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting dca mode")

	sched := a.buildDCAScheduler(deps, noopTracker{})
	return sched.Run(ctx)
}

// LimitWorkerMode runs only the Limit-Order Worker.
func (a *App) LimitWorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting limit worker mode")

	worker := a.buildLimitWorker(deps, noopTracker{})
	return worker.Run(ctx)
}

// ServerMode runs only the HTTP API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.runHTTPServer(ctx, deps)
}

// FullMode runs the Order Monitor, DCA Scheduler, Limit-Order Worker, and
// HTTP API together in one process, wired so DCA/limit-order executions are
// tracked by the same in-process Monitor instance that polls them.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	mon := a.buildMonitor(deps)
	if err := mon.LoadPending(ctx); err != nil {
		return err
	}
	g.Go(func() error { return mon.Run(ctx) })
	g.Go(func() error { return mon.RunReconcileLoop(ctx) })

	sched := a.buildDCAScheduler(deps, mon)
	g.Go(func() error { return sched.Run(ctx) })

	worker := a.buildLimitWorker(deps, mon)
	g.Go(func() error { return worker.Run(ctx) })

	g.Go(func() error { return a.runNotifyBridge(ctx, deps) })

	if a.cfg.Server.Enabled {
		g.Go(func() error { return a.runHTTPServer(ctx, deps) })
	}

	return g.Wait()
}

func (a *App) buildMonitor(deps *Dependencies) *monitor.Monitor {
	return monitor.New(
		deps.OrderStore,
		deps.WatchedOrderStore,
		deps.StatusLogStore,
		deps.Aggregator,
		deps.SignalBus,
		deps.RateLimiter,
		deps.LockManager,
		a.logger,
		monitor.Config{
			TickInterval:   a.cfg.Monitor.TickInterval.Duration,
			MaxConcurrency: a.cfg.Monitor.MaxConcurrency,
		},
	)
}

func (a *App) buildDCAScheduler(deps *Dependencies, tracker dcascheduler.OrderTracker) *dcascheduler.Scheduler {
	return dcascheduler.New(
		deps.DCAPlanStore,
		deps.UserStore,
		deps.Aggregator,
		tracker,
		a.logger,
		dcascheduler.Config{
			TickInterval:     a.cfg.DCA.TickInterval.Duration,
			ClaimBatchSize:   a.cfg.DCA.ClaimBatchSize,
			ProcessingWindow: a.cfg.DCA.ProcessingWindow.Duration,
			RetryDelay:       a.cfg.DCA.RetryDelay.Duration,
			MaxConcurrency:   a.cfg.DCA.MaxConcurrency,
		},
	)
}

func (a *App) buildLimitWorker(deps *Dependencies, tracker limitworker.OrderTracker) *limitworker.Worker {
	return limitworker.New(
		deps.LimitOrderStore,
		deps.PriceCache,
		deps.Aggregator,
		deps.UserStore,
		tracker,
		a.logger,
		limitworker.Config{
			TickInterval:   a.cfg.LimitWorker.TickInterval.Duration,
			MaxConcurrency: a.cfg.LimitWorker.MaxConcurrency,
			MaxStaleness:   a.cfg.LimitWorker.MaxStaleness.Duration,
			MaxRetries:     a.cfg.LimitWorker.MaxRetries,
			BaseBackoff:    a.cfg.LimitWorker.BaseBackoff.Duration,
			MaxBackoff:     a.cfg.LimitWorker.MaxBackoff.Duration,
		},
	)
}

// runNotifyBridge subscribes to the signal bus and forwards every observed
// order transition to the configured notification senders, filtered by
// cfg.Notify.Events. It is the cross-process consumer side of the monitor's
// publish-on-transition fan-out.
func (a *App) runNotifyBridge(ctx context.Context, deps *Dependencies) error {
	ch, err := deps.SignalBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("app: notify bridge: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-ch:
			if !ok {
				return nil
			}
			event := "order." + strings.ToLower(string(change.NewStatus))
			title := fmt.Sprintf("order %s", change.ExternalOrderID)
			message := fmt.Sprintf("user %s: %s -> %s", change.UserID, change.OldStatus, change.NewStatus)
			if err := deps.Notifier.Notify(ctx, event, title, message); err != nil {
				a.logger.ErrorContext(ctx, "notify bridge: dispatch failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// runHTTPServer builds the full handler set and blocks serving HTTP until
// ctx is cancelled, at which point it shuts down gracefully.
func (a *App) runHTTPServer(ctx context.Context, deps *Dependencies) error {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		History:  handler.NewSwapHistoryHandler(deps.OrderStore, a.logger),
		Settings: handler.NewUserSettingsHandler(deps.UserStore, a.logger),
		Admin:    handler.NewAdminHandler(deps.AdminCoinStore, deps.CoinGiftStore, deps.UserStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		JWTSecret:   a.cfg.Auth.JWTSecret,
		AdminAPIKey: a.cfg.Auth.AdminAPIKey,
	}, handlers, deps.RateLimiter, a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
