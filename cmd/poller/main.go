// Package main runs the queue-free delivery runtime.
//
// Every POLL_INTERVAL the poller lists active reminders and fires each one
// within the dedup window of its scheduled minute in the target timezone. A
// dedup store (in memory, or Redis when several pollers run) keeps a reminder
// from firing twice per day; the guard clears it at local midnight.
//
// Run it instead of the task queue, never alongside it, or reminders are
// delivered twice.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"habitpulse/internal/app"
	"habitpulse/internal/config"
	"habitpulse/internal/notifications/dedup"
	"habitpulse/internal/scheduler"
	"habitpulse/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("habitpulse poller starting",
		"environment", cfg.Environment,
		"interval", cfg.Scheduling.PollInterval,
		"dedup_backend", cfg.Dedup.Backend,
		"timezone", cfg.Scheduling.TargetTimezone,
	)

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	pool, err := app.OpenPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	awsCfg, err := app.LoadAWS(ctx, cfg.AWS)
	if err != nil {
		return err
	}
	metrics := app.NewMetrics(awsCfg, cfg.Observability, logger)

	svc, err := app.NewServices(pool, cfg, app.NewPushSender(cfg.Push, logger), metrics, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := app.NewDedupStore(cfg.Dedup)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("closing dedup store", "error", err)
		}
	}()

	guard, poller, err := buildRuntime(cfg, store, svc.Notifications, svc.Broadcaster, logger)
	if err != nil {
		return err
	}

	if err := runRuntime(ctx, guard, poller); err != nil {
		return err
	}
	logger.Info("poller stopped")
	return nil
}

func buildRuntime(
	cfg *config.Config,
	store dedup.Store,
	records scheduler.ActiveNotificationLister,
	broadcaster scheduler.Broadcaster,
	logger *slog.Logger,
) (*dedup.Guard, *scheduler.Poller, error) {
	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return nil, nil, err
	}
	guard := dedup.NewGuard(store, loc, cfg.Dedup.Window, types.RealClock{}, logger)
	poller := scheduler.NewPoller(scheduler.PollerConfig{
		Notifications: records,
		Guard:         guard,
		Broadcaster:   broadcaster,
		Interval:      cfg.Scheduling.PollInterval,
		Logger:        logger,
	})
	return guard, poller, nil
}

// runRuntime runs the midnight reset and the poll loop until ctx ends.
// Cancellation is a clean stop.
func runRuntime(ctx context.Context, guard *dedup.Guard, poller *scheduler.Poller) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		guard.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return poller.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
