package scheduler

import (
	"context"
	"log/slog"
	"time"

	"habitpulse/internal/notifications"
	"habitpulse/internal/recurrence"
	"habitpulse/internal/types"
)

// Broadcaster is the fan-out used by the poller. Satisfied by
// *notifications.Broadcaster.
type Broadcaster interface {
	Broadcast(ctx context.Context, notificationID string, trigger types.DeliveryTrigger, c notifications.Content) (types.DeliveryResult, error)
}

// FireGuard is the dedup check. Satisfied by *dedup.Guard.
type FireGuard interface {
	ShouldFire(ctx context.Context, recordID string, rule recurrence.Rule, now time.Time) (bool, error)
	MarkFired(ctx context.Context, recordID string, rule recurrence.Rule, now time.Time) (bool, error)
}

// Poller is the queue-free runtime: on every tick it checks each active
// record against the clock and fires the ones whose minute has come.
type Poller struct {
	notifications ActiveNotificationLister
	guard         FireGuard
	broadcaster   Broadcaster
	clock         types.Clock
	interval      time.Duration
	logger        *slog.Logger
}

type PollerConfig struct {
	Notifications ActiveNotificationLister
	Guard         FireGuard
	Broadcaster   Broadcaster
	Clock         types.Clock
	Interval      time.Duration
	Logger        *slog.Logger
}

func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		notifications: cfg.Notifications,
		guard:         cfg.Guard,
		broadcaster:   cfg.Broadcaster,
		clock:         cfg.Clock,
		interval:      cfg.Interval,
		logger:        cfg.Logger,
	}
}

// Tick evaluates every active record once and returns how many fired.
// A failure on one record does not stop the others.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	now := p.clock.Now()
	records, err := p.notifications.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, n := range records {
		if !n.Active {
			continue
		}
		rule, err := recurrence.ParseRule(n.Time, n.Days)
		if err != nil || rule.Days.Empty() {
			continue
		}

		ok, err := p.guard.ShouldFire(ctx, n.ID, rule, now)
		if err != nil {
			p.logger.WarnContext(ctx, "dedup check failed", "notification_id", n.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		claimed, err := p.guard.MarkFired(ctx, n.ID, rule, now)
		if err != nil {
			p.logger.WarnContext(ctx, "dedup mark failed", "notification_id", n.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		result, err := p.broadcaster.Broadcast(ctx, n.ID, types.TriggerPoll, notifications.ScheduledContent(n))
		if err != nil {
			p.logger.ErrorContext(ctx, "poll broadcast failed", "notification_id", n.ID, "error", err)
			continue
		}
		p.logger.InfoContext(ctx, "reminder fired", "notification_id", n.ID, "sent", result.Sent)
		fired++
	}
	return fired, nil
}

// Run ticks every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "poller started", "interval", p.interval)
	for {
		if _, err := p.Tick(ctx); err != nil {
			p.logger.ErrorContext(ctx, "poll tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
