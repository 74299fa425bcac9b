// Package dedup keeps the polling runtime from firing the same occurrence
// twice. An occurrence is identified by record ID and scheduled local minute;
// a Store remembers which ones already fired today.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"habitpulse/internal/recurrence"
	"habitpulse/internal/types"
)

// DefaultWindow is how far either side of the scheduled minute a poll may
// fire.
const DefaultWindow = 45 * time.Second

// keyLayout renders the scheduled local minute, e.g. 2024-01-03-09:00.
const keyLayout = "2006-01-02-15:04"

// Store remembers fired occurrence keys.
type Store interface {
	// Seen reports whether key was marked.
	Seen(ctx context.Context, key string) (bool, error)
	// MarkIfAbsent marks key and reports whether this call did the marking.
	MarkIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Reset forgets every key. Stores whose keys expire on their own may
	// treat it as a no-op.
	Reset(ctx context.Context) error
}

// Guard decides whether a poll tick should fire a record.
type Guard struct {
	store  Store
	loc    *time.Location
	window time.Duration
	clock  types.Clock
	logger *slog.Logger
}

func NewGuard(store Store, loc *time.Location, window time.Duration, clock types.Clock, logger *slog.Logger) *Guard {
	if loc == nil {
		loc = time.UTC
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, loc: loc, window: window, clock: clock, logger: logger}
}

// Key identifies one occurrence of recordID.
func Key(recordID string, scheduledLocal time.Time) string {
	return fmt.Sprintf("%s-%s", recordID, scheduledLocal.Format(keyLayout))
}

// due returns the occurrence key when now falls on a rule weekday and within
// the window of today's scheduled minute, before or after it.
func (g *Guard) due(recordID string, rule recurrence.Rule, now time.Time) (string, bool) {
	local := now.In(g.loc)
	if !rule.Days.Contains(int(local.Weekday())) {
		return "", false
	}
	scheduled := rule.ScheduledAt(local)
	if local.Sub(scheduled).Abs() > g.window {
		return "", false
	}
	return Key(recordID, scheduled), true
}

// ShouldFire reports whether recordID is due at now and has not fired yet.
// It does not mark anything; call MarkFired before sending.
func (g *Guard) ShouldFire(ctx context.Context, recordID string, rule recurrence.Rule, now time.Time) (bool, error) {
	key, ok := g.due(recordID, rule, now)
	if !ok {
		return false, nil
	}
	seen, err := g.store.Seen(ctx, key)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "dedup lookup failed", err)
	}
	return !seen, nil
}

// MarkFired claims the occurrence due at now. False means it is not due or
// another poller already claimed it.
func (g *Guard) MarkFired(ctx context.Context, recordID string, rule recurrence.Rule, now time.Time) (bool, error) {
	key, ok := g.due(recordID, rule, now)
	if !ok {
		return false, nil
	}
	ttl := nextMidnight(now, g.loc).Sub(now) + time.Hour
	marked, err := g.store.MarkIfAbsent(ctx, key, ttl)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "dedup mark failed", err)
	}
	return marked, nil
}

// Run resets the store at every local midnight until ctx is done. Each
// wait is re-armed from the clock after the previous reset.
func (g *Guard) Run(ctx context.Context) {
	for {
		now := g.clock.Now()
		wait := nextMidnight(now, g.loc).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := g.store.Reset(ctx); err != nil {
				g.logger.WarnContext(ctx, "dedup reset failed", "error", err)
				continue
			}
			g.logger.InfoContext(ctx, "dedup keys reset")
		}
	}
}

// nextMidnight is the start of the local day after now.
func nextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
