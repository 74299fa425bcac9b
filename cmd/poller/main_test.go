package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"habitpulse/internal/config"
	"habitpulse/internal/notifications"
	"habitpulse/internal/notifications/dedup"
	"habitpulse/internal/types"
)

// cancellingLister cancels the run after the first tick has listed records.
type cancellingLister struct {
	mu     sync.Mutex
	calls  int
	cancel context.CancelFunc
}

func (l *cancellingLister) ListActive(context.Context) ([]*types.Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.cancel()
	return nil, nil
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(context.Context, string, types.DeliveryTrigger, notifications.Content) (types.DeliveryResult, error) {
	return types.DeliveryResult{Status: types.DeliveryStatusSent}, nil
}

func pollerConfig() *config.Config {
	return &config.Config{
		Scheduling: config.SchedulingConfig{
			TargetTimezone: "Asia/Karachi",
			PollInterval:   15 * time.Second,
		},
		Dedup: config.DedupConfig{Window: 45 * time.Second, Backend: "memory"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildRuntime_BadTimezone(t *testing.T) {
	cfg := pollerConfig()
	cfg.Scheduling.TargetTimezone = "Nowhere/Special"

	if _, _, err := buildRuntime(cfg, dedup.NewMemoryStore(), &cancellingLister{}, nopBroadcaster{}, quietLogger()); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestRunRuntime_StopsCleanlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lister := &cancellingLister{cancel: cancel}

	guard, poller, err := buildRuntime(pollerConfig(), dedup.NewMemoryStore(), lister, nopBroadcaster{}, quietLogger())
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- runRuntime(ctx, guard, poller) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runRuntime: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop after cancel")
	}

	lister.mu.Lock()
	defer lister.mu.Unlock()
	if lister.calls != 1 {
		t.Errorf("ListActive calls = %d, want 1", lister.calls)
	}
}
