package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"habitpulse/internal/notifications"
	"habitpulse/internal/types"
)

// DefaultStaleDispatchAge is how long a task may sit in dispatched state
// before the relay assumes its queue message was lost.
const DefaultStaleDispatchAge = 30 * time.Minute

// abandonedTaskAge is how overdue a lone task must be before reconcile
// replaces it with the next occurrence.
const abandonedTaskAge = 24 * time.Hour

// -----------------------------------------------------------------------------
// Relay Service
// -----------------------------------------------------------------------------

// TaskRelayer moves due tasks onward. Satisfied by *queue.Relay.
type TaskRelayer interface {
	Run(ctx context.Context) (int, error)
}

// StaleRequeuer returns lost dispatched tasks to pending. Satisfied by
// *db.TaskRepository.
type StaleRequeuer interface {
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type RelayService struct {
	relay    TaskRelayer
	tasks    StaleRequeuer
	staleAge time.Duration
	metrics  notifications.Metrics
	logger   *slog.Logger
}

func NewRelayService(relay TaskRelayer, tasks StaleRequeuer, metrics notifications.Metrics, logger *slog.Logger) *RelayService {
	if metrics == nil {
		metrics = notifications.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayService{
		relay:    relay,
		tasks:    tasks,
		staleAge: DefaultStaleDispatchAge,
		metrics:  metrics,
		logger:   logger,
	}
}

// RelayDue requeues stale dispatched tasks and then relays everything due.
// Returns the number of tasks relayed.
func (s *RelayService) RelayDue(ctx context.Context, now time.Time) (int, error) {
	if s.tasks != nil {
		requeued, err := s.tasks.RequeueStale(ctx, now.Add(-s.staleAge))
		if err != nil {
			return 0, fmt.Errorf("requeueing stale tasks: %w", err)
		}
		if requeued > 0 {
			s.logger.WarnContext(ctx, "requeued stale dispatched tasks", "count", requeued)
		}
	}

	relayed, err := s.relay.Run(ctx)
	if relayed > 0 {
		s.metrics.RecordTasksRelayed(ctx, relayed)
	}
	if err != nil {
		return relayed, fmt.Errorf("relaying due tasks: %w", err)
	}
	return relayed, nil
}

// -----------------------------------------------------------------------------
// Reconcile Service
// -----------------------------------------------------------------------------

// ActiveNotificationLister lists schedulable candidates. Satisfied by
// *db.NotificationRepository.
type ActiveNotificationLister interface {
	ListActive(ctx context.Context) ([]*types.Notification, error)
}

// OccurrenceScheduler is the part of *notifications.Scheduler reconcile uses.
type OccurrenceScheduler interface {
	Schedule(ctx context.Context, n *types.Notification) error
	Cancel(ctx context.Context, recordID string) (int, error)
	PendingByRecord(ctx context.Context) (map[string][]types.ScheduledTask, error)
}

// ReconcileService repairs drift between records and the task queue: every
// schedulable record ends with exactly one task and tasks of deleted or
// inactive records are removed. It covers races between processes that the
// in-process lock cannot see.
type ReconcileService struct {
	notifications ActiveNotificationLister
	scheduler     OccurrenceScheduler
	logger        *slog.Logger
}

func NewReconcileService(n ActiveNotificationLister, s OccurrenceScheduler, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{notifications: n, scheduler: s, logger: logger}
}

// ReconcileSchedules returns the number of records whose tasks were changed.
func (s *ReconcileService) ReconcileSchedules(ctx context.Context, now time.Time) (int, error) {
	active, err := s.notifications.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active notifications: %w", err)
	}
	pending, err := s.scheduler.PendingByRecord(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing pending tasks: %w", err)
	}

	known := make(map[string]bool, len(active))
	var (
		fixed int
		errs  *multierror.Error
	)
	for _, n := range active {
		known[n.ID] = true
		if !notifications.Schedulable(n) {
			if len(pending[n.ID]) > 0 {
				if _, err := s.scheduler.Cancel(ctx, n.ID); err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				fixed++
			}
			continue
		}

		// A single task is left alone even when due; the relay will deliver
		// it. Only one abandoned for a full day is replaced.
		tasks := pending[n.ID]
		if len(tasks) == 1 && tasks[0].FireAt.After(now.Add(-abandonedTaskAge)) {
			continue
		}
		// Missing, duplicated or abandoned: Schedule replaces whatever is queued.
		if err := s.scheduler.Schedule(ctx, n); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("notification %s: %w", n.ID, err))
			continue
		}
		fixed++
	}

	for recordID := range pending {
		if known[recordID] {
			continue
		}
		if _, err := s.scheduler.Cancel(ctx, recordID); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		fixed++
	}

	s.logger.InfoContext(ctx, "schedule reconciliation complete",
		"active", len(active),
		"fixed", fixed,
	)
	return fixed, errs.ErrorOrNil()
}

// -----------------------------------------------------------------------------
// Delivery Log Pruning
// -----------------------------------------------------------------------------

// DeliveryLogPruner deletes old delivery log rows. Satisfied by
// *db.DeliveryLogRepository.
type DeliveryLogPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PruneService struct {
	log    DeliveryLogPruner
	logger *slog.Logger
}

func NewPruneService(log DeliveryLogPruner, logger *slog.Logger) *PruneService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneService{log: log, logger: logger}
}

func (s *PruneService) PruneDeliveryLog(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention)
	n, err := s.log.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning delivery log: %w", err)
	}
	s.logger.InfoContext(ctx, "delivery log pruned",
		"deleted", n,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return int(n), nil
}
