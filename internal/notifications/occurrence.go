package notifications

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"habitpulse/internal/recurrence"
	"habitpulse/internal/types"
)

// ruleFor returns the recurrence rule of n when n can be scheduled at all:
// it must be active, carry at least one weekday and a valid HH:mm time.
func ruleFor(n *types.Notification) (recurrence.Rule, bool) {
	if n == nil || !n.Active || len(n.Days) == 0 {
		return recurrence.Rule{}, false
	}
	rule, err := recurrence.ParseRule(n.Time, n.Days)
	if err != nil || rule.Days.Empty() {
		return recurrence.Rule{}, false
	}
	return rule, true
}

// Schedulable reports whether n has a future occurrence worth queuing.
func Schedulable(n *types.Notification) bool {
	_, ok := ruleFor(n)
	return ok
}

type SchedulerConfig struct {
	Location    *time.Location
	CallbackURL string
	AuthToken   types.SecretString
}

// Scheduler keeps at most one pending task per notification in the task
// queue. Schedule replaces whatever is queued for the record with a task for
// its next occurrence; Cancel removes them all.
type Scheduler struct {
	queue   types.TaskQueue
	cfg     SchedulerConfig
	clock   types.Clock
	metrics Metrics
	logger  types.Logger
	locks   *keyedMutex
}

func NewScheduler(queue types.TaskQueue, cfg SchedulerConfig, clock types.Clock, metrics Metrics, logger types.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Scheduler{
		queue:   queue,
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		locks:   newKeyedMutex(),
	}
}

// NextOccurrence computes when n fires next, in UTC.
func (s *Scheduler) NextOccurrence(n *types.Notification) (time.Time, bool) {
	rule, ok := ruleFor(n)
	if !ok {
		return time.Time{}, false
	}
	return rule.Next(s.clock.Now(), s.cfg.Location)
}

// Schedule queues the next occurrence of n after cancelling any task already
// queued for it. Records that are inactive, have no weekdays or a malformed
// time are left untouched. If the cancel fails nothing is queued, so a record
// never ends up with two tasks; reconcile_schedules repairs it later.
func (s *Scheduler) Schedule(ctx context.Context, n *types.Notification) error {
	return s.ScheduleAfter(ctx, n, time.Time{})
}

// ScheduleAfter is Schedule for an occurrence that fired at firedAt. The next
// occurrence is computed from the later of now and firedAt, so a task run a
// few seconds early does not queue its own instant again.
func (s *Scheduler) ScheduleAfter(ctx context.Context, n *types.Notification, firedAt time.Time) error {
	rule, ok := ruleFor(n)
	if !ok {
		return nil
	}

	unlock := s.locks.Lock(n.ID)
	defer unlock()

	logger := s.logger.With("notification_id", n.ID)

	if _, err := s.cancelLocked(ctx, n.ID); err != nil {
		logger.Warn("cancel before schedule failed, not scheduling", "error", err.Error())
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamQueue, "failed to cancel pending occurrence", err,
			map[string]any{"notification_id": n.ID})
	}

	from := s.clock.Now()
	if firedAt.After(from) {
		from = firedAt
	}
	fireAt, ok := rule.Next(from, s.cfg.Location)
	if !ok {
		logger.Info("no upcoming occurrence, not scheduling")
		return nil
	}

	payload, err := json.Marshal(types.OccurrencePayload{NotificationID: n.ID, FireAt: fireAt})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode occurrence payload", err)
	}

	taskID, err := s.queue.CreateTask(ctx, s.cfg.CallbackURL, payload, fireAt, s.cfg.AuthToken)
	if err != nil {
		s.metrics.RecordScheduleFailure(ctx)
		logger.Error("failed to schedule occurrence", "fire_at", fireAt, "error", err.Error())
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamQueue, "failed to schedule next occurrence", err,
			map[string]any{"notification_id": n.ID})
	}

	logger.Info("occurrence scheduled", "task_id", taskID, "fire_at", fireAt)
	return nil
}

// Cancel deletes every queued task whose payload names recordID and returns
// how many were removed. Tasks with undecodable payloads are skipped.
func (s *Scheduler) Cancel(ctx context.Context, recordID string) (int, error) {
	unlock := s.locks.Lock(recordID)
	defer unlock()
	return s.cancelLocked(ctx, recordID)
}

func (s *Scheduler) cancelLocked(ctx context.Context, recordID string) (int, error) {
	tasks, err := s.tasksFor(ctx, recordID)
	if err != nil {
		return 0, err
	}

	var (
		removed int
		errs    *multierror.Error
	)
	for _, t := range tasks {
		if err := s.queue.DeleteTask(ctx, t.ID); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("cancelled pending occurrences", "notification_id", recordID, "count", removed)
	}
	return removed, errs.ErrorOrNil()
}

// PendingTasks lists queued tasks for recordID, earliest first.
func (s *Scheduler) PendingTasks(ctx context.Context, recordID string) ([]types.ScheduledTask, error) {
	return s.tasksFor(ctx, recordID)
}

func (s *Scheduler) tasksFor(ctx context.Context, recordID string) ([]types.ScheduledTask, error) {
	all, err := s.queue.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.ScheduledTask
	for _, t := range all {
		id, ok := decodeRecordID(t.Payload)
		if !ok {
			continue
		}
		if id == recordID {
			out = append(out, t)
		}
	}
	return out, nil
}

// PendingByRecord groups every queued task by the record it belongs to.
func (s *Scheduler) PendingByRecord(ctx context.Context) (map[string][]types.ScheduledTask, error) {
	all, err := s.queue.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]types.ScheduledTask)
	for _, t := range all {
		if id, ok := decodeRecordID(t.Payload); ok {
			out[id] = append(out[id], t)
		}
	}
	return out, nil
}

func decodeRecordID(payload []byte) (string, bool) {
	var p types.OccurrencePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.NotificationID == "" {
		return "", false
	}
	return p.NotificationID, true
}

// keyedMutex serializes work per key and drops idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
