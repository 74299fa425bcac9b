package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"habitpulse/internal/types"
)

var (
	errBoom = errors.New("boom")
	// Tue 2024-01-02 08:00 in Asia/Karachi.
	testNow = time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
)

func karachi() *time.Location {
	loc, err := time.LoadLocation("Asia/Karachi")
	if err != nil {
		panic(err)
	}
	return loc
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// fakeQueue is an in-memory types.TaskQueue.
type fakeQueue struct {
	mu        sync.Mutex
	tasks     []types.ScheduledTask
	seq       int
	createErr error
	listErr   error
	deleteErr error
	deleted   []string
}

func (q *fakeQueue) CreateTask(_ context.Context, callbackURL string, payload []byte, fireAt time.Time, token types.SecretString) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.createErr != nil {
		return "", q.createErr
	}
	q.seq++
	id := fmt.Sprintf("task-%d", q.seq)
	q.tasks = append(q.tasks, types.ScheduledTask{
		ID:          id,
		CallbackURL: callbackURL,
		Payload:     payload,
		FireAt:      fireAt,
		AuthToken:   token,
		Status:      types.TaskStatusPending,
	})
	return id, nil
}

func (q *fakeQueue) ListTasks(context.Context) ([]types.ScheduledTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.listErr != nil {
		return nil, q.listErr
	}
	return append([]types.ScheduledTask(nil), q.tasks...), nil
}

func (q *fakeQueue) DeleteTask(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleteErr != nil {
		return q.deleteErr
	}
	q.deleted = append(q.deleted, id)
	for i, t := range q.tasks {
		if t.ID == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			break
		}
	}
	return nil
}

func (q *fakeQueue) add(payload string, fireAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.tasks = append(q.tasks, types.ScheduledTask{ID: fmt.Sprintf("seed-%d", q.seq), Payload: []byte(payload), FireAt: fireAt})
}

func (q *fakeQueue) snapshot() []types.ScheduledTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.ScheduledTask(nil), q.tasks...)
}

type fakeUsers struct {
	users    []*types.User
	listErr  error
	roles    []string
	purged   []string
	purgeErr error
}

func (f *fakeUsers) ListActiveByRoles(_ context.Context, roles []string) ([]*types.User, error) {
	f.roles = roles
	return f.users, f.listErr
}

func (f *fakeUsers) PurgeDeviceTokens(_ context.Context, tokens []string) (int64, error) {
	f.purged = append(f.purged, tokens...)
	return int64(len(tokens)), f.purgeErr
}

// fakeSender records batches. failBatch, when >= 0, makes that batch fail
// outright.
type fakeSender struct {
	batches   [][]types.PushMessage
	failBatch int
	invalid   map[string]bool
}

func newFakeSender() *fakeSender { return &fakeSender{failBatch: -1} }

func (f *fakeSender) SendBatch(_ context.Context, msgs []types.PushMessage) (types.BatchResult, error) {
	idx := len(f.batches)
	f.batches = append(f.batches, msgs)
	if idx == f.failBatch {
		return types.BatchResult{FailureCount: len(msgs)}, errBoom
	}
	var res types.BatchResult
	for _, m := range msgs {
		if f.invalid[m.Token] {
			res.FailureCount++
			res.InvalidTokens = append(res.InvalidTokens, m.Token)
			continue
		}
		res.SuccessCount++
	}
	return res, nil
}

func (f *fakeSender) total() int {
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type fakeLog struct {
	entries []types.DeliveryLogEntry
	err     error
}

func (f *fakeLog) Insert(_ context.Context, e *types.DeliveryLogEntry) error {
	f.entries = append(f.entries, *e)
	return f.err
}

type fakeNotifications struct {
	records map[string]*types.Notification
	err     error
}

func (f *fakeNotifications) GetByID(_ context.Context, id string) (*types.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, ok := f.records[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	cp := *n
	return &cp, nil
}

type metricsCall struct {
	name    string
	trigger types.DeliveryTrigger
	a, b    int
}

type fakeMetrics struct{ calls []metricsCall }

func (m *fakeMetrics) RecordBroadcast(_ context.Context, trigger types.DeliveryTrigger, sent, failed int) {
	m.calls = append(m.calls, metricsCall{name: "broadcast", trigger: trigger, a: sent, b: failed})
}

func (m *fakeMetrics) RecordScheduleFailure(context.Context) {
	m.calls = append(m.calls, metricsCall{name: "schedule_failure"})
}

func (m *fakeMetrics) RecordTasksRelayed(_ context.Context, n int) {
	m.calls = append(m.calls, metricsCall{name: "relayed", a: n})
}

func userWithTokens(id string, tokens ...string) *types.User {
	return &types.User{ID: id, Role: types.RoleUser, Active: true, FCMTokens: tokens}
}

func reminder(id string) *types.Notification {
	return &types.Notification{
		ID:     id,
		Title:  "Drink water",
		Body:   "Stay hydrated",
		Time:   "09:00",
		Days:   []int{1, 3, 5},
		Active: true,
	}
}

func newTestScheduler(q types.TaskQueue, m Metrics) *Scheduler {
	return NewScheduler(q, SchedulerConfig{
		Location:    karachi(),
		CallbackURL: "https://api.example.com/v1/internal/deliver",
		AuthToken:   "callback-token-0123456789",
	}, fixedClock{testNow}, m, nil)
}
