package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"habitpulse/internal/types"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// memStore is an in-memory TaskStore.
type memStore struct {
	mu        sync.Mutex
	tasks     map[string]*types.ScheduledTask
	seq       int
	claimErr  error
	requeued  []string
	deleteErr error
	getErr    error
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*types.ScheduledTask)}
}

func (s *memStore) Create(_ context.Context, t *types.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		s.seq++
		t.ID = fmt.Sprintf("task-%d", s.seq)
	}
	t.Status = types.TaskStatusPending
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*types.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundTask, "scheduled task not found", nil)
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) List(_ context.Context) ([]types.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	return ok, nil
}

func (s *memStore) ClaimDue(_ context.Context, horizon time.Time, limit int) ([]types.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	var due []*types.ScheduledTask
	for _, t := range s.tasks {
		if t.Status == types.TaskStatusPending && !t.FireAt.After(horizon) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]types.ScheduledTask, 0, len(due))
	for _, t := range due {
		t.Status = types.TaskStatusDispatched
		out = append(out, *t)
	}
	return out, nil
}

func (s *memStore) Requeue(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued = append(s.requeued, id)
	if t, ok := s.tasks[id]; ok {
		t.Status = types.TaskStatusPending
	}
	return nil
}

func (s *memStore) status(id string) types.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return t.Status
	}
	return ""
}

type invokeCall struct {
	url     string
	payload string
	token   string
}

type fakeInvoker struct {
	calls  []invokeCall
	result types.DeliveryResult
	err    error
}

func (f *fakeInvoker) Invoke(_ context.Context, url string, payload []byte, token types.SecretString) (types.DeliveryResult, error) {
	f.calls = append(f.calls, invokeCall{url: url, payload: string(payload), token: token.Unmask()})
	return f.result, f.err
}

var errBoom = errors.New("boom")
