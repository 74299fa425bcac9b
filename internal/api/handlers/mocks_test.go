package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"

	"habitpulse/internal/core"
	"habitpulse/internal/notifications"
	"habitpulse/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

func notFound() error {
	return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
}

// =============================================================================
// Mock Implementations
// =============================================================================

type mockNotificationRepo struct {
	createFn  func(ctx context.Context, n *types.Notification) error
	getByIDFn func(ctx context.Context, id string) (*types.Notification, error)
	listFn    func(ctx context.Context, activeOnly bool) ([]*types.Notification, error)
	updateFn  func(ctx context.Context, n *types.Notification) error
	deleteFn  func(ctx context.Context, id string) error

	lastCreated *types.Notification
	lastUpdated *types.Notification
	deleted     []string
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *types.Notification) error {
	m.lastCreated = n
	if m.createFn != nil {
		return m.createFn(ctx, n)
	}
	n.ID = "n-new"
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id string) (*types.Notification, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &types.Notification{
		ID:     id,
		Title:  "Drink water",
		Body:   "Stay hydrated",
		Time:   "09:00",
		Days:   []int{1, 3, 5},
		Active: true,
	}, nil
}

func (m *mockNotificationRepo) List(ctx context.Context, activeOnly bool) ([]*types.Notification, error) {
	if m.listFn != nil {
		return m.listFn(ctx, activeOnly)
	}
	return []*types.Notification{}, nil
}

func (m *mockNotificationRepo) Update(ctx context.Context, n *types.Notification) error {
	m.lastUpdated = n
	if m.updateFn != nil {
		return m.updateFn(ctx, n)
	}
	return nil
}

func (m *mockNotificationRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockLifecycle struct {
	events []types.LifecycleEvent
	err    error
}

func (m *mockLifecycle) Handle(_ context.Context, ev types.LifecycleEvent) error {
	m.events = append(m.events, ev)
	return m.err
}

type mockScheduleInspector struct {
	next    time.Time
	hasNext bool
	tasks   []types.ScheduledTask
	err     error
}

func (m *mockScheduleInspector) NextOccurrence(*types.Notification) (time.Time, bool) {
	return m.next, m.hasNext
}

func (m *mockScheduleInspector) PendingTasks(context.Context, string) ([]types.ScheduledTask, error) {
	return m.tasks, m.err
}

type mockSender struct {
	sendNowFn func(ctx context.Context, id string) (types.DeliveryResult, error)
	executeFn func(ctx context.Context, id string) (types.DeliveryResult, error)
	calls     []string
	firedAt   time.Time
}

func (m *mockSender) SendNow(ctx context.Context, id string) (types.DeliveryResult, error) {
	m.calls = append(m.calls, "send:"+id)
	if m.sendNowFn != nil {
		return m.sendNowFn(ctx, id)
	}
	return types.DeliveryResult{Status: types.DeliveryStatusSent, Sent: 2}, nil
}

func (m *mockSender) Execute(ctx context.Context, id string, firedAt time.Time) (types.DeliveryResult, error) {
	m.calls = append(m.calls, "execute:"+id)
	m.firedAt = firedAt
	if m.executeFn != nil {
		return m.executeFn(ctx, id)
	}
	return types.DeliveryResult{Status: types.DeliveryStatusSent, Sent: 3}, nil
}

type mockBroadcaster struct {
	content notifications.Content
	trigger types.DeliveryTrigger
	err     error
}

func (m *mockBroadcaster) Broadcast(_ context.Context, _ string, trigger types.DeliveryTrigger, c notifications.Content) (types.DeliveryResult, error) {
	m.trigger = trigger
	m.content = c
	if m.err != nil {
		return types.DeliveryResult{Status: types.DeliveryStatusError}, m.err
	}
	return types.DeliveryResult{Status: types.DeliveryStatusSent, Sent: 1}, nil
}

type mockDeliveryLister struct {
	notificationID string
	limit          int
	entries        []types.DeliveryLogEntry
}

func (m *mockDeliveryLister) ListRecent(_ context.Context, notificationID string, limit int) ([]types.DeliveryLogEntry, error) {
	m.notificationID = notificationID
	m.limit = limit
	return m.entries, nil
}

// =============================================================================
// Helpers
// =============================================================================

// serve routes req through a chi router carrying the handler's routes so
// URL params resolve as in production.
func serve(register func(chi.Router), method, path string, body string, actor *types.Actor) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	register(r)

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != nil {
		req = req.WithContext(types.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var adminActor = &types.Actor{ID: "admin", Type: types.ActorTypeAdmin}
