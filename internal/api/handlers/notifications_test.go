package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitpulse/internal/core"
	"habitpulse/internal/types"
)

type notificationFixture struct {
	repo       *mockNotificationRepo
	lifecycle  *mockLifecycle
	schedule   *mockScheduleInspector
	sender     *mockSender
	broadcast  *mockBroadcaster
	deliveries *mockDeliveryLister
	handler    *NotificationHandler
}

func newNotificationFixture() *notificationFixture {
	f := &notificationFixture{
		repo:       &mockNotificationRepo{},
		lifecycle:  &mockLifecycle{},
		schedule:   &mockScheduleInspector{},
		sender:     &mockSender{},
		broadcast:  &mockBroadcaster{},
		deliveries: &mockDeliveryLister{},
	}
	f.handler = NewNotificationHandler(f.repo, f.lifecycle, f.schedule, f.sender, f.broadcast, f.deliveries, testValidator(), testLogger())
	return f
}

func (f *notificationFixture) do(method, path, body string) *httptest.ResponseRecorder {
	return serve(f.handler.RegisterRoutes, method, path, body, adminActor)
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var env core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error
}

// =============================================================================
// Create
// =============================================================================

func TestCreate_StoresRecordAndEmitsCreatedEvent(t *testing.T) {
	f := newNotificationFixture()

	rec := f.do(http.MethodPost, "/notifications",
		`{"title":"Stretch","body":"Stand up","time":"07:30","days_of_week":["mon","Wednesday",5,"5"]}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decodeData[types.Notification](t, rec)
	assert.Equal(t, "n-new", got.ID)
	assert.Equal(t, []int{1, 3, 5}, got.Days)
	assert.True(t, got.Active, "active defaults to true")
	assert.Equal(t, "admin", f.repo.lastCreated.CreatedBy)

	require.Len(t, f.lifecycle.events, 1)
	ev := f.lifecycle.events[0]
	assert.Equal(t, types.LifecycleCreated, ev.Type)
	assert.Equal(t, "n-new", ev.RecordID)
	assert.Nil(t, ev.Before)
	require.NotNil(t, ev.After)
}

func TestCreate_LifecycleFailureDoesNotFailRequest(t *testing.T) {
	f := newNotificationFixture()
	f.lifecycle.err = types.NewAppError(types.ErrCodeUpstreamQueue, "queue down", nil)

	rec := f.do(http.MethodPost, "/notifications", `{"title":"a","body":"b","time":"10:00","days_of_week":[1]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code types.ErrorCode
	}{
		{"missing title", `{"body":"b","time":"10:00"}`, types.ErrCodeValidationMissingField},
		{"bad time", `{"title":"a","body":"b","time":"25:00"}`, types.ErrCodeValidationInvalidTime},
		{"only unknown weekdays", `{"title":"a","body":"b","time":"10:00","days_of_week":["someday"]}`, types.ErrCodeValidationInvalidWeekdays},
		{"fractional weekday", `{"title":"a","body":"b","time":"10:00","days_of_week":[1.5]}`, types.ErrCodeValidationInvalidWeekdays},
		{"empty weekdays", `{"title":"a","body":"b","time":"10:00","days_of_week":[]}`, types.ErrCodeValidationInvalidWeekdays},
		{"missing weekdays", `{"title":"a","body":"b","time":"10:00"}`, types.ErrCodeValidationInvalidWeekdays},
		{"unknown field", `{"title":"a","body":"b","time":"10:00","recordId":"x"}`, types.ErrCodeValidationInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNotificationFixture()
			rec := f.do(http.MethodPost, "/notifications", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.code), decodeError(t, rec).Code)
			assert.Nil(t, f.repo.lastCreated, "nothing should be stored")
			assert.Empty(t, f.lifecycle.events)
		})
	}
}

func TestCreate_DropsUnrecognisedWeekdays(t *testing.T) {
	f := newNotificationFixture()

	rec := f.do(http.MethodPost, "/notifications", `{"title":"a","body":"b","time":"10:00","days_of_week":["mon","xyz"]}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []int{1}, decodeData[types.Notification](t, rec).Days)
}

func TestCreate_InactiveWithoutDays(t *testing.T) {
	f := newNotificationFixture()

	rec := f.do(http.MethodPost, "/notifications", `{"title":"a","body":"b","time":"10:00","active":false}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.False(t, f.repo.lastCreated.Active)
	assert.Empty(t, f.repo.lastCreated.Days)
}

func TestCreate_RepoErrorSkipsLifecycle(t *testing.T) {
	f := newNotificationFixture()
	f.repo.createFn = func(context.Context, *types.Notification) error {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", errors.New("conn reset"))
	}

	rec := f.do(http.MethodPost, "/notifications", `{"title":"a","body":"b","time":"10:00","days_of_week":[2]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.lifecycle.events)
}

// =============================================================================
// Update / Delete
// =============================================================================

func TestUpdate_AppliesPartialChanges(t *testing.T) {
	f := newNotificationFixture()

	rec := f.do(http.MethodPatch, "/notifications/n1", `{"time":"18:45","active":false}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := f.repo.lastUpdated
	require.NotNil(t, updated)
	assert.Equal(t, "18:45", updated.Time)
	assert.False(t, updated.Active)
	assert.Equal(t, "Drink water", updated.Title, "untouched fields are preserved")
	assert.Equal(t, []int{1, 3, 5}, updated.Days)
	assert.Equal(t, "admin", updated.UpdatedBy)

	require.Len(t, f.lifecycle.events, 1)
	ev := f.lifecycle.events[0]
	assert.Equal(t, types.LifecycleUpdated, ev.Type)
	assert.Equal(t, "09:00", ev.Before.Time)
	assert.Equal(t, "18:45", ev.After.Time)
}

func TestUpdate_RejectsActiveRecordWithoutDays(t *testing.T) {
	for name, body := range map[string]string{
		"empty days":         `{"days_of_week":[]}`,
		"only unknown days":  `{"days_of_week":["xyz"]}`,
		"reactivate no days": `{"active":true}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newNotificationFixture()
			f.repo.getByIDFn = func(_ context.Context, id string) (*types.Notification, error) {
				days := []int{1, 3, 5}
				if name == "reactivate no days" {
					days = []int{}
				}
				return &types.Notification{ID: id, Title: "t", Body: "b", Time: "09:00", Days: days, Active: name != "reactivate no days"}, nil
			}

			rec := f.do(http.MethodPatch, "/notifications/n1", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(types.ErrCodeValidationInvalidWeekdays), decodeError(t, rec).Code)
			assert.Nil(t, f.repo.lastUpdated)
			assert.Empty(t, f.lifecycle.events)
		})
	}
}

func TestUpdate_EmptyDaysAllowedWhenDeactivating(t *testing.T) {
	f := newNotificationFixture()
	rec := f.do(http.MethodPatch, "/notifications/n1", `{"days_of_week":[],"active":false}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, f.repo.lastUpdated.Days)
	assert.False(t, f.repo.lastUpdated.Active)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newNotificationFixture()
	f.repo.getByIDFn = func(context.Context, string) (*types.Notification, error) { return nil, notFound() }

	rec := f.do(http.MethodPatch, "/notifications/missing", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Nil(t, f.repo.lastUpdated)
}

func TestUpdate_RejectsEmptyTitle(t *testing.T) {
	f := newNotificationFixture()
	rec := f.do(http.MethodPatch, "/notifications/n1", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete_EmitsDeletedEvent(t *testing.T) {
	f := newNotificationFixture()

	rec := f.do(http.MethodDelete, "/notifications/n1", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"n1"}, f.repo.deleted)
	require.Len(t, f.lifecycle.events, 1)
	assert.Equal(t, types.LifecycleDeleted, f.lifecycle.events[0].Type)
	assert.Nil(t, f.lifecycle.events[0].After)
}

func TestDelete_NotFound(t *testing.T) {
	f := newNotificationFixture()
	f.repo.getByIDFn = func(context.Context, string) (*types.Notification, error) { return nil, notFound() }

	rec := f.do(http.MethodDelete, "/notifications/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.repo.deleted)
	assert.Empty(t, f.lifecycle.events)
}

// =============================================================================
// Read endpoints
// =============================================================================

func TestList_ActiveFilter(t *testing.T) {
	f := newNotificationFixture()
	var gotActive bool
	f.repo.listFn = func(_ context.Context, activeOnly bool) ([]*types.Notification, error) {
		gotActive = activeOnly
		return []*types.Notification{{ID: "a"}, {ID: "b"}}, nil
	}

	rec := f.do(http.MethodGet, "/notifications?active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotActive)
	assert.Len(t, decodeData[[]types.Notification](t, rec), 2)
}

func TestGet(t *testing.T) {
	f := newNotificationFixture()
	rec := f.do(http.MethodGet, "/notifications/n9", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "n9", decodeData[types.Notification](t, rec).ID)
}

func TestSchedule_ReportsPendingAndNext(t *testing.T) {
	f := newNotificationFixture()
	next := time.Date(2024, 1, 3, 4, 0, 0, 0, time.UTC)
	f.schedule.next, f.schedule.hasNext = next, true
	f.schedule.tasks = []types.ScheduledTask{{ID: "t1", FireAt: next, Status: types.TaskStatusPending}}

	rec := f.do(http.MethodGet, "/notifications/n1/schedule", "")

	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeData[ScheduleStatus](t, rec)
	assert.True(t, status.Schedulable)
	require.NotNil(t, status.NextOccurrence)
	assert.True(t, next.Equal(*status.NextOccurrence))
	require.Len(t, status.Pending, 1)
	assert.Equal(t, "t1", status.Pending[0].TaskID)
}

func TestSchedule_UnschedulableHasNoNext(t *testing.T) {
	f := newNotificationFixture()
	f.repo.getByIDFn = func(_ context.Context, id string) (*types.Notification, error) {
		return &types.Notification{ID: id, Time: "09:00", Active: true}, nil
	}
	f.schedule.hasNext = true

	rec := f.do(http.MethodGet, "/notifications/n1/schedule", "")
	status := decodeData[ScheduleStatus](t, rec)
	assert.False(t, status.Schedulable)
	assert.Nil(t, status.NextOccurrence)
	assert.Empty(t, status.Pending)
}

func TestListDeliveries_Limit(t *testing.T) {
	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, defaultDeliveryLimit},
		{"?limit=10&notification_id=n1", http.StatusOK, 10},
		{"?limit=5000", http.StatusOK, maxDeliveryLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			f := newNotificationFixture()
			rec := f.do(http.MethodGet, "/deliveries"+tt.query, "")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLimit, f.deliveries.limit)
		})
	}
}

// =============================================================================
// Send
// =============================================================================

func TestSendNow(t *testing.T) {
	f := newNotificationFixture()
	rec := f.do(http.MethodPost, "/notifications/n1/send", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"send:n1"}, f.sender.calls)
	assert.Equal(t, 2, decodeData[types.DeliveryResult](t, rec).Sent)
}

func TestSendNow_NotFound(t *testing.T) {
	f := newNotificationFixture()
	f.sender.sendNowFn = func(context.Context, string) (types.DeliveryResult, error) {
		return types.DeliveryResult{}, notFound()
	}
	rec := f.do(http.MethodPost, "/notifications/nope/send", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendTest_BroadcastsAdHocContent(t *testing.T) {
	f := newNotificationFixture()
	rec := f.do(http.MethodPost, "/notifications/test", `{"title":"Hello","body":"World"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.TriggerManual, f.broadcast.trigger)
	assert.Equal(t, "Hello", f.broadcast.content.Title)
	assert.Equal(t, types.PushTypeTest, f.broadcast.content.Data[types.PushDataType])
	assert.Empty(t, f.sender.calls, "/test must not be routed as a record id")
}

func TestSendTest_UpstreamError(t *testing.T) {
	f := newNotificationFixture()
	f.broadcast.err = types.NewAppError(types.ErrCodeUpstreamPush, "push transport unavailable", nil)

	rec := f.do(http.MethodPost, "/notifications/test", `{"title":"Hello","body":"World"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
