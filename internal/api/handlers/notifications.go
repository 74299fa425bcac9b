// Package handlers contains the HTTP handlers of the reminder API.
//
// notifications.go covers the admin surface for reminder records:
//   - list, get, create, update (PATCH), delete
//   - send now and ad-hoc test broadcasts
//   - schedule inspection and the delivery log
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"habitpulse/internal/core"
	"habitpulse/internal/notifications"
	"habitpulse/internal/recurrence"
	"habitpulse/internal/types"
)

// --- Service Interfaces ---

// NotificationRepo is satisfied by *db.NotificationRepository.
type NotificationRepo interface {
	Create(ctx context.Context, n *types.Notification) error
	GetByID(ctx context.Context, id string) (*types.Notification, error)
	List(ctx context.Context, activeOnly bool) ([]*types.Notification, error)
	Update(ctx context.Context, n *types.Notification) error
	Delete(ctx context.Context, id string) error
}

// LifecycleHandler applies scheduling side effects of a mutation.
// Satisfied by *notifications.Bridge.
type LifecycleHandler interface {
	Handle(ctx context.Context, ev types.LifecycleEvent) error
}

// ScheduleInspector is satisfied by *notifications.Scheduler.
type ScheduleInspector interface {
	NextOccurrence(n *types.Notification) (time.Time, bool)
	PendingTasks(ctx context.Context, recordID string) ([]types.ScheduledTask, error)
}

// ImmediateSender is satisfied by *notifications.Executor.
type ImmediateSender interface {
	SendNow(ctx context.Context, recordID string) (types.DeliveryResult, error)
}

// ContentBroadcaster is satisfied by *notifications.Broadcaster.
type ContentBroadcaster interface {
	Broadcast(ctx context.Context, notificationID string, trigger types.DeliveryTrigger, c notifications.Content) (types.DeliveryResult, error)
}

// DeliveryLister is satisfied by *db.DeliveryLogRepository.
type DeliveryLister interface {
	ListRecent(ctx context.Context, notificationID string, limit int) ([]types.DeliveryLogEntry, error)
}

const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 200
)

// --- Request/Response Models ---

// CreateNotificationRequest is the body of POST /v1/notifications.
// days_of_week accepts numbers 0..6, numeric strings and English day names.
type CreateNotificationRequest struct {
	Title  string `json:"title" validate:"required,max=100"`
	Body   string `json:"body" validate:"required,max=500"`
	Time   string `json:"time" validate:"required,hhmm"`
	Days   []any  `json:"days_of_week"`
	Active *bool  `json:"active,omitempty"`
}

// UpdateNotificationRequest is the body of PATCH /v1/notifications/{id}.
// Absent fields are left unchanged; an explicit empty days_of_week clears
// the schedule.
type UpdateNotificationRequest struct {
	Title  *string `json:"title,omitempty" validate:"omitempty,min=1,max=100"`
	Body   *string `json:"body,omitempty" validate:"omitempty,min=1,max=500"`
	Time   *string `json:"time,omitempty" validate:"omitempty,hhmm"`
	Days   []any   `json:"days_of_week,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// TestBroadcastRequest is the body of POST /v1/notifications/test.
type TestBroadcastRequest struct {
	Title string `json:"title" validate:"required,max=100"`
	Body  string `json:"body" validate:"required,max=500"`
}

type PendingTaskView struct {
	TaskID string           `json:"task_id"`
	FireAt time.Time        `json:"fire_at"`
	Status types.TaskStatus `json:"status"`
}

// ScheduleStatus is returned by GET /v1/notifications/{id}/schedule.
type ScheduleStatus struct {
	NotificationID string            `json:"notification_id"`
	Schedulable    bool              `json:"schedulable"`
	NextOccurrence *time.Time        `json:"next_occurrence"`
	Pending        []PendingTaskView `json:"pending"`
}

// --- Handler ---

type NotificationHandler struct {
	repo       NotificationRepo
	lifecycle  LifecycleHandler
	schedule   ScheduleInspector
	sender     ImmediateSender
	broadcast  ContentBroadcaster
	deliveries DeliveryLister
	validator  *core.Validator
	logger     *slog.Logger
}

func NewNotificationHandler(
	repo NotificationRepo,
	lifecycle LifecycleHandler,
	schedule ScheduleInspector,
	sender ImmediateSender,
	broadcast ContentBroadcaster,
	deliveries DeliveryLister,
	v *core.Validator,
	l *slog.Logger,
) *NotificationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &NotificationHandler{
		repo:       repo,
		lifecycle:  lifecycle,
		schedule:   schedule,
		sender:     sender,
		broadcast:  broadcast,
		deliveries: deliveries,
		validator:  v,
		logger:     l,
	}
}

func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/test", h.SendTest)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/send", h.SendNow)
		r.Get("/{id}/schedule", h.Schedule)
	})
	r.Get("/deliveries", h.ListDeliveries)
}

// List handles GET /v1/notifications. ?active=true restricts to active records.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	records, err := h.repo.List(r.Context(), activeOnly)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, records)
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, n)
}

// Create handles POST /v1/notifications. The record is stored first; the
// immediate fan-out and first schedule are best-effort and never fail the
// request.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	n := &types.Notification{
		Title:     req.Title,
		Body:      req.Body,
		Time:      req.Time,
		Days:      parseDays(req.Days),
		Active:    req.Active == nil || *req.Active,
		CreatedBy: actorID(r.Context()),
	}
	if err := requireDays(n); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.repo.Create(r.Context(), n); err != nil {
		core.Error(w, r, err)
		return
	}

	h.applyLifecycle(r.Context(), types.LifecycleEvent{
		Type:     types.LifecycleCreated,
		RecordID: n.ID,
		After:    n,
	})
	core.Data(w, r, http.StatusCreated, n)
}

// Update handles PATCH /v1/notifications/{id}.
func (h *NotificationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateNotificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	before, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	after := *before
	if req.Title != nil {
		after.Title = *req.Title
	}
	if req.Body != nil {
		after.Body = *req.Body
	}
	if req.Time != nil {
		after.Time = *req.Time
	}
	if req.Days != nil {
		after.Days = parseDays(req.Days)
	}
	if req.Active != nil {
		after.Active = *req.Active
	}
	if err := requireDays(&after); err != nil {
		core.Error(w, r, err)
		return
	}
	after.UpdatedBy = actorID(r.Context())

	if err := h.repo.Update(r.Context(), &after); err != nil {
		core.Error(w, r, err)
		return
	}

	h.applyLifecycle(r.Context(), types.LifecycleEvent{
		Type:     types.LifecycleUpdated,
		RecordID: after.ID,
		Before:   before,
		After:    &after,
	})
	core.Data(w, r, http.StatusOK, &after)
}

// Delete handles DELETE /v1/notifications/{id}. Pending occurrences are
// cancelled after the row is gone.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	before, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	h.applyLifecycle(r.Context(), types.LifecycleEvent{
		Type:     types.LifecycleDeleted,
		RecordID: id,
		Before:   before,
	})
	w.WriteHeader(http.StatusNoContent)
}

// SendNow handles POST /v1/notifications/{id}/send.
func (h *NotificationHandler) SendNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.sender.SendNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, result)
}

// SendTest handles POST /v1/notifications/test with ad-hoc content.
func (h *NotificationHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	var req TestBroadcastRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.broadcast.Broadcast(r.Context(), "", types.TriggerManual, notifications.Content{
		Title: req.Title,
		Body:  req.Body,
		Data:  map[string]string{types.PushDataType: types.PushTypeTest},
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, result)
}

// Schedule handles GET /v1/notifications/{id}/schedule.
func (h *NotificationHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	tasks, err := h.schedule.PendingTasks(r.Context(), n.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	status := ScheduleStatus{
		NotificationID: n.ID,
		Schedulable:    notifications.Schedulable(n),
		Pending:        make([]PendingTaskView, 0, len(tasks)),
	}
	if status.Schedulable {
		if next, ok := h.schedule.NextOccurrence(n); ok {
			status.NextOccurrence = &next
		}
	}
	for _, t := range tasks {
		status.Pending = append(status.Pending, PendingTaskView{TaskID: t.ID, FireAt: t.FireAt, Status: t.Status})
	}
	core.Data(w, r, http.StatusOK, status)
}

// ListDeliveries handles GET /v1/deliveries?limit=&notification_id=.
func (h *NotificationHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeliveryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "limit must be a positive integer", err))
			return
		}
		limit = min(n, maxDeliveryLimit)
	}

	entries, err := h.deliveries.ListRecent(r.Context(), r.URL.Query().Get("notification_id"), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, entries)
}

func (h *NotificationHandler) applyLifecycle(ctx context.Context, ev types.LifecycleEvent) {
	if err := h.lifecycle.Handle(ctx, ev); err != nil {
		h.logger.WarnContext(ctx, "lifecycle side effects incomplete",
			"event", ev.Type,
			"notification_id", ev.RecordID,
			"error", err,
		)
	}
}

// parseDays normalises loosely typed weekdays. Unrecognised values are
// dropped.
func parseDays(raw []any) []int {
	return recurrence.NormalizeWeekdays(raw)
}

// requireDays rejects an active record that can never fire. An inactive
// record may keep an empty set.
func requireDays(n *types.Notification) error {
	if n.Active && len(n.Days) == 0 {
		return types.NewAppError(
			types.ErrCodeValidationInvalidWeekdays,
			"an active notification needs at least one day in days_of_week (0 = Sunday to 6 = Saturday, or day names)",
			nil,
		)
	}
	return nil
}

func actorID(ctx context.Context) string {
	if actor, ok := types.GetActor(ctx); ok {
		return actor.ID
	}
	return ""
}
