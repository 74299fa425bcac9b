package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"habitpulse/internal/core"
	"habitpulse/internal/types"
)

// OccurrenceExecutor is satisfied by *notifications.Executor.
type OccurrenceExecutor interface {
	Execute(ctx context.Context, recordID string, firedAt time.Time) (types.DeliveryResult, error)
}

// DeliveryHandler is the callback target of the task queue. Only the
// callback credential may reach it.
type DeliveryHandler struct {
	executor  OccurrenceExecutor
	validator *core.Validator
	logger    *slog.Logger
}

func NewDeliveryHandler(executor OccurrenceExecutor, v *core.Validator, l *slog.Logger) *DeliveryHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DeliveryHandler{executor: executor, validator: v, logger: l}
}

func (h *DeliveryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/internal/deliver", h.Deliver)
}

// Deliver handles POST /v1/internal/deliver.
//
// not_found and inactive are benign and answered with 200 so the queue
// does not retry. A failed run answers with the error status, which makes
// the queue retry.
func (h *DeliveryHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	var req types.OccurrencePayload
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.executor.Execute(r.Context(), req.NotificationID, req.FireAt)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "delivery failed",
			"notification_id", req.NotificationID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "delivery complete",
		"notification_id", req.NotificationID,
		"status", result.Status,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	core.Data(w, r, http.StatusOK, result)
}
