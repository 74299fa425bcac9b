package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"habitpulse/internal/core"
)

// DeviceRepo is satisfied by *db.UserRepository.
type DeviceRepo interface {
	AddDeviceToken(ctx context.Context, userID, token string) error
	RemoveDeviceToken(ctx context.Context, userID, token string) error
}

type RegisterDeviceRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}

// DeviceHandler manages the FCM registration tokens of a user.
type DeviceHandler struct {
	repo      DeviceRepo
	validator *core.Validator
	logger    *slog.Logger
}

func NewDeviceHandler(repo DeviceRepo, v *core.Validator, l *slog.Logger) *DeviceHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DeviceHandler{repo: repo, validator: v, logger: l}
}

func (h *DeviceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/users/{userID}/devices", h.Register)
	r.Delete("/users/{userID}/devices/{token}", h.Unregister)
}

// Register handles POST /v1/users/{userID}/devices. Registering a token the
// user already has is a no-op.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.repo.AddDeviceToken(r.Context(), userID, req.Token); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "device token registered", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// Unregister handles DELETE /v1/users/{userID}/devices/{token}.
func (h *DeviceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.repo.RemoveDeviceToken(r.Context(), userID, chi.URLParam(r, "token")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
