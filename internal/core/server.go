// Package core provides the API chassis for the reminder service.
// It creates a chi router usable both as a standard HTTP server (local dev)
// and behind the AWS Lambda proxy integration, and applies the cross-cutting
// middleware (recovery, request IDs, logging, auth) before requests reach
// the handlers in internal/api/handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"habitpulse/internal/config"
)

// MetricsCollector records API telemetry.
// Satisfied by *notifications.CloudWatchMetrics.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates the dependencies of the HTTP surface so tests can
// inject fakes and main can wire real ones.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// V1RouteRegistrars mount the domain handlers under /v1. Populated by
	// cmd/api so core does not import the handler package.
	V1RouteRegistrars []func(r chi.Router)

	// OnShutdown hooks run in order during Shutdown (pool close, flushes).
	OnShutdown []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer validates the required dependencies and prepares an empty
// router. The caller mounts routes with MountRoutes after populating the
// optional fields.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs the registered hooks and returns the first failure.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for _, hook := range s.OnShutdown {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			return fmt.Errorf("shutdown hook: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
