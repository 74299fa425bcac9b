package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"habitpulse/internal/types"
)

const defaultRequestTimeout = 25 * time.Second

var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes registers the middleware chain, the /v1 group and /health.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", s.mountV1)
	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in order:
//
//  1. Recoverer       outermost, catches everything below
//  2. ContextTimeout  soft deadline ahead of the Lambda hard timeout
//  3. RequestID
//  4. SecurityHeaders
//  5. RequestLogger   needs the request ID
//  6. CORS
//  7. Metrics
//  8. Auth
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(s.AuthMiddleware)
}

func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware bounds the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware propagates X-Request-Id or generates one, and echoes
// it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}
