package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds the whole probe run.
const healthCheckTimeout = 2 * time.Second

// PingProbe adapts a Ping-style function (pgxpool.Pool.Ping, for one) to
// HealthProbe.
type PingProbe struct {
	Label string
	Ping  func(ctx context.Context) error
}

func (p PingProbe) Name() string                    { return p.Label }
func (p PingProbe) Check(ctx context.Context) error { return p.Ping(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently. Any failure, panic or probe
// still running at the deadline yields 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(probes))
		g       errgroup.Group
	)
	for _, probe := range probes {
		probe := probe
		g.Go(func() error {
			err := runProbe(ctx, probe)
			mu.Lock()
			results[probe.Name()] = err
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	components := make(map[string]componentStatus, len(probes))
	healthy := true
	for _, probe := range probes {
		name := probe.Name()
		err, finished := results[name]
		switch {
		case !finished:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	if healthy {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Components: components})
		return
	}
	JSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Components: components})
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("probe panicked: %v", rec)
		}
	}()
	return p.Check(ctx)
}
