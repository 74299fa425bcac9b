// Package main is the entry point for the reminder API.
//
// It loads configuration, opens the database pool, builds the reminder
// service graph and mounts the admin and delivery-callback handlers on the
// core chassis.
//
// Outside Lambda it serves HTTP on PORT and shuts down gracefully on SIGINT
// or SIGTERM. Inside Lambda it serves API Gateway HTTP API events through
// the httpadapter bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/go-chi/chi/v5"

	"habitpulse/internal/api/handlers"
	"habitpulse/internal/app"
	"habitpulse/internal/config"
	"habitpulse/internal/core"
	"habitpulse/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("habitpulse API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := app.OpenPool(ctx, cfg.Database)
	if err != nil {
		return err
	}

	awsCfg, err := app.LoadAWS(ctx, cfg.AWS)
	if err != nil {
		pool.Close()
		return err
	}
	metrics := app.NewMetrics(awsCfg, cfg.Observability, logger)

	svc, err := app.NewServices(pool, cfg, app.NewPushSender(cfg.Push, logger), metrics, logger)
	if err != nil {
		pool.Close()
		return err
	}

	srv, err := buildServer(cfg, logger, svc, metrics)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{Label: "database", Ping: pool.Ping})
	srv.OnShutdown = append(srv.OnShutdown, func(context.Context) error {
		pool.Close()
		return nil
	})
	srv.MountRoutes()

	if app.IsLambda() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildServer creates the server and registers the /v1 handlers. Admin
// routes require the admin key; the delivery callback requires the
// callback token. Routes are not mounted yet so callers can add probes.
func buildServer(cfg *config.Config, logger *slog.Logger, svc *app.Services, metrics core.MetricsCollector) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Metrics = metrics
	srv.Authenticator = core.NewKeyAuthenticator(cfg.Security.AdminAPIKeyHash, cfg.Scheduling.CallbackAuthToken)

	notificationHandler := handlers.NewNotificationHandler(
		svc.Notifications,
		svc.Bridge,
		svc.Scheduler,
		svc.Executor,
		svc.Broadcaster,
		svc.DeliveryLog,
		srv.Validator,
		logger,
	)
	deviceHandler := handlers.NewDeviceHandler(svc.Users, srv.Validator, logger)
	deliveryHandler := handlers.NewDeliveryHandler(svc.Executor, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RequireActor(types.ActorTypeAdmin))
				notificationHandler.RegisterRoutes(r)
				deviceHandler.RegisterRoutes(r)
			})
		},
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RequireActor(types.ActorTypeCallback))
				deliveryHandler.RegisterRoutes(r)
			})
		},
	)
	return srv, nil
}

// runLambda hands the router to the Lambda runtime. lambda.Start never
// returns.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	adapter := httpadapter.NewV2(srv.Handler())
	lambda.Start(adapter.ProxyWithContext)
	return nil
}

// runHTTPServer serves until a shutdown signal or a listener error, then
// drains in-flight requests and runs the server's shutdown hooks.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCtx, stop := app.SignalContext(context.Background())
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
