// Package main is the entrypoint for the Scheduler Lambda function.
//
// The Scheduler is a maintenance multiplexer. EventBridge rules send a
// MaintenancePayload naming the task, and the handler routes it to the
// matching service:
//
//	relay_due_tasks      every minute
//	reconcile_schedules  hourly
//	prune_delivery_log   daily
//
// Each run holds a per-task job lock so overlapping invocations skip, and
// is recorded in job_history.
//
// Outside Lambda the same handler is driven by local tickers until SIGINT
// or SIGTERM. For manual runs and backfills:
//
//	go run ./cmd/scheduler --list
//	go run ./cmd/scheduler --task=prune_delivery_log
//	go run ./cmd/scheduler --task=relay_due_tasks --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/scheduler --task=reconcile_schedules --dry-run
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"habitpulse/internal/app"
	"habitpulse/internal/db"
	"habitpulse/internal/scheduler"
)

// lockTTL outlives the Lambda timeout so a crashed run cannot hold a task
// forever.
const lockTTL = 15 * time.Minute

// Local tick intervals, mirroring the EventBridge rules.
const (
	localRelayInterval     = time.Minute
	localReconcileInterval = time.Hour
	localPruneInterval     = 24 * time.Hour
)

var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskRelayDueTasks:      "Hand due delivery tasks to the delivery queue",
	scheduler.TaskReconcileSchedules: "Ensure every active reminder has a pending task",
	scheduler.TaskPruneDeliveryLog:   "Delete delivery log rows past retention",
}

// ServiceRegistry holds the services the multiplexer routes to.
type ServiceRegistry struct {
	Relay     RelayService
	Reconcile ReconcileService
	Prune     PruneService
}

type RelayService interface {
	RelayDue(ctx context.Context, now time.Time) (int, error)
}

type ReconcileService interface {
	ReconcileSchedules(ctx context.Context, now time.Time) (int, error)
}

type PruneService interface {
	PruneDeliveryLog(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}

// JobLocker is satisfied by *db.JobLockRepository.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian is satisfied by *db.JobHistoryRepository.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

type Handler struct {
	Services   ServiceRegistry
	JobLock    JobLocker
	JobHistory JobHistorian
	WorkerID   string
	// Retention is how long delivery log rows are kept.
	Retention time.Duration
	Logger    *slog.Logger
	// Now defaults to time.Now().UTC().
	Now func() time.Time
}

// Handle runs one maintenance task:
//  1. resolve the reference time;
//  2. take the task's job lock, skipping when another worker holds it;
//  3. record the start in job_history;
//  4. dispatch to the service;
//  5. record the outcome and release the lock.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := h.now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	taskStr := string(payload.Task)
	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	logger.InfoContext(ctx, "scheduler handler invoked",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
	)

	lockID := taskStr
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker, skipping", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}
	defer func() {
		if err := h.JobLock.Release(context.WithoutCancel(ctx), lockID, h.WorkerID); err != nil {
			logger.WarnContext(ctx, "failed to release job lock", "lock_id", lockID, "error", err)
		}
	}()

	jobID, err := h.JobHistory.Start(ctx, taskStr)
	if err != nil {
		// History is best effort; 0 means Finish is skipped.
		logger.ErrorContext(ctx, "failed to start job history", "task", taskStr, "error", err)
		jobID = 0
	}

	items, execErr := h.dispatch(ctx, payload.Task, now)

	status := "success"
	if execErr != nil {
		status = "failed"
	}
	if jobID != 0 {
		if err := h.JobHistory.Finish(context.WithoutCancel(ctx), jobID, status, items, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", err)
		}
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"task", taskStr,
			"error", execErr,
			"items_before_error", items,
		)
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", taskStr, items)
	logger.InfoContext(ctx, result, "task", taskStr, "items", items)
	return result, nil
}

func (h *Handler) dispatch(ctx context.Context, task scheduler.TaskType, now time.Time) (int, error) {
	switch task {
	case scheduler.TaskRelayDueTasks:
		return h.Services.Relay.RelayDue(ctx, now)
	case scheduler.TaskReconcileSchedules:
		return h.Services.Reconcile.ReconcileSchedules(ctx, now)
	case scheduler.TaskPruneDeliveryLog:
		return h.Services.Prune.PruneDeliveryLog(ctx, now, h.Retention)
	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// runLocal drives the handler from tickers. Relay and reconcile also run
// once at startup.
func runLocal(ctx context.Context, h *Handler) {
	invoke := func(task scheduler.TaskType) {
		if _, err := h.Handle(ctx, scheduler.MaintenancePayload{Task: task}); err != nil {
			h.Logger.ErrorContext(ctx, "local maintenance run failed", "task", string(task), "error", err)
		}
	}

	relay := time.NewTicker(localRelayInterval)
	defer relay.Stop()
	reconcile := time.NewTicker(localReconcileInterval)
	defer reconcile.Stop()
	prune := time.NewTicker(localPruneInterval)
	defer prune.Stop()

	invoke(scheduler.TaskReconcileSchedules)
	invoke(scheduler.TaskRelayDueTasks)

	for {
		select {
		case <-ctx.Done():
			return
		case <-relay.C:
			invoke(scheduler.TaskRelayDueTasks)
		case <-reconcile.C:
			invoke(scheduler.TaskReconcileSchedules)
		case <-prune.C:
			invoke(scheduler.TaskPruneDeliveryLog)
		}
	}
}

// oneShot is a manual invocation requested on the command line.
type oneShot struct {
	list    bool
	dryRun  bool
	payload *scheduler.MaintenancePayload
}

func parseFlags(args []string) (oneShot, error) {
	fs := flag.NewFlagSet("scheduler", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	task := fs.String("task", "", "Run one task and exit")
	ref := fs.String("reference-time", "", "Reference time for --task (RFC3339)")
	list := fs.Bool("list", false, "List task types and exit")
	dryRun := fs.Bool("dry-run", false, "Print the --task payload without running it")
	if err := fs.Parse(args); err != nil {
		return oneShot{}, err
	}

	shot := oneShot{list: *list, dryRun: *dryRun}
	if *task == "" {
		if *ref != "" || *dryRun {
			return shot, fmt.Errorf("--reference-time and --dry-run need --task")
		}
		return shot, nil
	}
	tt := scheduler.TaskType(*task)
	if _, ok := taskDescriptions[tt]; !ok {
		return shot, fmt.Errorf("unknown task type %q", *task)
	}
	payload := &scheduler.MaintenancePayload{Task: tt}
	if *ref != "" {
		t, err := time.Parse(time.RFC3339, *ref)
		if err != nil {
			return shot, fmt.Errorf("invalid --reference-time %q: %w", *ref, err)
		}
		payload.ReferenceTime = &t
	}
	shot.payload = payload
	return shot, nil
}

func printTasks(w io.Writer) {
	for _, tt := range []scheduler.TaskType{
		scheduler.TaskRelayDueTasks,
		scheduler.TaskReconcileSchedules,
		scheduler.TaskPruneDeliveryLog,
	} {
		fmt.Fprintf(w, "  %-20s %s\n", tt, taskDescriptions[tt])
	}
}

func main() {
	shot, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\nTasks:\n", err)
		printTasks(os.Stderr)
		os.Exit(2)
	}
	if shot.list {
		printTasks(os.Stdout)
		return
	}
	if shot.dryRun {
		out, _ := json.MarshalIndent(shot.payload, "", "  ")
		fmt.Println(string(out))
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("Scheduler initializing (cold start)", "environment", cfg.Environment)

	ctx := context.Background()

	pool, err := app.OpenPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := app.LoadAWS(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	metrics := app.NewMetrics(awsCfg, cfg.Observability, logger)

	svc, err := app.NewServices(pool, cfg, app.NewPushSender(cfg.Push, logger), metrics, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	relay := app.NewRelay(awsCfg, cfg, svc.Tasks, logger)

	handler := &Handler{
		Services: ServiceRegistry{
			Relay:     scheduler.NewRelayService(relay, svc.Tasks, metrics, logger),
			Reconcile: scheduler.NewReconcileService(svc.Notifications, svc.Scheduler, logger),
			Prune:     scheduler.NewPruneService(svc.DeliveryLog, logger),
		},
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobHistoryRepository(pool),
		WorkerID:   uuid.NewString(),
		Retention:  cfg.Scheduling.DeliveryLogRetention,
		Logger:     logger,
	}

	logger.Info("Scheduler initialized",
		"worker_id", handler.WorkerID,
		"delivery_queue", cfg.AWS.DeliveryQueueURL,
	)

	if app.IsLambda() {
		lambda.Start(handler.Handle)
		return
	}

	sigCtx, stop := app.SignalContext(ctx)
	defer stop()

	if shot.payload != nil {
		result, err := handler.Handle(sigCtx, *shot.payload)
		if err != nil {
			logger.Error("task execution failed", "task", string(shot.payload.Task), "error", err)
			stop()
			pool.Close()
			os.Exit(1)
		}
		logger.Info("task execution succeeded", "task", string(shot.payload.Task), "result", result)
		return
	}

	runLocal(sigCtx, handler)
	logger.Info("Scheduler stopped")
}
