package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"habitpulse/internal/types"
)

// earlyTolerance is how far ahead of fire_at a task may be executed.
const earlyTolerance = 5 * time.Second

// ErrTaskNotDue is returned when a task message arrives before the task's
// fire time. The message should be retried later.
var ErrTaskNotDue = errors.New("queue: task not yet due")

// Worker executes one task: load it, invoke its callback, delete it.
type Worker struct {
	store   TaskStore
	invoker CallbackInvoker
	clock   types.Clock
	logger  *slog.Logger
}

func NewWorker(store TaskStore, invoker CallbackInvoker, clock types.Clock, logger *slog.Logger) *Worker {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, invoker: invoker, clock: clock, logger: logger}
}

// Process runs the task identified by taskID. A task that no longer exists
// was cancelled or already executed; that is a success with ok=false. The
// task row is deleted only after the callback answered 2xx, so any error
// leaves it for a retry.
func (w *Worker) Process(ctx context.Context, taskID string) (result types.DeliveryResult, ok bool, err error) {
	task, err := w.store.Get(ctx, taskID)
	if err != nil {
		if types.IsNotFound(err) {
			w.logger.InfoContext(ctx, "task no longer exists, skipping", "task_id", taskID)
			return result, false, nil
		}
		return result, false, err
	}

	if wait := task.FireAt.Sub(w.clock.Now()); wait > earlyTolerance {
		return result, false, fmt.Errorf("%w: %s early", ErrTaskNotDue, wait.Round(time.Second))
	}

	result, err = w.invoker.Invoke(ctx, task.CallbackURL, task.Payload, task.AuthToken)
	if err != nil {
		return result, false, err
	}

	if _, err := w.store.Delete(ctx, task.ID); err != nil {
		// The callback already ran; a leftover row is cleaned up by the next
		// reconcile pass, so do not fail the message.
		w.logger.WarnContext(ctx, "failed to delete executed task", "task_id", task.ID, "error", err)
	}

	w.logger.InfoContext(ctx, "task executed",
		"task_id", task.ID,
		"status", result.Status,
		"sent", result.Sent,
	)
	return result, true, nil
}
