package queue

import (
	"context"
	"log/slog"
	"time"

	"habitpulse/internal/types"
)

// DurableQueue implements types.TaskQueue on top of a TaskStore. Tasks wait
// in Postgres until the relay moves them onward, so creating a task far in
// the future costs nothing beyond a row.
type DurableQueue struct {
	store  TaskStore
	logger *slog.Logger
}

var _ types.TaskQueue = (*DurableQueue)(nil)

func NewDurableQueue(store TaskStore, logger *slog.Logger) *DurableQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &DurableQueue{store: store, logger: logger}
}

func (q *DurableQueue) CreateTask(ctx context.Context, callbackURL string, payload []byte, fireAt time.Time, authToken types.SecretString) (string, error) {
	if callbackURL == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamInvalidTarget, "callback url is required", nil)
	}
	task := &types.ScheduledTask{
		CallbackURL: callbackURL,
		Payload:     payload,
		FireAt:      fireAt.UTC(),
		AuthToken:   authToken,
	}
	if err := q.store.Create(ctx, task); err != nil {
		return "", err
	}
	q.logger.DebugContext(ctx, "task created", "task_id", task.ID, "fire_at", task.FireAt)
	return task.ID, nil
}

func (q *DurableQueue) ListTasks(ctx context.Context) ([]types.ScheduledTask, error) {
	return q.store.List(ctx)
}

// DeleteTask removes the task. Deleting a task that no longer exists
// succeeds.
func (q *DurableQueue) DeleteTask(ctx context.Context, taskID string) error {
	_, err := q.store.Delete(ctx, taskID)
	return err
}
