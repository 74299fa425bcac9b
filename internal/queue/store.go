// Package queue implements the delayed-execution primitive: a durable
// Postgres task table, a relay that hands due tasks to a dispatch sink (SQS
// in production, an in-process call locally) and the worker that invokes a
// task's callback.
package queue

import (
	"context"
	"time"

	"habitpulse/internal/types"
)

// TaskStore is the persistence contract for scheduled_tasks. Satisfied by
// *db.TaskRepository.
type TaskStore interface {
	Create(ctx context.Context, t *types.ScheduledTask) error
	Get(ctx context.Context, id string) (*types.ScheduledTask, error)
	List(ctx context.Context) ([]types.ScheduledTask, error)
	Delete(ctx context.Context, id string) (bool, error)
	ClaimDue(ctx context.Context, horizon time.Time, limit int) ([]types.ScheduledTask, error)
	Requeue(ctx context.Context, id string) error
}

// CallbackInvoker posts a task payload to its callback. Satisfied by
// *external.CallbackClient.
type CallbackInvoker interface {
	Invoke(ctx context.Context, url string, payload []byte, token types.SecretString) (types.DeliveryResult, error)
}

// TaskMessage is the SQS message body produced by the relay.
type TaskMessage struct {
	TaskID string    `json:"task_id"`
	FireAt time.Time `json:"fire_at"`
}
