package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"habitpulse/internal/types"
)

// TaskRepository stores the durable delayed-execution queue (scheduled_tasks).
// A row exists from CreateTask until the delivery worker has invoked the
// callback, or until the owning notification's schedule is cancelled.
type TaskRepository struct {
	db DBTX
}

func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, callback_url, payload, fire_at, auth_token, status, created_at, dispatched_at`

func scanTask(row pgx.Row) (*types.ScheduledTask, error) {
	var (
		t     types.ScheduledTask
		token string
	)
	err := row.Scan(
		&t.ID,
		&t.CallbackURL,
		&t.Payload,
		&t.FireAt,
		&token,
		&t.Status,
		&t.CreatedAt,
		&t.DispatchedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AuthToken = types.SecretString(token)
	return &t, nil
}

// Create inserts a pending task, assigning an ID if empty.
func (r *TaskRepository) Create(ctx context.Context, t *types.ScheduledTask) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = types.TaskStatusPending
	err := r.db.QueryRow(ctx,
		`INSERT INTO scheduled_tasks (id, callback_url, payload, fire_at, auth_token, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING created_at`,
		t.ID,
		t.CallbackURL,
		t.Payload,
		t.FireAt.UTC(),
		t.AuthToken.Unmask(),
		string(t.Status),
	).Scan(&t.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create scheduled task", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*types.ScheduledTask, error) {
	t, err := scanTask(r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTask, "scheduled task not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load scheduled task", err)
	}
	return t, nil
}

// List returns every outstanding task, pending or dispatched, by fire time.
func (r *TaskRepository) List(ctx context.Context) ([]types.ScheduledTask, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY fire_at, id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list scheduled tasks", err)
	}
	return collectTasks(rows)
}

// Delete removes a task. It reports whether a row was deleted; deleting an
// absent task is not an error.
func (r *TaskRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to delete scheduled task", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimDue marks up to limit pending tasks firing at or before horizon as
// dispatched and returns them. SKIP LOCKED lets concurrent relays split the
// work without double-dispatching.
func (r *TaskRepository) ClaimDue(ctx context.Context, horizon time.Time, limit int) ([]types.ScheduledTask, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE scheduled_tasks
		 SET status = 'dispatched', dispatched_at = NOW()
		 WHERE id IN (
		   SELECT id FROM scheduled_tasks
		   WHERE status = 'pending' AND fire_at <= $1
		   ORDER BY fire_at
		   LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+taskColumns,
		horizon.UTC(),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim due tasks", err)
	}
	return collectTasks(rows)
}

// Requeue returns a dispatched task to pending after a failed hand-off.
func (r *TaskRepository) Requeue(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE scheduled_tasks SET status = 'pending', dispatched_at = NULL
		 WHERE id = $1 AND status = 'dispatched'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to requeue scheduled task", err)
	}
	return nil
}

// RequeueStale returns tasks dispatched before cutoff to pending. A task
// stays dispatched only while its queue message is in flight; anything older
// was lost between relay and worker.
func (r *TaskRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_tasks SET status = 'pending', dispatched_at = NULL
		 WHERE status = 'dispatched' AND dispatched_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to requeue stale tasks", err)
	}
	return tag.RowsAffected(), nil
}

func collectTasks(rows pgx.Rows) ([]types.ScheduledTask, error) {
	defer rows.Close()

	out := make([]types.ScheduledTask, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan scheduled task", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate scheduled tasks", err)
	}
	return out, nil
}
