package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"habitpulse/internal/types"
)

// NotificationRepository provides data access for the notifications table.
type NotificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, title, body, time_of_day, days_of_week, active,
	created_by, updated_by, created_at, updated_at`

func scanNotification(row pgx.Row) (*types.Notification, error) {
	var (
		n         types.Notification
		createdBy *string
		updatedBy *string
	)
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Body,
		&n.Time,
		&n.Days,
		&n.Active,
		&createdBy,
		&updatedBy,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.CreatedBy = derefString(createdBy)
	n.UpdatedBy = derefString(updatedBy)
	if n.Days == nil {
		n.Days = []int{}
	}
	return &n, nil
}

// Create inserts n, assigning an ID when the caller left it empty.
// CreatedAt/UpdatedAt are set from the database clock.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Days == nil {
		n.Days = []int{}
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO notifications
		 (id, title, body, time_of_day, days_of_week, active, created_by, updated_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		n.ID,
		n.Title,
		n.Body,
		n.Time,
		n.Days,
		n.Active,
		nilIfEmpty(n.CreatedBy),
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	n.UpdatedBy = n.CreatedBy
	return nil
}

// GetByID returns ErrCodeNotFoundNotification when no row matches.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*types.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load notification", err)
	}
	return n, nil
}

// List returns notifications ordered by time of day. activeOnly restricts
// the result to records that may fire.
func (r *NotificationRepository) List(ctx context.Context, activeOnly bool) ([]*types.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE ($1::boolean = false OR active = true)
		 ORDER BY time_of_day, created_at`,
		activeOnly,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	out := make([]*types.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate notifications", err)
	}
	return out, nil
}

// ListActive is List(ctx, true).
func (r *NotificationRepository) ListActive(ctx context.Context) ([]*types.Notification, error) {
	return r.List(ctx, true)
}

// Update overwrites the mutable fields of n and refreshes UpdatedAt.
func (r *NotificationRepository) Update(ctx context.Context, n *types.Notification) error {
	if n.Days == nil {
		n.Days = []int{}
	}
	err := r.db.QueryRow(ctx,
		`UPDATE notifications
		 SET title = $2, body = $3, time_of_day = $4, days_of_week = $5, active = $6,
		     updated_by = $7, updated_at = NOW()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		n.ID,
		n.Title,
		n.Body,
		n.Time,
		n.Days,
		n.Active,
		nilIfEmpty(n.UpdatedBy),
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update notification", err)
	}
	return nil
}

// Delete hard-deletes the record.
func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete notification", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}
