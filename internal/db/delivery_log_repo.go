package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"habitpulse/internal/types"
)

// DeliveryLogRepository records broadcast outcomes for the status endpoint.
type DeliveryLogRepository struct {
	db DBTX
}

func NewDeliveryLogRepository(db DBTX) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

func (r *DeliveryLogRepository) Insert(ctx context.Context, e *types.DeliveryLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO delivery_log (id, notification_id, trigger, status, sent, failed, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		e.ID,
		nilIfEmpty(e.NotificationID),
		string(e.Trigger),
		string(e.Status),
		e.Sent,
		e.Failed,
		nilIfEmpty(e.Error),
		nilIfZeroTime(e.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record delivery", err)
	}
	return nil
}

// ListRecent returns the newest entries first. An empty notificationID
// returns entries for all notifications.
func (r *DeliveryLogRepository) ListRecent(ctx context.Context, notificationID string, limit int) ([]types.DeliveryLogEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, notification_id, trigger, status, sent, failed, error, created_at
		 FROM delivery_log
		 WHERE ($1::text IS NULL OR notification_id = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		nilIfEmpty(notificationID),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list deliveries", err)
	}
	defer rows.Close()

	out := make([]types.DeliveryLogEntry, 0)
	for rows.Next() {
		var (
			e       types.DeliveryLogEntry
			notifID *string
			errMsg  *string
		)
		if err := rows.Scan(&e.ID, &notifID, &e.Trigger, &e.Status, &e.Sent, &e.Failed, &errMsg, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery", err)
		}
		e.NotificationID = derefString(notifID)
		e.Error = derefString(errMsg)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate deliveries", err)
	}
	return out, nil
}

// PruneBefore deletes entries older than cutoff.
func (r *DeliveryLogRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM delivery_log WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune delivery log", err)
	}
	return tag.RowsAffected(), nil
}
