package notifications

import (
	"context"
	"time"

	"habitpulse/internal/types"
)

// NotificationStore loads records. Satisfied by *db.NotificationRepository.
type NotificationStore interface {
	GetByID(ctx context.Context, id string) (*types.Notification, error)
}

// Executor runs a fired occurrence: broadcast the record, then queue the
// one after it.
type Executor struct {
	store       NotificationStore
	broadcaster *Broadcaster
	scheduler   *Scheduler
	log         DeliveryLog
	clock       types.Clock
	logger      types.Logger
}

func NewExecutor(store NotificationStore, broadcaster *Broadcaster, scheduler *Scheduler, log DeliveryLog, logger types.Logger) *Executor {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Executor{
		store:       store,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		log:         log,
		clock:       types.RealClock{},
		logger:      logger,
	}
}

// Execute delivers recordID. A deleted record reports not_found and an
// inactive one reports inactive; neither is rescheduled. Otherwise the next
// occurrence is queued whatever the send outcome, so a bad push run never
// breaks the chain. firedAt is the instant the task was queued for, zero
// when unknown.
func (e *Executor) Execute(ctx context.Context, recordID string, firedAt time.Time) (types.DeliveryResult, error) {
	logger := e.logger.With("notification_id", recordID)

	n, err := e.store.GetByID(ctx, recordID)
	if err != nil {
		if types.IsNotFound(err) {
			logger.Info("notification no longer exists, skipping delivery")
			result := types.DeliveryResult{Status: types.DeliveryStatusNotFound}
			recordDelivery(ctx, e.log, e.logger, e.clock, recordID, types.TriggerScheduled, result, nil)
			return result, nil
		}
		logger.Error("failed to load notification", "error", err.Error())
		return types.DeliveryResult{Status: types.DeliveryStatusError}, err
	}

	if !n.Active {
		logger.Info("notification inactive, skipping delivery")
		result := types.DeliveryResult{Status: types.DeliveryStatusInactive}
		recordDelivery(ctx, e.log, e.logger, e.clock, recordID, types.TriggerScheduled, result, nil)
		return result, nil
	}

	result, sendErr := e.broadcaster.Broadcast(ctx, n.ID, types.TriggerScheduled, ScheduledContent(n))
	if sendErr != nil {
		logger.Error("scheduled broadcast failed", "error", sendErr.Error())
	}

	if err := e.scheduler.ScheduleAfter(ctx, n, firedAt); err != nil {
		logger.Warn("failed to queue next occurrence", "error", err.Error())
	}

	if sendErr != nil {
		return result, sendErr
	}
	return result, nil
}

// SendNow broadcasts a stored record immediately without touching its
// schedule.
func (e *Executor) SendNow(ctx context.Context, recordID string) (types.DeliveryResult, error) {
	n, err := e.store.GetByID(ctx, recordID)
	if err != nil {
		return types.DeliveryResult{}, err
	}
	return e.broadcaster.Broadcast(ctx, n.ID, types.TriggerManual, ScheduledContent(n))
}
