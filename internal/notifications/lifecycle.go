package notifications

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"habitpulse/internal/types"
)

// Bridge applies record mutations to the schedule. It is the only path from
// a create, update or delete to the task queue.
type Bridge struct {
	scheduler    *Scheduler
	broadcaster  *Broadcaster
	sendOnCreate bool
	logger       types.Logger
}

func NewBridge(scheduler *Scheduler, broadcaster *Broadcaster, sendOnCreate bool, logger types.Logger) *Bridge {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Bridge{
		scheduler:    scheduler,
		broadcaster:  broadcaster,
		sendOnCreate: sendOnCreate,
		logger:       logger,
	}
}

// Handle reacts to one lifecycle event. Each side effect runs even when an
// earlier one failed; the failures come back aggregated so the caller can
// log them without failing the mutation that already committed.
func (b *Bridge) Handle(ctx context.Context, ev types.LifecycleEvent) error {
	logger := b.logger.With("notification_id", ev.RecordID, "event", string(ev.Type))

	var errs *multierror.Error
	switch ev.Type {
	case types.LifecycleCreated:
		if ev.After == nil {
			return fmt.Errorf("created event for %s has no record", ev.RecordID)
		}
		if ev.After.Active && b.sendOnCreate {
			if _, err := b.broadcaster.Broadcast(ctx, ev.After.ID, types.TriggerCreated, creationContent(ev.After)); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("creation broadcast: %w", err))
			}
		}
		if err := b.scheduler.Schedule(ctx, ev.After); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("schedule: %w", err))
		}

	case types.LifecycleUpdated:
		if _, err := b.scheduler.Cancel(ctx, ev.RecordID); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cancel: %w", err))
		}
		if ev.After != nil && ev.After.Active {
			if err := b.scheduler.Schedule(ctx, ev.After); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("schedule: %w", err))
			}
		}

	case types.LifecycleDeleted:
		if _, err := b.scheduler.Cancel(ctx, ev.RecordID); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cancel: %w", err))
		}

	default:
		return fmt.Errorf("unknown lifecycle event type %q", ev.Type)
	}

	if err := errs.ErrorOrNil(); err != nil {
		logger.Warn("lifecycle side effects failed", "error", err.Error())
		return err
	}
	return nil
}
