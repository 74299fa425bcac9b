// Package notifications turns stored reminder records into device pushes:
// it computes and maintains each record's single pending occurrence, runs
// the delivery when an occurrence fires and fans a message out to every
// eligible device.
package notifications

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"habitpulse/internal/types"
)

// DefaultBatchSize is the most messages handed to the transport in one call.
const DefaultBatchSize = 500

// UserStore resolves recipients and forgets dead tokens. Satisfied by
// *db.UserRepository.
type UserStore interface {
	ListActiveByRoles(ctx context.Context, roles []string) ([]*types.User, error)
	PurgeDeviceTokens(ctx context.Context, tokens []string) (int64, error)
}

// DeliveryLog persists one row per broadcast. Satisfied by
// *db.DeliveryLogRepository.
type DeliveryLog interface {
	Insert(ctx context.Context, e *types.DeliveryLogEntry) error
}

// Content is what every device receives in one broadcast.
type Content struct {
	Title string
	Body  string
	Data  map[string]string
}

// BuildMessages creates one message per device token, in user order then
// token order. Users without tokens contribute nothing.
func BuildMessages(users []*types.User, c Content) []types.PushMessage {
	msgs := make([]types.PushMessage, 0, len(users))
	for _, u := range users {
		if u == nil {
			continue
		}
		for _, tok := range u.DeviceTokens() {
			if tok == "" {
				continue
			}
			msgs = append(msgs, types.PushMessage{
				Token: tok,
				Title: c.Title,
				Body:  c.Body,
				Data:  c.Data,
			})
		}
	}
	return msgs
}

// Partition splits msgs into consecutive batches of at most n. n <= 0 uses
// DefaultBatchSize.
func Partition(msgs []types.PushMessage, n int) [][]types.PushMessage {
	if n <= 0 {
		n = DefaultBatchSize
	}
	batches := make([][]types.PushMessage, 0, (len(msgs)+n-1)/n)
	for start := 0; start < len(msgs); start += n {
		end := min(start+n, len(msgs))
		batches = append(batches, msgs[start:end])
	}
	return batches
}

// Broadcaster sends one Content to every eligible device.
type Broadcaster struct {
	users     UserStore
	sender    types.PushSender
	log       DeliveryLog
	metrics   Metrics
	roles     []string
	batchSize int
	clock     types.Clock
	logger    types.Logger
}

type BroadcasterConfig struct {
	TargetRoles []string
	BatchSize   int
	// Clock stamps delivery log rows. Defaults to RealClock.
	Clock types.Clock
}

func NewBroadcaster(users UserStore, sender types.PushSender, log DeliveryLog, metrics Metrics, cfg BroadcasterConfig, logger types.Logger) *Broadcaster {
	roles := cfg.TargetRoles
	if len(roles) == 0 {
		roles = []string{string(types.RoleUser)}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Broadcaster{
		users:     users,
		sender:    sender,
		log:       log,
		metrics:   metrics,
		roles:     roles,
		batchSize: cfg.BatchSize,
		clock:     clock,
		logger:    logger,
	}
}

// Broadcast resolves recipients, sends batches in order and records the run.
// Batch failures are counted and the remaining batches still go out; only a
// failure to resolve recipients is returned as an error.
func (b *Broadcaster) Broadcast(ctx context.Context, notificationID string, trigger types.DeliveryTrigger, c Content) (types.DeliveryResult, error) {
	logger := b.logger.With("notification_id", notificationID, "trigger", string(trigger))

	users, err := b.users.ListActiveByRoles(ctx, b.roles)
	if err != nil {
		b.record(ctx, notificationID, trigger, types.DeliveryResult{Status: types.DeliveryStatusError}, err)
		return types.DeliveryResult{Status: types.DeliveryStatusError}, err
	}

	msgs := BuildMessages(users, c)
	if len(msgs) == 0 {
		logger.Info("no device tokens to notify", "users", len(users))
		result := types.DeliveryResult{Status: types.DeliveryStatusSent}
		b.record(ctx, notificationID, trigger, result, nil)
		return result, nil
	}

	result := types.DeliveryResult{Status: types.DeliveryStatusSent}
	batches := Partition(msgs, b.batchSize)
	var (
		errs    *multierror.Error
		invalid []string
	)
	for i, batch := range batches {
		res, sendErr := b.sender.SendBatch(ctx, batch)
		result.Sent += res.SuccessCount
		result.Failed += len(batch) - res.SuccessCount
		invalid = append(invalid, res.InvalidTokens...)
		if sendErr != nil {
			errs = multierror.Append(errs, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), sendErr))
			logger.Warn("push batch failed", "batch", i+1, "size", len(batch), "error", sendErr.Error())
		}
	}

	if len(invalid) > 0 {
		if purged, err := b.users.PurgeDeviceTokens(ctx, invalid); err != nil {
			logger.Warn("failed to purge invalid device tokens", "count", len(invalid), "error", err.Error())
		} else {
			logger.Info("purged invalid device tokens", "count", purged)
		}
	}

	logger.Info("broadcast completed",
		"devices", len(msgs),
		"batches", len(batches),
		"sent", result.Sent,
		"failed", result.Failed,
	)
	b.metrics.RecordBroadcast(ctx, trigger, result.Sent, result.Failed)
	b.record(ctx, notificationID, trigger, result, errs.ErrorOrNil())
	return result, nil
}

func (b *Broadcaster) record(ctx context.Context, notificationID string, trigger types.DeliveryTrigger, result types.DeliveryResult, runErr error) {
	recordDelivery(ctx, b.log, b.logger, b.clock, notificationID, trigger, result, runErr)
}

// recordDelivery writes a delivery log row. A nil log disables recording.
func recordDelivery(ctx context.Context, log DeliveryLog, logger types.Logger, clock types.Clock, notificationID string, trigger types.DeliveryTrigger, result types.DeliveryResult, runErr error) {
	if log == nil {
		return
	}
	entry := &types.DeliveryLogEntry{
		NotificationID: notificationID,
		Trigger:        trigger,
		Status:         result.Status,
		Sent:           result.Sent,
		Failed:         result.Failed,
		CreatedAt:      clock.Now(),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := log.Insert(ctx, entry); err != nil {
		logger.Warn("failed to write delivery log", "notification_id", notificationID, "error", err.Error())
	}
}

// ScheduledContent is the payload of a recurring reminder firing.
func ScheduledContent(n *types.Notification) Content {
	return Content{
		Title: n.Title,
		Body:  n.Body,
		Data: map[string]string{
			types.PushDataType:           types.PushTypeScheduledReminder,
			types.PushDataNotificationID: n.ID,
			types.PushDataTime:           n.Time,
		},
	}
}

// creationContent is the payload announcing a newly created reminder.
// Blank title or body fall back to generic text.
func creationContent(n *types.Notification) Content {
	title := n.Title
	if title == "" {
		title = "New Notification"
	}
	body := n.Body
	if body == "" {
		body = "Scheduled at " + n.Time
	}
	return Content{
		Title: title,
		Body:  body,
		Data: map[string]string{
			types.PushDataType:           types.PushTypeNotificationNew,
			types.PushDataNotificationID: n.ID,
			types.PushDataTime:           n.Time,
		},
	}
}
