package types

// UserRole is the application role stored on a user document.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// LifecycleEventType identifies which mutation produced a LifecycleEvent.
type LifecycleEventType string

const (
	LifecycleCreated LifecycleEventType = "created"
	LifecycleUpdated LifecycleEventType = "updated"
	LifecycleDeleted LifecycleEventType = "deleted"
)

// TaskStatus is the state of a row in scheduled_tasks.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusDispatched TaskStatus = "dispatched"
)

// DeliveryStatus is the outcome reported by the delivery callback.
type DeliveryStatus string

const (
	DeliveryStatusSent     DeliveryStatus = "sent"
	DeliveryStatusNotFound DeliveryStatus = "not_found"
	DeliveryStatusInactive DeliveryStatus = "inactive"
	DeliveryStatusError    DeliveryStatus = "error"
)

// DeliveryTrigger records what caused a broadcast.
type DeliveryTrigger string

const (
	TriggerScheduled DeliveryTrigger = "scheduled"
	TriggerCreated   DeliveryTrigger = "created"
	TriggerManual    DeliveryTrigger = "manual"
	TriggerPoll      DeliveryTrigger = "poll"
)

// Push data keys attached to the creation broadcast.
const (
	PushDataType              = "type"
	PushDataNotificationID    = "notificationId"
	PushDataTime              = "time"
	PushTypeNotificationNew   = "notificationCreated"
	PushTypeScheduledReminder = "scheduledReminder"
	PushTypeTest              = "test"
)
