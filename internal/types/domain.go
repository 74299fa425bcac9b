package types

import (
	"time"
)

// Notification is an admin-defined recurring reminder.
// Time is "HH:mm" and Days holds weekdays 0..6 (0 = Sunday), both read in
// the configured target timezone. An empty Days slice never fires.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	Time      string    `json:"time" db:"time_of_day"`
	Days      []int     `json:"days_of_week" db:"days_of_week"`
	Active    bool      `json:"active" db:"active"`
	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	UpdatedBy string    `json:"updated_by,omitempty" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// User is the subset of a user document needed for device fan-out.
// FCMToken is the legacy single-device field and is only consulted when
// FCMTokens is empty.
type User struct {
	ID        string    `json:"id" db:"id"`
	Role      UserRole  `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	FCMTokens []string  `json:"fcm_tokens" db:"fcm_tokens"`
	FCMToken  string    `json:"fcm_token,omitempty" db:"fcm_token"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DeviceTokens resolves the token set for the user.
func (u *User) DeviceTokens() []string {
	if len(u.FCMTokens) > 0 {
		return u.FCMTokens
	}
	if u.FCMToken != "" {
		return []string{u.FCMToken}
	}
	return nil
}

// PushMessage is one device-addressed push.
type PushMessage struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// BatchResult is the per-call outcome reported by the push transport.
// InvalidTokens lists tokens the transport reported as permanently
// unregistered; callers may purge them.
type BatchResult struct {
	SuccessCount  int      `json:"success_count"`
	FailureCount  int      `json:"failure_count"`
	InvalidTokens []string `json:"invalid_tokens,omitempty"`
}

// ScheduledTask is a row of the durable delayed-execution queue.
type ScheduledTask struct {
	ID           string       `json:"id" db:"id"`
	CallbackURL  string       `json:"callback_url" db:"callback_url"`
	Payload      []byte       `json:"payload" db:"payload"`
	FireAt       time.Time    `json:"fire_at" db:"fire_at"`
	AuthToken    SecretString `json:"-" db:"auth_token"`
	Status       TaskStatus   `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	DispatchedAt *time.Time   `json:"dispatched_at,omitempty" db:"dispatched_at"`
}

// OccurrencePayload is the opaque body carried by a scheduled task and
// posted back to the delivery callback. FireAt is the instant the task was
// queued for; tasks written before it existed leave it zero.
type OccurrencePayload struct {
	NotificationID string    `json:"notification_id" validate:"required"`
	FireAt         time.Time `json:"fire_at,omitzero"`
}

// LifecycleEvent describes one mutation of a Notification.
// Before is nil for creates; After is nil for deletes.
type LifecycleEvent struct {
	Type     LifecycleEventType `json:"type"`
	RecordID string             `json:"record_id"`
	Before   *Notification      `json:"before,omitempty"`
	After    *Notification      `json:"after,omitempty"`
}

// DeliveryResult is returned by the delivery callback.
type DeliveryResult struct {
	Status DeliveryStatus `json:"status"`
	Sent   int            `json:"sent"`
	Failed int            `json:"failed"`
}

// DeliveryLogEntry records one broadcast run.
type DeliveryLogEntry struct {
	ID             string          `json:"id" db:"id"`
	NotificationID string          `json:"notification_id" db:"notification_id"`
	Trigger        DeliveryTrigger `json:"trigger" db:"trigger"`
	Status         DeliveryStatus  `json:"status" db:"status"`
	Sent           int             `json:"sent" db:"sent"`
	Failed         int             `json:"failed" db:"failed"`
	Error          string          `json:"error,omitempty" db:"error"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// JobHistory tracks one maintenance task execution.
type JobHistory struct {
	ID           int64      `db:"id"`
	JobType      string     `db:"job_type"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	Status       string     `db:"status"`
	ItemsCount   int        `db:"items_processed"`
	ErrorMessage string     `db:"error"`
}
