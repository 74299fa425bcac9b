package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// PushSender delivers a batch of push messages through the device transport.
// Implementations MUST NOT be handed more messages than BatchLimit allows.
type PushSender interface {
	SendBatch(ctx context.Context, msgs []PushMessage) (BatchResult, error)
}

// TaskQueue is the delayed-execution primitive: schedule a callback at a
// point in time, cancellable by task ID.
type TaskQueue interface {
	CreateTask(ctx context.Context, callbackURL string, payload []byte, fireAt time.Time, authToken SecretString) (string, error)
	ListTasks(ctx context.Context) ([]ScheduledTask, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// NopLogger discards everything. Handy for tests and optional wiring.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (l NopLogger) With(...any) Logger { return l }
