package types

import "context"

// ActorType identifies the kind of authenticated caller.
type ActorType string

const (
	ActorTypeAdmin    ActorType = "admin"
	ActorTypeCallback ActorType = "callback"
	ActorTypeSystem   ActorType = "system"
)

// Actor represents the authenticated entity performing an operation.
type Actor struct {
	ID   string
	Type ActorType
}

// SystemActor is used for mutations triggered by scheduled jobs.
var SystemActor = Actor{ID: "system", Type: ActorTypeSystem}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithLogger stores a Logger in the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the request-scoped Logger, or nil if none was set.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return nil
}
