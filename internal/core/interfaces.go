package core

import (
	"context"

	"habitpulse/internal/types"
)

// Authenticator resolves a bearer token to an Actor. It decouples the
// HTTP layer from how credentials are stored.
//
// Implementations return ErrCodeAuthTokenInvalid for unknown tokens.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// HealthProbe checks one critical dependency (database, queue).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}
