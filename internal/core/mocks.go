package core

import (
	"context"
	"sync"

	"habitpulse/internal/types"
)

// MockAuthenticator implements Authenticator for handler and chassis tests.
//
//	mock := &MockAuthenticator{Actor: &types.Actor{ID: "admin", Type: types.ActorTypeAdmin}}
//
// To simulate a rejected token:
//
//	mock := &MockAuthenticator{
//	    Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil),
//	}
type MockAuthenticator struct {
	Actor *types.Actor
	Err   error

	// ResolveTokenFunc takes precedence over Actor and Err when set.
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}
