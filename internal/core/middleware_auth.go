package core

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"habitpulse/internal/types"
)

// authPublicPaths are served without a bearer token.
var authPublicPaths = map[string]bool{
	"/health": true,
}

// adminCacheTTL bounds how long a verified admin key skips bcrypt.
const adminCacheTTL = 5 * time.Minute

var (
	adminActor    = types.Actor{ID: "admin", Type: types.ActorTypeAdmin}
	callbackActor = types.Actor{ID: "delivery-callback", Type: types.ActorTypeCallback}
)

// KeyAuthenticator recognises the two static credentials of the service:
// the admin API key (stored as a bcrypt hash) and the shared callback token
// the task queue presents on delivery.
type KeyAuthenticator struct {
	adminHash     []byte
	callbackToken types.SecretString
	verified      *cache.Cache
}

var _ Authenticator = (*KeyAuthenticator)(nil)

func NewKeyAuthenticator(adminKeyHash, callbackToken types.SecretString) *KeyAuthenticator {
	return &KeyAuthenticator{
		adminHash:     []byte(adminKeyHash.Unmask()),
		callbackToken: callbackToken,
		verified:      cache.New(adminCacheTTL, 2*adminCacheTTL),
	}
}

// ResolveToken checks the callback token first (constant time) and then
// the admin key. Successful admin checks are memoised by token digest.
func (a *KeyAuthenticator) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	if !a.callbackToken.IsZero() &&
		subtle.ConstantTimeCompare([]byte(token), []byte(a.callbackToken.Unmask())) == 1 {
		actor := callbackActor
		return &actor, nil
	}

	digest := tokenDigest(token)
	if _, ok := a.verified.Get(digest); ok {
		actor := adminActor
		return &actor, nil
	}
	if len(a.adminHash) > 0 && bcrypt.CompareHashAndPassword(a.adminHash, []byte(token)) == nil {
		a.verified.SetDefault(digest, struct{}{})
		actor := adminActor
		return &actor, nil
	}
	return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// AuthMiddleware resolves the bearer token to an Actor and stores it in the
// request context. Public paths pass through. A nil Authenticator disables
// authentication entirely (tests and local runs).
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}
		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// extractBearerToken parses "Bearer <token>" (scheme is case-insensitive
// per RFC 7235). Returns "" when the header is not a bearer credential.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeAuthTokenInvalid {
		s.Logger.Warn("authentication failed: token invalid",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
		return
	}

	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// RequireActor rejects requests whose Actor is not one of the allowed
// types. System actors always pass. When authentication is disabled
// (nil Authenticator) the check is skipped.
func (s *Server) RequireActor(allowed ...types.ActorType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Authenticator == nil {
				next.ServeHTTP(w, r)
				return
			}

			actor, ok := types.GetActor(r.Context())
			if !ok {
				s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
				return
			}
			if actor.Type == types.ActorTypeSystem || slices.Contains(allowed, actor.Type) {
				next.ServeHTTP(w, r)
				return
			}

			JSON(w, r, http.StatusForbidden, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodePermissionDenied),
					Message:   "credential not permitted for this operation",
					RequestID: types.GetRequestID(r.Context()),
				},
			})
		})
	}
}
