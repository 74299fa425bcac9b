package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// ValidationResult is a pass/fail outcome with a message for the operator.
type ValidationResult struct {
	Valid   bool
	Message string
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Message: fmt.Sprintf(format, args...)}
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a connection.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// tokenInfoURL answers with the scopes granted to an OAuth access token.
const tokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

const validateTimeout = 15 * time.Second

type Validator struct {
	httpClient   HTTPClient
	dbConn       DatabaseConnector
	tokenInfoURL string
}

func NewValidator() *Validator {
	return &Validator{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		dbConn:       PgxConnector{},
		tokenInfoURL: tokenInfoURL,
	}
}

// NewValidatorWithDeps is used by tests.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector, tokenInfo string) *Validator {
	return &Validator{httpClient: httpClient, dbConn: dbConn, tokenInfoURL: tokenInfo}
}

// ValidateDatabaseURL checks the scheme, then connects with pgx.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, raw string) ValidationResult {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("database URL must not be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return invalid("invalid URL format: %v", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return invalid("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return invalid("database URL has no host")
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.dbConn.Connect(connCtx, raw); err != nil {
		return invalid("connection failed: %v", err)
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname()),
	}
}

// ValidateRedisURL only parses; the dedup store may not be reachable from
// the operator's machine.
func (v *Validator) ValidateRedisURL(_ context.Context, raw string) ValidationResult {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("Redis URL must not be empty")
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return invalid("invalid Redis URL: %v", err)
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("Redis URL parsed (addr=%s db=%d)", opts.Addr, opts.DB)}
}

var fcmProjectIDRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)

func (v *Validator) ValidateFCMProjectID(_ context.Context, id string) ValidationResult {
	id = strings.TrimSpace(id)
	if !fcmProjectIDRegex.MatchString(id) {
		return invalid("Firebase project ID must be 6-30 lowercase letters, digits or hyphens (got %q)", id)
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("project ID format validated (%s)", id)}
}

// messagingScopes are the OAuth scopes that allow sending through FCM v1.
var messagingScopes = []string{
	"https://www.googleapis.com/auth/firebase.messaging",
	"https://www.googleapis.com/auth/cloud-platform",
}

// ValidateFCMAccessToken asks Google's tokeninfo endpoint whether the token
// is live and carries a messaging scope.
func (v *Validator) ValidateFCMAccessToken(ctx context.Context, token string) ValidationResult {
	token = strings.TrimSpace(token)
	if len(token) < 20 {
		return invalid("access token is too short")
	}

	reqCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		v.tokenInfoURL+"?access_token="+url.QueryEscape(token), nil)
	if err != nil {
		return invalid("building tokeninfo request: %v", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return invalid("tokeninfo request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return invalid("token rejected (HTTP %d): %s", resp.StatusCode, truncate(body, 200))
	}

	var info struct {
		Scope     string `json:"scope"`
		ExpiresIn string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return invalid("unreadable tokeninfo response: %v", err)
	}
	granted := strings.Fields(info.Scope)
	for _, want := range messagingScopes {
		for _, got := range granted {
			if got == want {
				return ValidationResult{
					Valid:   true,
					Message: fmt.Sprintf("access token verified (expires_in=%ss)", info.ExpiresIn),
				}
			}
		}
	}
	return invalid("access token lacks the firebase.messaging scope (granted: %s)", info.Scope)
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
