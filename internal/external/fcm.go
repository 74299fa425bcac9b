package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"habitpulse/internal/types"
)

const (
	defaultFCMBaseURL     = "https://fcm.googleapis.com"
	defaultFCMConcurrency = 10

	fcmErrUnregistered    = "UNREGISTERED"
	fcmErrInvalidArgument = "INVALID_ARGUMENT"
)

// TokenSource supplies the OAuth bearer token for the FCM HTTP v1 API.
type TokenSource interface {
	Token(ctx context.Context) (types.SecretString, error)
}

// StaticTokenSource returns a fixed token. Production deployments rotate it
// through SSM.
type StaticTokenSource types.SecretString

func (s StaticTokenSource) Token(context.Context) (types.SecretString, error) {
	if s == "" {
		return "", types.NewAppError(types.ErrCodeInternalConfig, "fcm access token is not configured", nil)
	}
	return types.SecretString(s), nil
}

type FCMConfig struct {
	BaseURL     string
	ProjectID   string
	Concurrency int
	Timeout     time.Duration
}

// FCMClient implements types.PushSender on top of the FCM HTTP v1
// messages:send endpoint. The v1 API has no multicast call, so a batch is
// sent as individual requests bounded by Concurrency.
type FCMClient struct {
	base        *BaseClient
	tokens      TokenSource
	endpoint    string
	concurrency int
	logger      *slog.Logger
}

func NewFCMClient(cfg FCMConfig, tokens TokenSource, logger *slog.Logger, opts ...BaseClientOption) *FCMClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultFCMBaseURL
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultFCMConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FCMClient{
		base: NewBaseClient(
			&http.Client{Timeout: timeout},
			"fcm",
			DefaultRetryPolicy(),
			"HabitPulse/1.0",
			opts...,
		),
		tokens:      tokens,
		endpoint:    fmt.Sprintf("%s/v1/projects/%s/messages:send", baseURL, cfg.ProjectID),
		concurrency: concurrency,
		logger:      logger,
	}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

type sendOutcome int

const (
	outcomeSent sendOutcome = iota
	outcomeInvalidToken
	outcomeFailed
)

// SendBatch sends every message and reports per-message counts. Individual
// failures are counted, not returned. An error is returned only when the
// context is cancelled or no message could be handed to FCM at all.
func (c *FCMClient) SendBatch(ctx context.Context, msgs []types.PushMessage) (types.BatchResult, error) {
	var result types.BatchResult
	if len(msgs) == 0 {
		return result, nil
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return result, err
	}

	var (
		mu       sync.Mutex
		upstream int
		lastErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			outcome, sendErr := c.sendOne(gctx, token, msg)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSent:
				result.SuccessCount++
			case outcomeInvalidToken:
				result.FailureCount++
				result.InvalidTokens = append(result.InvalidTokens, msg.Token)
			default:
				result.FailureCount++
				upstream++
				lastErr = sendErr
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return result, types.NewAppError(types.ErrCodeUpstreamPush, "push batch interrupted", ctx.Err())
	}
	if upstream == len(msgs) {
		return result, types.NewAppError(types.ErrCodeUpstreamPush, "fcm rejected every message in the batch", lastErr)
	}
	if upstream > 0 {
		c.logger.WarnContext(ctx, "fcm batch partially failed",
			"sent", result.SuccessCount,
			"failed", result.FailureCount,
			"error", lastErr,
		)
	}
	return result, nil
}

func (c *FCMClient) sendOne(ctx context.Context, token types.SecretString, msg types.PushMessage) (sendOutcome, error) {
	body, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}})
	if err != nil {
		return outcomeFailed, fmt.Errorf("encoding fcm message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return outcomeFailed, fmt.Errorf("building fcm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return outcomeFailed, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return outcomeSent, nil
	}

	var fcmErr fcmErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&fcmErr)
	if isInvalidTokenError(resp.StatusCode, fcmErr) {
		return outcomeInvalidToken, nil
	}
	return outcomeFailed, types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamPush,
		fmt.Sprintf("fcm returned %d", resp.StatusCode),
		nil,
		map[string]any{"status": fcmErr.Error.Status, "message": fcmErr.Error.Message},
	)
}

func isInvalidTokenError(status int, body fcmErrorResponse) bool {
	for _, d := range body.Error.Details {
		if d.ErrorCode == fcmErrUnregistered || d.ErrorCode == fcmErrInvalidArgument {
			return true
		}
	}
	switch status {
	case http.StatusNotFound:
		return true
	case http.StatusBadRequest:
		return body.Error.Status == fcmErrInvalidArgument
	}
	return false
}
