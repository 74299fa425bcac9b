package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"habitpulse/internal/types"
)

// CallbackClient posts a scheduled task's payload to its delivery callback.
// It is the HTTP half of the task queue: the worker that drains the queue
// invokes it once per due task.
type CallbackClient struct {
	base *BaseClient
}

func NewCallbackClient(timeout time.Duration, opts ...BaseClientOption) *CallbackClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CallbackClient{
		base: NewBaseClient(
			&http.Client{Timeout: timeout},
			"delivery-callback",
			RetryPolicy{MaxRetries: 1, MinWait: 250 * time.Millisecond, MaxWait: 2 * time.Second},
			"HabitPulse-Worker/1.0",
			opts...,
		),
	}
}

type callbackEnvelope struct {
	Data  *types.DeliveryResult `json:"data"`
	Error *types.AppError       `json:"error"`
}

// Invoke POSTs payload to url with the task's bearer token and decodes the
// callback's DeliveryResult. Any non-2xx response is an
// ErrCodeUpstreamCallback error so the caller can leave the task for retry.
func (c *CallbackClient) Invoke(ctx context.Context, url string, payload []byte, token types.SecretString) (types.DeliveryResult, error) {
	var result types.DeliveryResult

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return result, types.NewAppError(types.ErrCodeUpstreamInvalidTarget, "invalid callback url", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !token.IsZero() {
		req.Header.Set("Authorization", "Bearer "+token.Unmask())
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return result, types.NewAppError(types.ErrCodeUpstreamCallback, "delivery callback unreachable", err)
	}
	defer resp.Body.Close()

	var env callbackEnvelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		details := map[string]any{"status_code": resp.StatusCode}
		if env.Error != nil {
			details["error_code"] = env.Error.Code
		}
		return result, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamCallback,
			fmt.Sprintf("delivery callback returned %d", resp.StatusCode),
			nil,
			details,
		)
	}
	if decodeErr != nil || env.Data == nil {
		return result, types.NewAppError(types.ErrCodeUpstreamCallback, "delivery callback returned an unreadable body", decodeErr)
	}
	return *env.Data, nil
}
