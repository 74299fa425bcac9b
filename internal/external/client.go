// Package external wraps outbound HTTP integrations (FCM push and the task
// queue's delivery callback). Every call goes through BaseClient so circuit
// breaking, retries and error mapping behave the same for all vendors.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"habitpulse/internal/types"
)

// RetryPolicy configures retries for BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// BaseClient pairs an *http.Client with a circuit breaker.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)
}

type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces time.Sleep between retries (tests pass a no-op).
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// WithBreakerThreshold overrides the consecutive-failure count that opens
// the breaker.
func WithBreakerThreshold(n uint32) BaseClientOption {
	return func(c *BaseClient) {
		c.breaker = newBreaker(c.breaker.Name(), n)
	}
}

func newBreaker(name string, threshold uint32) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
}

func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	bc := &BaseClient{
		client:      httpClient,
		breaker:     newBreaker(breakerName, 5),
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do sends req through the breaker, retrying 429 and 5xx responses with
// backoff (Retry-After wins when present). Other responses, including 4xx,
// are returned to the caller, who must close the body. Exhausted retries and
// an open breaker come back as *types.AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if reqID := types.GetRequestID(req.Context()); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Buffered so the body can be replayed on retry.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
		req.Body.Close()
	}

	var (
		lastResp *http.Response
		lastErr  error
	)
	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// computeBackoff honours Retry-After (seconds or HTTP date) capped at
// MaxWait, otherwise uses jittered exponential backoff in [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	base := math.Min(float64(c.retryPolicy.MinWait)*math.Pow(2, float64(attempt)), float64(c.retryPolicy.MaxWait))
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker is open; upstream service unavailable", err)
	}
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
		}
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
}
