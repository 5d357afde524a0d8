// Package retry implements the shared retrying HTTP caller: single-flight
// admission per upstream service, exponential backoff with jitter, and
// Retry-After awareness. Both upstream clients (transcription, annotation)
// call through it so the retry semantics exist exactly once.
package retry

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/kotonoha-lab/kikitori/internal/apperr"
)

const (
	defaultMaxRetries = 2
	defaultBaseDelay  = time.Second
	maxJitter         = 500 * time.Millisecond
)

// BuildRequest constructs a fresh request for one attempt. It is called once
// per attempt because request bodies are consumed on send.
type BuildRequest func(ctx context.Context) (*http.Request, error)

// Policy controls one caller's retry behavior. MaxRetries is taken
// literally, so 0 means a single attempt; leaving Jitter or Retryable nil
// picks the defaults (random jitter up to 500ms, 429/5xx retryable).
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Jitter returns the random offset added to each computed backoff delay.
	// Injectable so tests can pin it to zero.
	Jitter func() time.Duration
	// Retryable reports whether a response status is worth another attempt.
	Retryable func(status int) bool
}

// DefaultPolicy is 2 retries (3 total attempts) with a 1s base delay.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: defaultMaxRetries, BaseDelay: defaultBaseDelay}
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.Jitter == nil {
		p.Jitter = func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		}
	}
	if p.Retryable == nil {
		p.Retryable = func(status int) bool {
			return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
		}
	}
	return p
}

// Caller performs an HTTP call with admission control and retries.
type Caller struct {
	client  *http.Client
	gate    *Gate
	policy  Policy
	service string
}

func NewCaller(service string, client *http.Client, gate *Gate, policy Policy) *Caller {
	if client == nil {
		client = &http.Client{}
	}
	return &Caller{
		client:  client,
		gate:    gate,
		policy:  policy.withDefaults(),
		service: service,
	}
}

// Do runs up to MaxRetries+1 attempts of the request produced by build.
//
// The admission gate is held for the whole attempt sequence and released
// unconditionally, including on failure. A response with a non-retryable
// status is returned as-is after the first attempt that produced it; so is
// the final response when every attempt was retryable. Deciding what giving
// up means is the calling service's job. Transport failures are retried like
// retryable statuses and surfaced as *apperr.TransportError when the last
// attempt also fails. The caller owns closing the returned response body.
func (c *Caller) Do(ctx context.Context, build BuildRequest) (*http.Response, error) {
	if !c.gate.TryAcquire() {
		return nil, &apperr.BusyError{RetryAfter: BusyRetryAfter}
	}
	defer c.gate.Release()

	attempts := c.policy.MaxRetries + 1
	var lastTransportErr error
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastTransportErr = err
			if attempt == attempts-1 {
				break
			}
			slog.Warn("upstream request failed, retrying", "service", c.service, "attempt", attempt+1, "error", err)
			if err := c.sleep(ctx, c.backoff(attempt, 0)); err != nil {
				return nil, err
			}
			continue
		}

		if !c.policy.Retryable(resp.StatusCode) || attempt == attempts-1 {
			return resp, nil
		}

		retryAfter := retryAfterDuration(resp)
		drainAndClose(resp)
		slog.Warn("upstream returned retryable status, retrying",
			"service", c.service, "attempt", attempt+1, "status", resp.StatusCode, "retry_after", retryAfter)
		if err := c.sleep(ctx, c.backoff(attempt, retryAfter)); err != nil {
			return nil, err
		}
	}
	return nil, &apperr.TransportError{Err: lastTransportErr}
}

// backoff computes the delay before the retry following attempt i. An
// upstream Retry-After hint overrides the exponential formula for that
// single retry.
func (c *Caller) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	return c.policy.BaseDelay*(1<<attempt) + c.policy.Jitter()
}

// sleep blocks only this retry sequence, never the process.
func (c *Caller) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryAfterDuration(resp *http.Response) time.Duration {
	return time.Duration(RetryAfterSeconds(resp)) * time.Second
}

// RetryAfterSeconds parses the Retry-After header as whole seconds,
// returning 0 when absent or unparseable.
func RetryAfterSeconds(resp *http.Response) int {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
