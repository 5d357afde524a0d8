// Package apperr defines the error taxonomy shared by the upstream clients,
// the session orchestrator, and the HTTP API. Each error type carries enough
// information (HTTP status, retry hint) for the API layer to render the
// response contract without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ValidationError marks malformed or missing caller input. Rendered as 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// BusyError is returned when the per-service single-flight gate is already
// held. No upstream call was made. Rendered as 429 with a short retry hint.
type BusyError struct {
	RetryAfter time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("service busy, retry after %s", e.RetryAfter)
}

// RateLimitedError is returned after a retryable upstream status (429 or 5xx
// for the annotation path, 429 for transcription) survived all retry
// attempts. RetryAfterSeconds comes from the upstream Retry-After hint when
// present, otherwise a default.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("upstream rate limited, retry after %ds", e.RetryAfterSeconds)
}

// UpstreamServerError is a 5xx that survived all retry attempts. The original
// status and body are passed through to the caller unmodified.
type UpstreamServerError struct {
	Status int
	Body   string
}

func (e *UpstreamServerError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// UpstreamClientError is a non-retryable 4xx, returned immediately without
// retrying.
type UpstreamClientError struct {
	Status int
	Body   string
}

func (e *UpstreamClientError) Error() string {
	return fmt.Sprintf("upstream rejected request with status %d", e.Status)
}

// TransportError means the request could not be sent or received at all,
// even after retries.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConfigError marks missing runtime configuration, discovered at first use.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

// HTTPStatus maps an error from this package onto the status code the API
// layer should respond with. Unknown errors map to 500.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		busy       *BusyError
		rateLimit  *RateLimitedError
		server     *UpstreamServerError
		client     *UpstreamClientError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &busy), errors.As(err, &rateLimit):
		return http.StatusTooManyRequests
	case errors.As(err, &server):
		return server.Status
	case errors.As(err, &client):
		return client.Status
	default:
		return http.StatusInternalServerError
	}
}
