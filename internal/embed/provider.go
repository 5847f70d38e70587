// Package embed defines the embedding provider contract used by the
// indexing pipeline, plus retry and rate-limit wrappers for callers that
// want them.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Provider is the interface all embedding backends must implement.
type Provider interface {
	// Embed returns one embedding vector per input text. The vector
	// dimension is fixed per model.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "openai").
	Name() string
}

// Error is the failure type surfaced by embedding providers. Retryable
// distinguishes transient failures (network, rate limit, 5xx) from
// permanent ones (invalid input, auth); the pipeline itself never retries,
// it only propagates the distinction to the caller.
type Error struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("embedding (%s, %s): %v", e.Provider, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient embedding failure.
func IsRetryable(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// retryableStatus reports whether an HTTP status from an embedding API
// should be treated as transient.
func retryableStatus(status int) bool {
	switch {
	case status == 429:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// WrapHTTPError builds an Error from an HTTP-level failure, classifying it
// by status code. A zero status means the request never completed
// (connection error), which is retryable.
func WrapHTTPError(provider string, status int, err error) *Error {
	return &Error{
		Provider:  provider,
		Retryable: status == 0 || retryableStatus(status),
		Err:       err,
	}
}
