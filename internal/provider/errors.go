package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// RateLimitError signals a provider-side throttle (HTTP 429 equivalent).
// The source is marked RATE_LIMITED until its window resets; the call is not
// retried against the same source.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("source %s rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("source %s rate limited", e.Source)
}

// ValidationError signals a malformed or schema-violating provider response.
// It is fatal for the call, never retried, and does not count against the
// source's circuit breaker: bad data is not bad health.
type ValidationError struct {
	Source  string
	Message string
	Payload string // truncated raw payload for debugging
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid response from %s: %s", e.Source, e.Message)
}

// TransientError wraps a failure worth retrying: timeouts, connection resets,
// provider 5xx responses.
type TransientError struct {
	Source string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure from %s: %v", e.Source, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// AuthError signals a rejected credential. Fatal, never retried.
type AuthError struct {
	Source string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("source %s rejected credentials (status %d)", e.Source, e.Status)
}

// IsTransient reports whether err should be retried by the retry policy.
func IsTransient(err error) bool {
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// IsRateLimited reports whether err is a provider-signaled throttle.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsValidation reports whether err is a data problem rather than a source
// health problem.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
