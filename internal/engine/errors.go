package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSourceAvailable means no registered, healthy, in-budget source can
	// serve the requested asset category right now.
	ErrNoSourceAvailable = errors.New("no source available")

	// ErrNoSourcesForCategory means no source is registered for the category
	// at all. Fatal configuration error, raised before any work starts.
	ErrNoSourcesForCategory = errors.New("no sources registered for asset category")

	// ErrInvalidRange means the requested date range is malformed. Fatal.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrCircuitOpen means the source's circuit breaker is blocking calls.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrRateLimitExceeded means the local limiter has no budget left in the
	// current window for the source.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// RetryExhaustedError reports that every retry attempt against one source
// failed. It counts as a single failure toward that source's circuit breaker.
type RetryExhaustedError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("source %s exhausted after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// SourceExhaustedError reports that every eligible source failed for a
// segment, including failovers. Surfaces as a segment-level failure.
type SourceExhaustedError struct {
	Category string
	Start    time.Time
	End      time.Time
	Causes   []error
}

func (e *SourceExhaustedError) Error() string {
	return fmt.Sprintf("all sources failed for %s segment [%s, %s]: %d failures",
		e.Category, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), len(e.Causes))
}

func (e *SourceExhaustedError) Unwrap() []error {
	return e.Causes
}
