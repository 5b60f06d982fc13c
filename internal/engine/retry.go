package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantpulse/price-engine/internal/provider"
)

// RetryPolicy wraps a single provider call with exponential backoff. Only
// transient failures are retried; rate limits, validation and auth errors
// propagate immediately.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
	Jitter      bool          `json:"jitter"`
}

// DefaultRetryPolicy returns the standard provider-call policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier <= 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// Execute runs op under the policy. On exhausting attempts it returns a
// RetryExhaustedError wrapping the final transient failure, which the caller
// reports to the circuit breaker as exactly one failure.
func (p RetryPolicy) Execute(ctx context.Context, source string, logger *logrus.Logger, op func(context.Context) error) error {
	policy := p.normalized()
	delay := policy.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.WithFields(logrus.Fields{
					"source":  source,
					"attempt": attempt,
				}).Info("Call recovered after retry")
			}
			return nil
		}
		lastErr = err

		if !provider.IsTransient(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		logger.WithFields(logrus.Fields{
			"source":  source,
			"attempt": attempt,
			"error":   err.Error(),
			"delay":   delay,
		}).Warn("Transient failure, retrying")

		if !sleep(ctx, policy.withJitter(delay)) {
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return &RetryExhaustedError{Source: source, Attempts: policy.MaxAttempts, Err: lastErr}
}

// withJitter spreads delays by up to 25% to avoid synchronized retry storms.
func (p RetryPolicy) withJitter(delay time.Duration) time.Duration {
	if !p.Jitter {
		return delay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
