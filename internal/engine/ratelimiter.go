package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantpulse/price-engine/internal/models"
)

// RateLimiter gates calls per source on a sliding window, using the window
// counters that live on SourceHealth. All mutation happens under the health
// store's per-source lock, so concurrent callers cannot lose updates.
type RateLimiter struct {
	health *HealthStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewRateLimiter creates a limiter over the given health store.
func NewRateLimiter(health *HealthStore, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		health: health,
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether the source has budget left in the current window.
// It has no side effects beyond rolling an expired window forward; callers
// must not proceed on false.
func (rl *RateLimiter) Allow(sourceID string) bool {
	allowed := false
	ok := rl.health.withWindow(sourceID, func(h *models.SourceHealth, caps models.SourceCapabilities) {
		rl.rollWindow(h, caps)
		if caps.MaxRequests <= 0 {
			allowed = true
			return
		}
		allowed = h.RequestsInWindow < caps.MaxRequests
	})
	return ok && allowed
}

// Record consumes one unit of the source's window budget. It performs the
// increment-and-check atomically and returns false when the window is full,
// in which case the caller must not make the call.
func (rl *RateLimiter) Record(sourceID string) bool {
	admitted := false
	ok := rl.health.withWindow(sourceID, func(h *models.SourceHealth, caps models.SourceCapabilities) {
		rl.rollWindow(h, caps)
		if caps.MaxRequests > 0 && h.RequestsInWindow >= caps.MaxRequests {
			if h.Status == models.SourceActive {
				h.Status = models.SourceRateLimited
			}
			return
		}
		h.RequestsInWindow++
		admitted = true
	})
	if !ok {
		return false
	}
	if !admitted {
		rl.logger.WithField("source", sourceID).Debug("Rate limit window full")
	}
	return admitted
}

// rollWindow resets the counter when the current window has expired. Called
// under the source lock.
func (rl *RateLimiter) rollWindow(h *models.SourceHealth, caps models.SourceCapabilities) {
	now := rl.now()
	if now.Before(h.WindowResetAt) {
		return
	}

	window := time.Duration(caps.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}

	h.RequestsInWindow = 0
	// Advance in whole windows so the boundary stays aligned.
	reset := h.WindowResetAt
	if reset.IsZero() {
		reset = now
	}
	for !reset.After(now) {
		reset = reset.Add(window)
	}
	h.WindowResetAt = reset

	if h.Status == models.SourceRateLimited {
		h.Status = models.SourceActive
	}
}

// MarkThrottled records a provider-signaled throttle: the source is marked
// RATE_LIMITED and its window reset pushed out by retryAfter when given.
func (rl *RateLimiter) MarkThrottled(sourceID string, retryAfter time.Duration) {
	rl.health.withWindow(sourceID, func(h *models.SourceHealth, caps models.SourceCapabilities) {
		if caps.MaxRequests > 0 {
			h.RequestsInWindow = caps.MaxRequests
		}
		if h.Status == models.SourceActive {
			h.Status = models.SourceRateLimited
		}
		if retryAfter > 0 {
			proposed := rl.now().Add(retryAfter)
			if proposed.After(h.WindowResetAt) {
				h.WindowResetAt = proposed
			}
		}
	})
	rl.logger.WithFields(logrus.Fields{
		"source":      sourceID,
		"retry_after": retryAfter,
	}).Warn("Source signaled throttle")
}
