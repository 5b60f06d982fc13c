package models

import (
	"time"
)

// SourceStatus represents the operational state of a registered provider.
type SourceStatus string

const (
	SourceActive      SourceStatus = "ACTIVE"
	SourceRateLimited SourceStatus = "RATE_LIMITED"
	SourceCircuitOpen SourceStatus = "CIRCUIT_OPEN"
	SourceDisabled    SourceStatus = "DISABLED"
)

// SourceHealth tracks per-provider mutable state. It is created at source
// registration, updated on every call attempt, and never deleted (sources are
// disabled, not removed).
type SourceHealth struct {
	SourceID            string       `json:"source_id"`
	Status              SourceStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	ReliabilityScore    float64      `json:"reliability_score"` // rolling success ratio, 0..1
	RequestsInWindow    int          `json:"requests_in_current_window"`
	WindowResetAt       time.Time    `json:"window_reset_at"`
	TotalRequests       int64        `json:"total_requests"`
	TotalFailures       int64        `json:"total_failures"`
	LastFailureAt       time.Time    `json:"last_failure_at,omitempty"`
	LastSuccessAt       time.Time    `json:"last_success_at,omitempty"`
}

// SourceCapabilities declares what a provider can serve. Used by the router
// to filter candidates and by the gap detector to bound backfill depth.
type SourceCapabilities struct {
	Categories      []AssetCategory `json:"categories"`
	HistoricalDepth time.Duration   `json:"historical_depth"` // how far back the source has data
	MaxRequests     int             `json:"max_requests"`     // nominal rate limit
	WindowSeconds   int             `json:"window_seconds"`
}

// SupportsCategory reports whether the source serves the given asset category.
func (c SourceCapabilities) SupportsCategory(cat AssetCategory) bool {
	for _, have := range c.Categories {
		if have == cat {
			return true
		}
	}
	return false
}
