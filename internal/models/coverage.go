package models

import (
	"time"
)

// CoverageRange marks a contiguous, fully-ingested span for an
// (asset, interval) pair. Stored ranges are kept non-overlapping and sorted;
// ranges within one interval step of each other are merged on insert.
type CoverageRange struct {
	ID         int64     `json:"id" db:"id"`
	AssetID    int64     `json:"asset_id" db:"asset_id"`
	Interval   Interval  `json:"interval" db:"interval"`
	RangeStart time.Time `json:"range_start" db:"range_start"`
	RangeEnd   time.Time `json:"range_end" db:"range_end"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Span is a half-abstract (start, end] pair used for merge and gap arithmetic.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the span (inclusive bounds).
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// GapSegment is a transient slice of a requested span that is not yet covered.
// Fillable is false when the segment predates the earliest data any registered
// source can supply for the asset's category.
type GapSegment struct {
	AssetID  int64     `json:"asset_id"`
	Interval Interval  `json:"interval"`
	GapStart time.Time `json:"gap_start"`
	GapEnd   time.Time `json:"gap_end"`
	Fillable bool      `json:"fillable"`
}
