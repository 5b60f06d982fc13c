package models

import (
	"time"
)

// SyncStatus represents the lifecycle state of an ingestion run.
type SyncStatus string

const (
	SyncPending    SyncStatus = "PENDING"
	SyncInProgress SyncStatus = "IN_PROGRESS"
	SyncSuccess    SyncStatus = "SUCCESS"
	SyncFailed     SyncStatus = "FAILED"
)

// SyncType classifies what an ingestion run was doing.
type SyncType string

const (
	SyncTypeBackfill SyncType = "BACKFILL"
	SyncTypeCatalog  SyncType = "CATALOG"
)

// SegmentError records the failure of a single gap segment within a run.
type SegmentError struct {
	GapStart time.Time `json:"gap_start"`
	GapEnd   time.Time `json:"gap_end"`
	Message  string    `json:"message"`
}

// SyncRecord is the audit row for one orchestrator run. It is the single
// source of truth for what happened: always finalized, always has a status,
// and enumerates per-segment errors.
type SyncRecord struct {
	ID             string         `json:"id" db:"id"`
	Source         string         `json:"source" db:"source"`
	AssetID        *int64         `json:"asset_id,omitempty" db:"asset_id"` // nil for catalog-level syncs
	SyncType       SyncType       `json:"sync_type" db:"sync_type"`
	Status         SyncStatus     `json:"status" db:"status"`
	StartedAt      time.Time      `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	RecordsCreated int            `json:"records_created" db:"records_created"`
	RecordsUpdated int            `json:"records_updated" db:"records_updated"`
	ErrorSummary   string         `json:"error_summary,omitempty" db:"error_summary"`
	SegmentErrors  []SegmentError `json:"segment_errors,omitempty" db:"-"`
}
