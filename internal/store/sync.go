package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quantpulse/price-engine/internal/models"
)

// SyncStore persists the audit trail of ingestion runs.
type SyncStore struct {
	pool Pool
}

// NewSyncStore creates a new sync store.
func NewSyncStore(pool Pool) *SyncStore {
	return &SyncStore{pool: pool}
}

// Create inserts the opening PENDING row for a run.
func (s *SyncStore) Create(ctx context.Context, record *models.SyncRecord) error {
	query := `
		INSERT INTO sync_records (id, source, asset_id, sync_type, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		record.ID,
		record.Source,
		record.AssetID,
		record.SyncType,
		record.Status,
		record.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync record: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a run's record, including the
// JSON-encoded per-segment errors.
func (s *SyncStore) Update(ctx context.Context, record *models.SyncRecord) error {
	segmentErrors, err := json.Marshal(record.SegmentErrors)
	if err != nil {
		return fmt.Errorf("failed to encode segment errors: %w", err)
	}

	query := `
		UPDATE sync_records
		SET source = $2,
		    status = $3,
		    completed_at = $4,
		    records_created = $5,
		    records_updated = $6,
		    error_summary = $7,
		    segment_errors = $8
		WHERE id = $1
	`

	_, err = s.pool.Exec(ctx, query,
		record.ID,
		record.Source,
		record.Status,
		record.CompletedAt,
		record.RecordsCreated,
		record.RecordsUpdated,
		record.ErrorSummary,
		segmentErrors,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync record: %w", err)
	}
	return nil
}
