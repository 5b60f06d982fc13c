package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/price-engine/internal/models"
)

func newTestWriter(t *testing.T, config WriterConfig) (*TimeSeriesWriter, *memSeriesStore, *CoverageTracker) {
	t.Helper()
	store := newMemSeriesStore()
	tracker, _ := newTestTracker(t)
	return NewTimeSeriesWriter(store, tracker, config, testLogger()), store, tracker
}

// recordsForDays builds one daily record per day in [from, to].
func recordsForDays(assetID int64, from, to int) []models.PriceRecord {
	var out []models.PriceRecord
	for n := from; n <= to; n++ {
		out = append(out, models.PriceRecord{
			AssetID:       assetID,
			Interval:      models.Interval1d,
			Timestamp:     day(n),
			Open:          decimalFromInt(100),
			High:          decimalFromInt(110),
			Low:           decimalFromInt(90),
			Close:         decimalFromInt(105),
			Volume:        decimalFromInt(1000),
			Source:        "test",
			QuoteCurrency: "USD",
		})
	}
	return out
}

func TestWriteBatchCreatesRecordsAndExtendsCoverage(t *testing.T) {
	writer, store, tracker := newTestWriter(t, WriterConfig{})

	result, err := writer.WriteBatch(context.Background(), recordsForDays(1, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Created)
	assert.Equal(t, int64(0), result.Skipped)
	assert.Equal(t, 10, store.count())

	spans, err := tracker.GetRanges(context.Background(), 1, models.Interval1d)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, day(1), spans[0].Start)
	assert.Equal(t, day(10), spans[0].End)
}

func TestWriteBatchIsIdempotent(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{})
	records := recordsForDays(1, 1, 10)

	first, err := writer.WriteBatch(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.Created)

	second, err := writer.WriteBatch(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Created)
	assert.Equal(t, int64(10), second.Skipped)
	assert.Equal(t, 10, store.count())
}

func TestWriteBatchDropsInBatchDuplicates(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{})

	records := append(recordsForDays(1, 1, 5), recordsForDays(1, 3, 7)...)
	result, err := writer.WriteBatch(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Created)
	assert.Equal(t, int64(0), result.Skipped)
	assert.Equal(t, 7, store.count())
}

func TestWriteBatchSplitsCoverageAtHoles(t *testing.T) {
	writer, _, tracker := newTestWriter(t, WriterConfig{})

	records := append(recordsForDays(1, 1, 3), recordsForDays(1, 7, 9)...)
	_, err := writer.WriteBatch(context.Background(), records)
	require.NoError(t, err)

	spans, err := tracker.GetRanges(context.Background(), 1, models.Interval1d)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, day(1), spans[0].Start)
	assert.Equal(t, day(3), spans[0].End)
	assert.Equal(t, day(7), spans[1].Start)
	assert.Equal(t, day(9), spans[1].End)
}

func TestWriteBatchFailedChunkDoesNotAbortSiblings(t *testing.T) {
	writer, store, tracker := newTestWriter(t, WriterConfig{ChunkSize: 3, MaxParallelism: 1})

	boom := errors.New("insert failed")
	store.failOn = func(records []models.PriceRecord) error {
		if records[0].Timestamp.Equal(day(4)) {
			return boom
		}
		return nil
	}

	result, err := writer.WriteBatch(context.Background(), recordsForDays(1, 1, 9))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(6), result.Created)
	assert.Equal(t, 6, store.count())

	// Coverage only advances over the chunks that landed.
	spans, err := tracker.GetRanges(context.Background(), 1, models.Interval1d)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, day(1), spans[0].Start)
	assert.Equal(t, day(3), spans[0].End)
	assert.Equal(t, day(7), spans[1].Start)
	assert.Equal(t, day(9), spans[1].End)
}

func TestWriteBatchSeparatesAssetsAndIntervals(t *testing.T) {
	writer, _, tracker := newTestWriter(t, WriterConfig{})

	hourly := models.PriceRecord{
		AssetID:       1,
		Interval:      models.Interval1h,
		Timestamp:     day(1),
		Open:          decimalFromInt(1),
		High:          decimalFromInt(1),
		Low:           decimalFromInt(1),
		Close:         decimalFromInt(1),
		Volume:        decimalFromInt(1),
		Source:        "test",
		QuoteCurrency: "USD",
	}
	records := append(recordsForDays(1, 1, 3), hourly)
	records = append(records, recordsForDays(2, 1, 3)...)

	_, err := writer.WriteBatch(context.Background(), records)
	require.NoError(t, err)

	daily1, err := tracker.GetRanges(context.Background(), 1, models.Interval1d)
	require.NoError(t, err)
	require.Len(t, daily1, 1)

	hourly1, err := tracker.GetRanges(context.Background(), 1, models.Interval1h)
	require.NoError(t, err)
	require.Len(t, hourly1, 1)
	assert.Equal(t, day(1), hourly1[0].Start)
	assert.Equal(t, day(1), hourly1[0].End)

	daily2, err := tracker.GetRanges(context.Background(), 2, models.Interval1d)
	require.NoError(t, err)
	require.Len(t, daily2, 1)
}

func TestWriteBatchEmptyInput(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{})

	result, err := writer.WriteBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, WriteResult{}, result)
	assert.Equal(t, 0, store.count())
}

func TestWriteBatchCancelledContext(t *testing.T) {
	writer, store, _ := newTestWriter(t, WriterConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := writer.WriteBatch(ctx, recordsForDays(1, 1, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.count())
}
