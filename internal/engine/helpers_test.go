package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/price-engine/internal/cache"
	"github.com/quantpulse/price-engine/internal/models"
	"github.com/quantpulse/price-engine/internal/provider"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// setupTestCache creates a cache backed by miniredis.
func setupTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		s.Close()
	})

	return cache.New(client, cache.DefaultTTLSet(), "test", testLogger())
}

// memCoverageStore is an in-memory CoverageStore.
type memCoverageStore struct {
	mu     sync.Mutex
	nextID int64
	ranges []models.CoverageRange
}

func newMemCoverageStore() *memCoverageStore {
	return &memCoverageStore{nextID: 1}
}

func (m *memCoverageStore) GetRanges(_ context.Context, assetID int64, interval models.Interval) ([]models.CoverageRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.CoverageRange
	for _, r := range m.ranges {
		if r.AssetID == assetID && r.Interval == interval {
			out = append(out, r)
		}
	}
	// The real store returns rows ORDER BY range_start.
	sort.Slice(out, func(i, j int) bool { return out[i].RangeStart.Before(out[j].RangeStart) })
	return out, nil
}

func (m *memCoverageStore) ReplaceRanges(_ context.Context, assetID int64, interval models.Interval, deleteIDs []int64, merged models.Span) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[int64]bool, len(deleteIDs))
	for _, id := range deleteIDs {
		drop[id] = true
	}
	kept := m.ranges[:0]
	for _, r := range m.ranges {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	m.ranges = kept
	m.ranges = append(m.ranges, models.CoverageRange{
		ID:         m.nextID,
		AssetID:    assetID,
		Interval:   interval,
		RangeStart: merged.Start,
		RangeEnd:   merged.End,
	})
	m.nextID++
	return nil
}

// memSeriesStore is an in-memory TimeSeriesStore with insert-or-ignore
// semantics.
type memSeriesStore struct {
	mu      sync.Mutex
	records map[string]models.PriceRecord
	failOn  func(records []models.PriceRecord) error
}

func newMemSeriesStore() *memSeriesStore {
	return &memSeriesStore{records: make(map[string]models.PriceRecord)}
}

func seriesKey(r models.PriceRecord) string {
	return fmt.Sprintf("%d:%d:%d", r.AssetID, r.Interval, r.Timestamp.Unix())
}

func (m *memSeriesStore) InsertBatch(_ context.Context, records []models.PriceRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failOn != nil {
		if err := m.failOn(records); err != nil {
			return 0, err
		}
	}

	var created int64
	for _, r := range records {
		key := seriesKey(r)
		if _, exists := m.records[key]; exists {
			continue
		}
		m.records[key] = r
		created++
	}
	return created, nil
}

func (m *memSeriesStore) QueryRange(_ context.Context, assetID int64, interval models.Interval, start, end time.Time) ([]models.PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PriceRecord
	for _, r := range m.records {
		if r.AssetID == assetID && r.Interval == interval && !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memSeriesStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// memAssetStore is an in-memory AssetStore.
type memAssetStore struct {
	mu     sync.Mutex
	nextID int64
	assets map[string]models.Asset
}

func newMemAssetStore(assets ...models.Asset) *memAssetStore {
	m := &memAssetStore{nextID: 1, assets: make(map[string]models.Asset)}
	for _, a := range assets {
		if a.ID == 0 {
			a.ID = m.nextID
		}
		if a.ID >= m.nextID {
			m.nextID = a.ID + 1
		}
		m.assets[a.Ticker] = a
	}
	return m
}

func (m *memAssetStore) GetByTicker(_ context.Context, ticker string) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assets[ticker]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *memAssetStore) List(_ context.Context, category models.AssetCategory, maxTier int) ([]models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Asset
	for _, a := range m.assets {
		if a.Category == category && a.Active && (maxTier == 0 || a.Tier <= maxTier) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAssetStore) Upsert(_ context.Context, asset models.Asset) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.assets[asset.Ticker]; ok {
		return &existing, nil
	}
	asset.ID = m.nextID
	m.nextID++
	m.assets[asset.Ticker] = asset
	return &asset, nil
}

// memSyncStore is an in-memory SyncStore.
type memSyncStore struct {
	mu      sync.Mutex
	records map[string]models.SyncRecord
}

func newMemSyncStore() *memSyncStore {
	return &memSyncStore{records: make(map[string]models.SyncRecord)}
}

func (m *memSyncStore) Create(_ context.Context, record *models.SyncRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = *record
	return nil
}

func (m *memSyncStore) Update(_ context.Context, record *models.SyncRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = *record
	return nil
}

func (m *memSyncStore) get(id string) (models.SyncRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	return r, ok
}

// stubProvider is a scriptable PriceProvider.
type stubProvider struct {
	name  string
	caps  models.SourceCapabilities
	fetch func(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]provider.Candle, error)

	mu    sync.Mutex
	calls int
}

func (s *stubProvider) Name() string {
	return s.name
}

func (s *stubProvider) Capabilities() models.SourceCapabilities {
	return s.caps
}

func (s *stubProvider) FetchCandles(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]provider.Candle, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fetch(ctx, ticker, interval, start, end)
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// candlesForSpan generates one candle per interval step across [start, end].
func candlesForSpan(interval models.Interval, start, end time.Time) []provider.Candle {
	var out []provider.Candle
	step := interval.Duration()
	for ts := interval.Align(start); !ts.After(end); ts = ts.Add(step) {
		out = append(out, provider.Candle{
			Timestamp:     ts,
			Open:          decimalFromInt(100),
			High:          decimalFromInt(110),
			Low:           decimalFromInt(90),
			Close:         decimalFromInt(105),
			Volume:        decimalFromInt(1000),
			QuoteCurrency: "USD",
		})
	}
	return out
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func decimalFromInt(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
