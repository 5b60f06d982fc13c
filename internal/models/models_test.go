package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalValid(t *testing.T) {
	assert.True(t, Interval1m.Valid())
	assert.True(t, Interval1d.Valid())
	assert.True(t, Interval15d.Valid())
	assert.False(t, Interval(0).Valid())
	assert.False(t, Interval(7).Valid())
	assert.False(t, Interval(-1440).Valid())
}

func TestIntervalDuration(t *testing.T) {
	assert.Equal(t, time.Minute, Interval1m.Duration())
	assert.Equal(t, time.Hour, Interval1h.Duration())
	assert.Equal(t, 24*time.Hour, Interval1d.Duration())
}

func TestIntervalAlign(t *testing.T) {
	ts := time.Date(2024, 3, 15, 13, 47, 23, 500, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 15, 13, 47, 0, 0, time.UTC), Interval1m.Align(ts))
	assert.Equal(t, time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC), Interval1h.Align(ts))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Interval1d.Align(ts))

	// Alignment is always performed in UTC regardless of input zone.
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2024, 3, 15, 22, 30, 0, 0, est)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), Interval1d.Align(local))

	// Already aligned timestamps are unchanged.
	aligned := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, aligned, Interval1d.Align(aligned))
}

func TestAssetCategoryValid(t *testing.T) {
	assert.True(t, CategoryStock.Valid())
	assert.True(t, CategoryCrypto.Valid())
	assert.False(t, AssetCategory("BOND").Valid())
	assert.False(t, AssetCategory("crypto").Valid())
}

func TestSpanContains(t *testing.T) {
	span := Span{
		Start: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, span.Contains(span.Start))
	assert.True(t, span.Contains(span.End))
	assert.True(t, span.Contains(time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)))
	assert.False(t, span.Contains(span.Start.Add(-time.Second)))
	assert.False(t, span.Contains(span.End.Add(time.Second)))
}

func TestCapabilitiesSupportsCategory(t *testing.T) {
	caps := SourceCapabilities{Categories: []AssetCategory{CategoryCrypto, CategoryCurrency}}
	assert.True(t, caps.SupportsCategory(CategoryCrypto))
	assert.False(t, caps.SupportsCategory(CategoryStock))
}
