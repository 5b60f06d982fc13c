package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantpulse/price-engine/internal/models"
)

// Candle is one raw OHLCV record as returned by a provider, before it is
// normalized into a models.PriceRecord.
type Candle struct {
	Timestamp     time.Time       `json:"timestamp"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	Volume        decimal.Decimal `json:"volume"`
	TradeCount    *int64          `json:"trade_count,omitempty"`
	QuoteCurrency string          `json:"quote_currency"`
}

// PriceProvider is the pluggable boundary to an external price source.
type PriceProvider interface {
	// Name returns the stable source identifier used for health tracking.
	Name() string

	// Capabilities declares supported categories, historical depth and the
	// nominal rate limit the source advertises.
	Capabilities() models.SourceCapabilities

	// FetchCandles returns the candles for [start, end]. Implementations must
	// honor ctx cancellation and classify failures via this package's error
	// types so the router can react correctly.
	FetchCandles(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]Candle, error)
}

// Registration pairs a provider with its routing priority.
type Registration struct {
	Provider PriceProvider
	Priority int
}

// Registry holds the registered providers. Registration order does not
// matter; the router sorts candidates by priority and health at selection
// time.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Registration),
	}
}

// Register adds or replaces a provider under its name.
func (r *Registry) Register(p PriceProvider, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.Name()] = Registration{Provider: p, Priority: priority}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// All returns every registration, sorted by descending priority then name so
// iteration order is deterministic.
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].Priority != regs[j].Priority {
			return regs[i].Priority > regs[j].Priority
		}
		return regs[i].Provider.Name() < regs[j].Provider.Name()
	})
	return regs
}

// ForCategory returns registrations whose provider supports the category,
// sorted by descending priority.
func (r *Registry) ForCategory(category models.AssetCategory) []Registration {
	all := r.All()
	matched := make([]Registration, 0, len(all))
	for _, reg := range all {
		if reg.Provider.Capabilities().SupportsCategory(category) {
			matched = append(matched, reg)
		}
	}
	return matched
}

// EarliestAvailable returns the oldest timestamp any registered source
// claims to cover for the category, or zero time when no source serves it.
func (r *Registry) EarliestAvailable(category models.AssetCategory, now time.Time) time.Time {
	var earliest time.Time
	for _, reg := range r.ForCategory(category) {
		depth := reg.Provider.Capabilities().HistoricalDepth
		if depth <= 0 {
			continue
		}
		floor := now.Add(-depth)
		if earliest.IsZero() || floor.Before(earliest) {
			earliest = floor
		}
	}
	return earliest
}
