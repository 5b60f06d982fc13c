package engine

import (
	"sync"
	"time"

	"github.com/quantpulse/price-engine/internal/models"
)

// Weight of the newest observation in the rolling reliability score.
const reliabilityAlpha = 0.1

// HealthStore is the explicitly-owned shared state for per-source health.
// It is injected into the limiter, breaker set and router rather than living
// as a package-level singleton, so tests get fresh instances.
type HealthStore struct {
	mu      sync.RWMutex
	entries map[string]*sourceEntry
	now     func() time.Time
}

type sourceEntry struct {
	mu     sync.Mutex
	health models.SourceHealth
	caps   models.SourceCapabilities
}

// NewHealthStore creates an empty health store.
func NewHealthStore() *HealthStore {
	return &HealthStore{
		entries: make(map[string]*sourceEntry),
		now:     time.Now,
	}
}

// Register creates the health row for a source. Calling it again for the
// same source updates capabilities but preserves accumulated state.
func (s *HealthStore) Register(sourceID string, caps models.SourceCapabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[sourceID]; ok {
		entry.mu.Lock()
		entry.caps = caps
		entry.mu.Unlock()
		return
	}

	window := time.Duration(caps.WindowSeconds) * time.Second
	s.entries[sourceID] = &sourceEntry{
		health: models.SourceHealth{
			SourceID:         sourceID,
			Status:           models.SourceActive,
			ReliabilityScore: 1.0,
			WindowResetAt:    s.now().Add(window),
		},
		caps: caps,
	}
}

func (s *HealthStore) entry(sourceID string) (*sourceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[sourceID]
	return entry, ok
}

// Get returns a snapshot of the source's health.
func (s *HealthStore) Get(sourceID string) (models.SourceHealth, bool) {
	entry, ok := s.entry(sourceID)
	if !ok {
		return models.SourceHealth{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.health, true
}

// Capabilities returns the declared capabilities for a source.
func (s *HealthStore) Capabilities(sourceID string) (models.SourceCapabilities, bool) {
	entry, ok := s.entry(sourceID)
	if !ok {
		return models.SourceCapabilities{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.caps, true
}

// Snapshot returns the health of every registered source.
func (s *HealthStore) Snapshot() map[string]models.SourceHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.SourceHealth, len(s.entries))
	for id, entry := range s.entries {
		entry.mu.Lock()
		out[id] = entry.health
		entry.mu.Unlock()
	}
	return out
}

// RecordSuccess folds a successful call into the source's health.
func (s *HealthStore) RecordSuccess(sourceID string) {
	entry, ok := s.entry(sourceID)
	if !ok {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	h := &entry.health
	h.TotalRequests++
	h.ConsecutiveFailures = 0
	h.ReliabilityScore = h.ReliabilityScore*(1-reliabilityAlpha) + reliabilityAlpha
	h.LastSuccessAt = s.now()
	if h.Status == models.SourceRateLimited || h.Status == models.SourceCircuitOpen {
		h.Status = models.SourceActive
	}
}

// RecordFailure folds a failed call into the source's health.
func (s *HealthStore) RecordFailure(sourceID string) {
	entry, ok := s.entry(sourceID)
	if !ok {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	h := &entry.health
	h.TotalRequests++
	h.TotalFailures++
	h.ConsecutiveFailures++
	h.ReliabilityScore = h.ReliabilityScore * (1 - reliabilityAlpha)
	h.LastFailureAt = s.now()
}

// SetStatus transitions the source's operational status. Disabled sources
// stay disabled; they are never resurrected implicitly.
func (s *HealthStore) SetStatus(sourceID string, status models.SourceStatus) {
	entry, ok := s.entry(sourceID)
	if !ok {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.health.Status == models.SourceDisabled {
		return
	}
	entry.health.Status = status
}

// Reliability returns the rolling success ratio for a source, defaulting to
// zero for unknown sources so they sort last.
func (s *HealthStore) Reliability(sourceID string) float64 {
	h, ok := s.Get(sourceID)
	if !ok {
		return 0
	}
	return h.ReliabilityScore
}

// withWindow runs fn while holding the source's lock, giving the rate
// limiter atomic increment-and-check over the window counters.
func (s *HealthStore) withWindow(sourceID string, fn func(h *models.SourceHealth, caps models.SourceCapabilities)) bool {
	entry, ok := s.entry(sourceID)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(&entry.health, entry.caps)
	return true
}
