package engine

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantpulse/price-engine/internal/models"
)

// BreakerState represents the current state of a circuit breaker.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker tunables. The threshold and cooldowns
// are configuration, not constants.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // consecutive failures before opening
	Cooldown         time.Duration `json:"cooldown"`          // initial open duration
	MaxCooldown      time.Duration `json:"max_cooldown"`      // cap for the doubling cooldown
}

// CircuitBreaker protects one source. CLOSED passes calls through; OPEN
// blocks everything; HALF_OPEN admits exactly one trial call. A failed trial
// re-opens the breaker and doubles the cooldown up to the cap.
type CircuitBreaker struct {
	source string
	config BreakerConfig
	health *HealthStore
	logger *logrus.Logger

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	currentCooldown time.Duration
	openedAt        time.Time
	trialInFlight   bool
	now             func() time.Time
}

// NewCircuitBreaker creates a breaker for one source.
func NewCircuitBreaker(source string, config BreakerConfig, health *HealthStore, logger *logrus.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.MaxCooldown <= 0 {
		config.MaxCooldown = 10 * time.Minute
	}

	return &CircuitBreaker{
		source:          source,
		config:          config,
		health:          health,
		logger:          logger,
		state:           Closed,
		currentCooldown: config.Cooldown,
		now:             time.Now,
	}
}

// Allow reports whether a call may proceed, claiming the single trial slot
// when the breaker moves to half-open. A caller that gets true from a
// half-open breaker must report the outcome via OnSuccess or OnFailure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true

	case Open:
		if cb.now().Sub(cb.openedAt) < cb.currentCooldown {
			return false
		}
		cb.setState(HalfOpen)
		cb.trialInFlight = true
		return true

	case HalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true

	default:
		return false
	}
}

// IsOpen reports whether the breaker currently blocks calls. It does not
// claim the half-open trial slot, so it is safe for candidate filtering.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == Open && cb.now().Sub(cb.openedAt) >= cb.currentCooldown {
		return false
	}
	return cb.state == Open
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OnSuccess records a successful call.
func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		cb.failureCount = 0

	case HalfOpen:
		// Trial passed. Full reset, including the cooldown ladder.
		cb.setState(Closed)
		cb.failureCount = 0
		cb.trialInFlight = false
		cb.currentCooldown = cb.config.Cooldown
		cb.health.SetStatus(cb.source, models.SourceActive)
	}
}

// CancelTrial releases the half-open trial slot without a verdict. Used
// when the claimed call never reflected source health (rate limits, data
// validation problems).
func (cb *CircuitBreaker) CancelTrial() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == HalfOpen {
		cb.trialInFlight = false
	}
}

// OnFailure records a failed call. One retry-exhausted fetch counts as one
// failure here, not one per attempt.
func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.open()
		}

	case HalfOpen:
		// Trial failed: back to open with a doubled cooldown.
		cb.trialInFlight = false
		cb.currentCooldown *= 2
		if cb.currentCooldown > cb.config.MaxCooldown {
			cb.currentCooldown = cb.config.MaxCooldown
		}
		cb.open()
	}
}

// open transitions to OPEN and stamps the cooldown start. Called with the
// lock held.
func (cb *CircuitBreaker) open() {
	cb.setState(Open)
	cb.openedAt = cb.now()
	cb.health.SetStatus(cb.source, models.SourceCircuitOpen)
}

// setState changes state with logging. Called with the lock held.
func (cb *CircuitBreaker) setState(newState BreakerState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState

	cb.logger.WithFields(logrus.Fields{
		"source":        cb.source,
		"old_state":     oldState.String(),
		"new_state":     newState.String(),
		"failure_count": cb.failureCount,
		"cooldown":      cb.currentCooldown,
	}).Info("Circuit breaker state changed")
}

// BreakerSet manages per-source circuit breakers.
type BreakerSet struct {
	config BreakerConfig
	health *HealthStore
	logger *logrus.Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerSet creates a breaker set with shared configuration.
func NewBreakerSet(config BreakerConfig, health *HealthStore, logger *logrus.Logger) *BreakerSet {
	return &BreakerSet{
		config:   config,
		health:   health,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker for a source, creating it on first use.
func (bs *BreakerSet) For(source string) *CircuitBreaker {
	bs.mu.RLock()
	cb, ok := bs.breakers[source]
	bs.mu.RUnlock()
	if ok {
		return cb
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if cb, ok := bs.breakers[source]; ok {
		return cb
	}
	cb = NewCircuitBreaker(source, bs.config, bs.health, bs.logger)
	bs.breakers[source] = cb
	return cb
}

// IsOpen reports whether the source's breaker currently blocks calls.
func (bs *BreakerSet) IsOpen(source string) bool {
	return bs.For(source).IsOpen()
}
