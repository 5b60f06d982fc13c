package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantpulse/price-engine/internal/models"
	"github.com/quantpulse/price-engine/internal/provider"
)

// RouterConfig holds the router tunables.
type RouterConfig struct {
	MaxFailovers int           `json:"max_failovers"` // alternate sources tried after the first failure
	CallTimeout  time.Duration `json:"call_timeout"`  // per provider call, inside the retry policy
}

// Router selects which provider serves a request, wraps calls in the retry
// policy, and fails over to the next-best source on failure.
type Router struct {
	registry *provider.Registry
	health   *HealthStore
	limiter  *RateLimiter
	breakers *BreakerSet
	retry    RetryPolicy
	config   RouterConfig
	logger   *logrus.Logger
}

// NewRouter wires the router from its collaborators. Every provider in the
// registry gets a health row up front.
func NewRouter(registry *provider.Registry, health *HealthStore, limiter *RateLimiter, breakers *BreakerSet, retry RetryPolicy, config RouterConfig, logger *logrus.Logger) *Router {
	if config.MaxFailovers <= 0 {
		config.MaxFailovers = 3
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}

	for _, reg := range registry.All() {
		health.Register(reg.Provider.Name(), reg.Provider.Capabilities())
	}

	return &Router{
		registry: registry,
		health:   health,
		limiter:  limiter,
		breakers: breakers,
		retry:    retry,
		config:   config,
		logger:   logger,
	}
}

// SelectSource picks the best source for the category: supported category,
// breaker not open, rate budget left, then highest (priority, reliability).
func (r *Router) SelectSource(category models.AssetCategory, exclude map[string]bool) (string, error) {
	candidates := r.registry.ForCategory(category)
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoSourcesForCategory, category)
	}

	type scored struct {
		name        string
		priority    int
		reliability float64
	}

	eligible := make([]scored, 0, len(candidates))
	for _, reg := range candidates {
		name := reg.Provider.Name()
		if exclude[name] {
			continue
		}
		if h, ok := r.health.Get(name); ok && h.Status == models.SourceDisabled {
			continue
		}
		if r.breakers.IsOpen(name) {
			continue
		}
		if !r.limiter.Allow(name) {
			continue
		}
		eligible = append(eligible, scored{
			name:        name,
			priority:    reg.Priority,
			reliability: r.health.Reliability(name),
		})
	}

	if len(eligible) == 0 {
		return "", fmt.Errorf("%w for category %s", ErrNoSourceAvailable, category)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].priority != eligible[j].priority {
			return eligible[i].priority > eligible[j].priority
		}
		return eligible[i].reliability > eligible[j].reliability
	})
	return eligible[0].name, nil
}

// Fetch retrieves candles for the asset's segment, failing over across
// sources up to the configured depth. It returns the candles and the name of
// the source that served them.
func (r *Router) Fetch(ctx context.Context, asset models.Asset, interval models.Interval, start, end time.Time) ([]provider.Candle, string, error) {
	exclude := make(map[string]bool)
	var causes []error

	// First selection plus MaxFailovers alternates.
	for attempt := 0; attempt <= r.config.MaxFailovers; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		sourceID, err := r.SelectSource(asset.Category, exclude)
		if err != nil {
			if errors.Is(err, ErrNoSourcesForCategory) {
				return nil, "", err
			}
			break
		}

		candles, err := r.callSource(ctx, sourceID, asset, interval, start, end)
		if err == nil {
			return candles, sourceID, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		causes = append(causes, err)
		exclude[sourceID] = true

		r.logger.WithFields(logrus.Fields{
			"source": sourceID,
			"ticker": asset.Ticker,
			"error":  err.Error(),
		}).Warn("Source failed, failing over")
	}

	return nil, "", &SourceExhaustedError{
		Category: string(asset.Category),
		Start:    start,
		End:      end,
		Causes:   causes,
	}
}

// callSource runs one protected call against a specific source, updating
// limiter, breaker and health state from the outcome.
func (r *Router) callSource(ctx context.Context, sourceID string, asset models.Asset, interval models.Interval, start, end time.Time) ([]provider.Candle, error) {
	reg, ok := r.registry.Get(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s not registered", ErrNoSourceAvailable, sourceID)
	}

	breaker := r.breakers.For(sourceID)
	if !breaker.Allow() {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, sourceID)
	}

	if !r.limiter.Record(sourceID) {
		breaker.CancelTrial()
		return nil, fmt.Errorf("%w: %s", ErrRateLimitExceeded, sourceID)
	}

	var candles []provider.Candle
	err := r.retry.Execute(ctx, sourceID, r.logger, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()

		fetched, err := reg.Provider.FetchCandles(callCtx, asset.Ticker, interval, start, end)
		if err != nil {
			return err
		}
		candles = fetched
		return nil
	})

	if err == nil {
		r.health.RecordSuccess(sourceID)
		breaker.OnSuccess()
		return candles, nil
	}

	// Every failed attempt still updates health counters.
	r.health.RecordFailure(sourceID)

	var rle *provider.RateLimitError
	var ve *provider.ValidationError
	var ae *provider.AuthError
	var exhausted *RetryExhaustedError

	switch {
	case errors.As(err, &rle):
		// Provider throttle: not a health failure, but no budget until the
		// window resets.
		r.limiter.MarkThrottled(sourceID, rle.RetryAfter)
		breaker.CancelTrial()

	case errors.As(err, &ve):
		// Data problem, not a source-health problem.
		breaker.CancelTrial()
		r.logger.WithFields(logrus.Fields{
			"source":  sourceID,
			"ticker":  asset.Ticker,
			"payload": ve.Payload,
		}).Error("Provider returned invalid data")

	case errors.As(err, &ae):
		// Bad credentials are permanent until operators intervene.
		breaker.CancelTrial()
		r.health.SetStatus(sourceID, models.SourceDisabled)
		r.logger.WithField("source", sourceID).Error("Source disabled after auth failure")

	case errors.As(err, &exhausted):
		// One breaker failure per exhausted call, not per attempt.
		breaker.OnFailure()

	default:
		breaker.OnFailure()
	}

	return nil, err
}

// HasSources reports whether any provider is registered for the category at
// all, regardless of current health.
func (r *Router) HasSources(category models.AssetCategory) bool {
	return len(r.registry.ForCategory(category)) > 0
}

// HealthSnapshot returns the current health of every source, with breaker
// state folded into the status.
func (r *Router) HealthSnapshot() map[string]models.SourceHealth {
	snapshot := r.health.Snapshot()
	for id, h := range snapshot {
		if h.Status != models.SourceDisabled && r.breakers.IsOpen(id) {
			h.Status = models.SourceCircuitOpen
			snapshot[id] = h
		}
	}
	return snapshot
}
