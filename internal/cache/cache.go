package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Tier selects how long a cached value lives. Hot reads churn fast; asset
// metadata barely changes.
type Tier string

const (
	TierShort    Tier = "short"     // most recent price style hot reads
	TierMedium   Tier = "medium"    // coverage ranges, provider responses
	TierLong     Tier = "long"      // historical price lookups
	TierVeryLong Tier = "very_long" // asset metadata
)

// TTLSet holds the per-tier expirations.
type TTLSet struct {
	Short    time.Duration
	Medium   time.Duration
	Long     time.Duration
	VeryLong time.Duration
}

// DefaultTTLSet returns the standard tier durations.
func DefaultTTLSet() TTLSet {
	return TTLSet{
		Short:    time.Minute,
		Medium:   5 * time.Minute,
		Long:     time.Hour,
		VeryLong: 24 * time.Hour,
	}
}

// Duration returns the expiration for the given tier.
func (t TTLSet) Duration(tier Tier) time.Duration {
	switch tier {
	case TierShort:
		return t.Short
	case TierMedium:
		return t.Medium
	case TierLong:
		return t.Long
	case TierVeryLong:
		return t.VeryLong
	default:
		return t.Medium
	}
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Invalidated int64 `json:"invalidated"`
}

// Cache is the tiered TTL cache fronting metadata and coverage queries.
// Values are JSON-encoded into Redis under environment-namespaced keys.
type Cache struct {
	redis       *redis.Client
	ttls        TTLSet
	logger      *logrus.Logger
	environment string

	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	invalidated atomic.Int64
}

// New creates a cache backed by the given Redis client.
func New(redisClient *redis.Client, ttls TTLSet, environment string, logger *logrus.Logger) *Cache {
	return &Cache{
		redis:       redisClient,
		ttls:        ttls,
		logger:      logger,
		environment: environment,
	}
}

// Environment returns the namespace environment this cache was built with.
func (c *Cache) Environment() string {
	return c.environment
}

// Get loads the value stored under key into dest. The second return is false
// on a miss or on any Redis/decoding error; errors degrade to misses so a
// flaky cache never takes the read path down.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return false, nil
	}
	if err != nil {
		c.misses.Add(1)
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Cache read failed, treating as miss")
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.misses.Add(1)
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Cache entry corrupt, treating as miss")
		return false, nil
	}

	c.hits.Add(1)
	return true, nil
}

// Set stores value under key with the tier's TTL.
func (c *Cache) Set(ctx context.Context, key string, tier Tier, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, key, data, c.ttls.Duration(tier)).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	c.sets.Add(1)
	return nil
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. dest must be a pointer; it receives the value either way. A failed
// cache write is logged but does not fail the computation.
func (c *Cache) GetOrCompute(ctx context.Context, key string, tier Tier, dest interface{}, compute func(context.Context) (interface{}, error)) error {
	hit, err := c.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if hit {
		return nil
	}

	value, err := compute(ctx)
	if err != nil {
		return err
	}

	// Round-trip through JSON so dest sees exactly what later hits will see.
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode computed value for %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode computed value for %s: %w", key, err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttls.Duration(tier)).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Failed to populate cache after compute")
		return nil
	}
	c.sets.Add(1)
	return nil
}

// Invalidate deletes every key matching pattern. Uses SCAN rather than KEYS
// so large keyspaces do not block Redis.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()

	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.redis.Del(ctx, batch...).Result()
		deleted += n
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("failed to delete cache keys for %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache scan failed for %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("failed to delete cache keys for %s: %w", pattern, err)
	}

	c.invalidated.Add(deleted)
	if deleted > 0 {
		c.logger.WithFields(logrus.Fields{
			"pattern": pattern,
			"deleted": deleted,
		}).Debug("Invalidated cache entries")
	}
	return deleted, nil
}

// InvalidateAsset drops every cached entry for one asset: coverage ranges and
// the derived latest-price entries together, so a stale read cannot survive a
// fresh write.
func (c *Cache) InvalidateAsset(ctx context.Context, assetID int64) error {
	_, err := c.Invalidate(ctx, AssetPattern(c.environment, assetID))
	return err
}

// Stats returns a snapshot of the hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Invalidated: c.invalidated.Load(),
	}
}
