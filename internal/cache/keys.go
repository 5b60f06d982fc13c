package cache

import (
	"fmt"

	"github.com/quantpulse/price-engine/internal/models"
)

// Namespace is the Redis key prefix for the price engine. Keys are further
// namespaced by environment so shared Redis instances never collide across
// deployments.
const Namespace = "price_engine"

// Key builds a fully-qualified cache key: namespace:environment:parts...
func Key(environment string, parts ...interface{}) string {
	key := Namespace + ":" + environment
	for _, part := range parts {
		key += fmt.Sprintf(":%v", part)
	}
	return key
}

// CoverageKey identifies the cached coverage ranges for an (asset, interval).
func CoverageKey(environment string, assetID int64, interval models.Interval) string {
	return Key(environment, "coverage", assetID, int(interval))
}

// LatestPriceKey identifies the cached most-recent price for an asset.
func LatestPriceKey(environment string, assetID int64, interval models.Interval) string {
	return Key(environment, "latest", assetID, int(interval))
}

// AssetKey identifies cached asset metadata by ticker.
func AssetKey(environment, ticker string) string {
	return Key(environment, "asset", ticker)
}

// AssetPattern matches every cached entry touching one asset, across kinds.
// Used for cascading invalidation after writes.
func AssetPattern(environment string, assetID int64) string {
	return fmt.Sprintf("%s:%s:*:%d:*", Namespace, environment, assetID)
}
