package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Retry       RetryConfig     `mapstructure:"retry"`
	Breaker     BreakerConfig   `mapstructure:"circuit_breaker"`
	Writer      WriterConfig    `mapstructure:"writer"`
	Ingestion   IngestionConfig `mapstructure:"ingestion"`
	Sources     []SourceConfig  `mapstructure:"sources"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds the TTLs for the four cache tiers.
type CacheConfig struct {
	ShortTTL    string `mapstructure:"short_ttl"`     // hot reads, e.g. latest price
	MediumTTL   string `mapstructure:"medium_ttl"`    // coverage ranges, provider responses
	LongTTL     string `mapstructure:"long_ttl"`      // historical price lookups
	VeryLongTTL string `mapstructure:"very_long_ttl"` // asset metadata
}

type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	BaseDelay   string  `mapstructure:"base_delay"`
	MaxDelay    string  `mapstructure:"max_delay"`
	Multiplier  float64 `mapstructure:"multiplier"`
	Jitter      bool    `mapstructure:"jitter"`
}

type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	Cooldown         string `mapstructure:"cooldown"`
	MaxCooldown      string `mapstructure:"max_cooldown"`
}

type WriterConfig struct {
	ChunkSize      int `mapstructure:"chunk_size"`
	MaxParallelism int `mapstructure:"max_parallelism"`
}

type IngestionConfig struct {
	WorkerPoolSize  int    `mapstructure:"worker_pool_size"`
	MaxFailovers    int    `mapstructure:"max_failovers"`
	ProviderTimeout string `mapstructure:"provider_timeout"`
}

// SourceConfig declares a registered provider: its routing priority and its
// nominal capabilities.
type SourceConfig struct {
	Name            string   `mapstructure:"name"`
	BaseURL         string   `mapstructure:"base_url"`
	APIKey          string   `mapstructure:"api_key"`
	Priority        int      `mapstructure:"priority"`
	Categories      []string `mapstructure:"categories"`
	HistoricalDepth string   `mapstructure:"historical_depth"`
	MaxRequests     int      `mapstructure:"max_requests"`
	WindowSeconds   int      `mapstructure:"window_seconds"`
	Timeout         string   `mapstructure:"timeout"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"cache.short_ttl", config.Cache.ShortTTL},
		{"cache.medium_ttl", config.Cache.MediumTTL},
		{"cache.long_ttl", config.Cache.LongTTL},
		{"cache.very_long_ttl", config.Cache.VeryLongTTL},
		{"retry.base_delay", config.Retry.BaseDelay},
		{"retry.max_delay", config.Retry.MaxDelay},
		{"circuit_breaker.cooldown", config.Breaker.Cooldown},
		{"circuit_breaker.max_cooldown", config.Breaker.MaxCooldown},
		{"ingestion.provider_timeout", config.Ingestion.ProviderTimeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %w", field.name, err)
		}
	}

	return &config, nil
}

// Duration parses s, falling back to def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "price_engine")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("cache.short_ttl", "1m")
	viper.SetDefault("cache.medium_ttl", "5m")
	viper.SetDefault("cache.long_ttl", "1h")
	viper.SetDefault("cache.very_long_ttl", "24h")

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay", "100ms")
	viper.SetDefault("retry.max_delay", "5s")
	viper.SetDefault("retry.multiplier", 2.0)
	viper.SetDefault("retry.jitter", true)

	viper.SetDefault("circuit_breaker.failure_threshold", 5)
	viper.SetDefault("circuit_breaker.cooldown", "30s")
	viper.SetDefault("circuit_breaker.max_cooldown", "10m")

	viper.SetDefault("writer.chunk_size", 10000)
	viper.SetDefault("writer.max_parallelism", 4)

	viper.SetDefault("ingestion.worker_pool_size", 8)
	viper.SetDefault("ingestion.max_failovers", 3)
	viper.SetDefault("ingestion.provider_timeout", "30s")
}
