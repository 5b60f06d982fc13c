package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/quantpulse/price-engine/internal/cache"
	"github.com/quantpulse/price-engine/internal/config"
	"github.com/quantpulse/price-engine/internal/database"
	"github.com/quantpulse/price-engine/internal/engine"
	"github.com/quantpulse/price-engine/internal/logging"
	"github.com/quantpulse/price-engine/internal/models"
	"github.com/quantpulse/price-engine/internal/provider"
	"github.com/quantpulse/price-engine/internal/store"
)

func main() {
	var (
		tickers  = flag.String("tickers", "", "comma-separated tickers to ingest")
		category = flag.String("category", "", "asset category (STOCK|CRYPTO|COMMODITY|CURRENCY)")
		maxTier  = flag.Int("max-tier", 0, "only assets at this tier or better (0 = all)")
		interval = flag.Int("interval", 1440, "candle interval in minutes")
		startStr = flag.String("start", "", "range start (YYYY-MM-DD)")
		endStr   = flag.String("end", "", "range end (YYYY-MM-DD)")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("Invalid -start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endStr)
	if err != nil {
		log.Fatalf("Invalid -end date: %v", err)
	}

	// Load .env for local development; in deployed environments the real
	// environment wins and the file is absent.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis
	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	// Register providers
	registry := provider.NewRegistry()
	for _, sourceCfg := range cfg.Sources {
		p, err := provider.NewRESTProvider(sourceCfg, logger)
		if err != nil {
			log.Fatalf("Failed to build provider %s: %v", sourceCfg.Name, err)
		}
		registry.Register(p, sourceCfg.Priority)
	}

	ttls := cache.TTLSet{
		Short:    config.Duration(cfg.Cache.ShortTTL, time.Minute),
		Medium:   config.Duration(cfg.Cache.MediumTTL, 5*time.Minute),
		Long:     config.Duration(cfg.Cache.LongTTL, time.Hour),
		VeryLong: config.Duration(cfg.Cache.VeryLongTTL, 24*time.Hour),
	}
	cacheLayer := cache.New(redis.Client, ttls, cfg.Environment, logger)

	// Wire the engine
	health := engine.NewHealthStore()
	limiter := engine.NewRateLimiter(health, logger)
	breakers := engine.NewBreakerSet(engine.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         config.Duration(cfg.Breaker.Cooldown, 30*time.Second),
		MaxCooldown:      config.Duration(cfg.Breaker.MaxCooldown, 10*time.Minute),
	}, health, logger)
	retry := engine.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   config.Duration(cfg.Retry.BaseDelay, 100*time.Millisecond),
		MaxDelay:    config.Duration(cfg.Retry.MaxDelay, 5*time.Second),
		Multiplier:  cfg.Retry.Multiplier,
		Jitter:      cfg.Retry.Jitter,
	}
	router := engine.NewRouter(registry, health, limiter, breakers, retry, engine.RouterConfig{
		MaxFailovers: cfg.Ingestion.MaxFailovers,
		CallTimeout:  config.Duration(cfg.Ingestion.ProviderTimeout, 30*time.Second),
	}, logger)

	coverageStore := store.NewCoverageStore(db.Pool)
	tracker := engine.NewCoverageTracker(coverageStore, cacheLayer, logger)
	gaps := engine.NewGapDetector(tracker, registry, logger)
	writer := engine.NewTimeSeriesWriter(store.NewTimeSeriesStore(db.Pool), tracker, engine.WriterConfig{
		ChunkSize:      cfg.Writer.ChunkSize,
		MaxParallelism: cfg.Writer.MaxParallelism,
	}, logger)

	orchestrator := engine.NewOrchestrator(
		store.NewAssetStore(db.Pool),
		store.NewSyncStore(db.Pool),
		gaps,
		router,
		writer,
		engine.OrchestratorConfig{WorkerPoolSize: cfg.Ingestion.WorkerPoolSize},
		logger,
	)

	req := engine.Request{
		Category: models.AssetCategory(strings.ToUpper(*category)),
		MaxTier:  *maxTier,
		Interval: models.Interval(*interval),
		Start:    start,
		End:      end,
	}
	if *tickers != "" {
		for _, t := range strings.Split(*tickers, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Tickers = append(req.Tickers, t)
			}
		}
	}

	// Cancel on SIGINT/SIGTERM; in-flight segments finish or time out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := orchestrator.Run(ctx, req)
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}

	failed := 0
	for _, record := range records {
		fmt.Printf("sync %s: status=%s created=%d skipped=%d", record.ID, record.Status, record.RecordsCreated, record.RecordsUpdated)
		if record.ErrorSummary != "" {
			fmt.Printf(" errors=%q", record.ErrorSummary)
		}
		fmt.Println()
		if record.Status == models.SyncFailed {
			failed++
		}
	}

	for source, h := range router.HealthSnapshot() {
		logger.WithFields(logrus.Fields{
			"source":      source,
			"status":      h.Status,
			"reliability": h.ReliabilityScore,
			"requests":    h.TotalRequests,
		}).Info("Source health after run")
	}

	if failed > 0 {
		os.Exit(1)
	}
}
