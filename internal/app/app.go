// Package app wires configuration, storage, clients and services into a
// runnable coindex instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/coindex/internal/clients/coingecko"
	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/pricecache"
	"github.com/bobmcallan/coindex/internal/services/alert"
	"github.com/bobmcallan/coindex/internal/services/pricesync"
	"github.com/bobmcallan/coindex/internal/services/valuation"
	"github.com/bobmcallan/coindex/internal/storage/surrealdb"
	"github.com/bobmcallan/coindex/internal/stream/redispub"
)

// App holds all initialized clients, services and storage. It is the
// shared core behind cmd/coindex-server.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	Redis            *redis.Client
	MarketClient     interfaces.MarketDataClient
	SyncService      interfaces.SyncService
	ValuationService interfaces.ValuationService
	AlertService     interfaces.AlertService
	PriceCache       *pricecache.Cache
	StartupTime      time.Time

	scheduler *Scheduler
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients and services. configPath may be
// empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	// Config resolution: explicit path, COINDEX_CONFIG, binary dir, dev fallback
	if configPath == "" {
		configPath = os.Getenv("COINDEX_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "coindex.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/coindex.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Stream.Address,
		Password: config.Stream.Password,
		DB:       config.Stream.DB,
	})

	publisher := redispub.NewPublisher(redisClient, config.Stream.Channel, logger)

	storageManager, err := surrealdb.NewManager(logger, config, publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if config.Clients.CoinGecko.APIKey == "" {
		logger.Warn().Msg("CoinGecko API key not configured - using the public tier limits")
	}

	marketClient := coingecko.NewClient(config.Clients.CoinGecko.APIKey,
		coingecko.WithBaseURL(config.Clients.CoinGecko.BaseURL),
		coingecko.WithLogger(logger),
		coingecko.WithRateLimit(config.Clients.CoinGecko.RateLimit),
		coingecko.WithTimeout(config.Clients.CoinGecko.GetTimeout()),
	)

	valuationService := valuation.NewService(logger, storageManager)
	syncService := pricesync.NewService(logger, marketClient, storageManager, valuationService)
	alertService := alert.NewService(logger, storageManager)

	priceCache := pricecache.New(storageManager.PriceStore(),
		redispub.NewSubscriber(redisClient, config.Stream.Channel, logger), logger)

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		Redis:            redisClient,
		MarketClient:     marketClient,
		SyncService:      syncService,
		ValuationService: valuationService,
		AlertService:     alertService,
		PriceCache:       priceCache,
		StartupTime:      startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// StartSyncScheduler launches the background price sync loop.
func (a *App) StartSyncScheduler() {
	a.scheduler = NewScheduler(a.Logger, a.SyncService, a.Config.Sync.GetInterval())
	a.scheduler.Start()
}

// StartPriceCache subscribes the shared read cache to the price change
// stream. Runs in the background with retries so a stream that is down at
// startup only delays cache lookups, never boot.
func (a *App) StartPriceCache() {
	cache := a.PriceCache
	go func() {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 0

		operation := func() error {
			err := cache.Subscribe(context.Background())
			if errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := backoff.Retry(operation, bo); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn().Err(err).Msg("Price cache subscription abandoned, lookups fall back to the store")
		}
	}()
}

// NewStreamSubscriber creates a fresh connection-scoped subscription to
// the price change stream.
func (a *App) NewStreamSubscriber() interfaces.PriceStream {
	return redispub.NewSubscriber(a.Redis, a.Config.Stream.Channel, a.Logger)
}

// Close releases all resources. Shutdown order: stop the scheduler, drop
// the cache subscription, close Redis, close storage.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	if a.PriceCache != nil {
		a.PriceCache.Unsubscribe()
		a.PriceCache = nil
	}
	if a.Redis != nil {
		a.Redis.Close()
		a.Redis = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
