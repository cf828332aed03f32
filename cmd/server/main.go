/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the wage engine HTTP server. Builds every backend
  client once from configuration and injects it, then serves until
  signalled.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Open the primary snapshot backend (sqlite, postgres or none)
  3. Open the blob fallback backend (fs, dynamodb or memory)
  4. Open the source database (labor records, workers, rates)
  5. Build the engine, HTTP handler and router
  6. Start the issuance scheduler if enabled
  7. Serve with graceful shutdown

DEGRADED MODE:
  PRIMARY_BACKEND=none, or a sqlite file opened with SQLITE_MIGRATE=false
  before its schema exists, runs with every snapshot write going to the
  blob tier.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connections

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/api"
	"github.com/warp/wage-engine/config"
	"github.com/warp/wage-engine/factory"
	"github.com/warp/wage-engine/metrics"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
	"github.com/warp/wage-engine/store/blobfs"
	"github.com/warp/wage-engine/store/dynamo"
	"github.com/warp/wage-engine/store/gormdb"
	"github.com/warp/wage-engine/store/postgres"
	"github.com/warp/wage-engine/store/sqlite"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx := context.Background()
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	// Primary tier
	primary, primaryDB, closePrimary, err := openPrimary(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open primary snapshot backend")
	}
	if closePrimary != nil {
		closers = append(closers, closePrimary)
	}
	metrics.Init(primaryDB, logger)

	// Fallback tier
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open blob backend")
	}
	var primaryTier snapshot.Storage
	if primary != nil {
		primaryTier = snapshot.NewPrimaryStorage(primary, logger)
	}
	snapshots := snapshot.NewStore(primaryTier, snapshot.NewBlobStorage(blobs, logger), logger)

	// Sources
	sourcesDB, err := gormdb.OpenSQLite(cfg.SourcesDBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open sources database")
	}
	sources, err := gormdb.NewSources(sourcesDB, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize sources")
	}

	engineCfg := cfg.EngineConfig(logger)
	var rates payroll.RateTableSource = sources.Rates
	if cfg.RatesFile != "" {
		tables, overtime, err := factory.NewRateTableFactory().LoadFile(cfg.RatesFile)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load rates file")
		}
		rates = tables
		if overtime != nil {
			engineCfg.Overtime = *overtime
		}
		logger.WithField("file", cfg.RatesFile).Info("Using rate tables from file")
	}

	engine, err := payroll.NewEngine(sources.Records, sources.Workers, rates, snapshots, engineCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build engine")
	}

	handler := api.NewHandler(engine, sources, logger)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	scheduler := api.NewIssuanceScheduler(engine, sources.Workers, logger)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":    cfg.HTTPPort,
			"primary": cfg.PrimaryBackend,
			"blob":    cfg.BlobBackend,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server stopped")
}

func openPrimary(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (snapshot.PrimaryBackend, *sql.DB, func() error, error) {
	switch cfg.PrimaryBackend {
	case config.PrimarySQLite:
		open := sqlite.Open
		if cfg.SQLiteMigrate {
			open = sqlite.New
		}
		store, err := open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store.DB(), store.Close, nil

	case config.PrimaryPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			logger.WithError(err).Warn("Postgres migration failed; snapshots may fall back to the blob tier")
		}
		return store, store.DB(), store.Close, nil

	case config.PrimaryNone:
		logger.Warn("No primary snapshot backend; all snapshots go to the blob tier")
		return nil, nil, nil, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown primary backend %q", cfg.PrimaryBackend)
}

func openBlobs(ctx context.Context, cfg *config.Config) (snapshot.BlobBackend, error) {
	switch cfg.BlobBackend {
	case config.BlobFS:
		return blobfs.New(cfg.BlobDir)

	case config.BlobDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.ClientConfig{
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.DynamoDBEndpoint,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			return nil, err
		}
		if cfg.DynamoDBEndpoint != "" {
			if err := dynamo.EnsureTable(ctx, client, cfg.DynamoDBTable); err != nil {
				return nil, fmt.Errorf("ensure dynamodb table: %w", err)
			}
		}
		return dynamo.New(client, cfg.DynamoDBTable), nil

	case config.BlobMemory:
		return snapshot.NewMemoryBlob(), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
}
