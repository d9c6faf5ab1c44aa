package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/docintel-api/internal/blob"
	"github.com/phrazzld/docintel-api/internal/cache"
	"github.com/phrazzld/docintel-api/internal/config"
	"github.com/phrazzld/docintel-api/internal/pipeline"
	"github.com/phrazzld/docintel-api/internal/platform/metrics"
	"github.com/phrazzld/docintel-api/internal/platform/postgres"
	"github.com/phrazzld/docintel-api/internal/platform/tracing"
	"github.com/phrazzld/docintel-api/internal/ratelimit"
	"github.com/phrazzld/docintel-api/internal/service"
	"github.com/phrazzld/docintel-api/internal/service/auth"
	"github.com/phrazzld/docintel-api/internal/store"
	"github.com/phrazzld/docintel-api/internal/task"
)

// Process roles.
const (
	roleAPI    = "api"
	roleWorker = "worker"
	roleAll    = "all"
)

// application holds the shared dependencies of the process and releases them
// on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	metrics         *metrics.Metrics
	shutdownTracing tracing.Shutdown

	documentStore store.DocumentStore
	taskStore     store.TaskRecordStore
	apiKeyStore   store.APIKeyStore
	blobs         blob.Store
	cache         *cache.Cache
	queue         task.Queue

	jwtService      auth.JWTService
	apiKeys         *auth.APIKeyAuthenticator
	limiter         *ratelimit.Limiter
	processor       *pipeline.Processor
	documentService *service.DocumentService
	runner          *task.Runner
}

// newApplication wires every component for cfg on top of an open database.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	if cfg.Pipeline.QueueBackend == "memory" && cfg.Server.Role != roleAll {
		app.cleanup()
		return nil, fmt.Errorf("role %q requires the redis queue backend", cfg.Server.Role)
	}

	var err error
	app.shutdownTracing, err = tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		app.cleanup()
		return nil, err
	}

	if err := pipeline.ConfigurePDFLicense(cfg.PDF.LicenseKey); err != nil {
		app.cleanup()
		return nil, err
	}

	app.documentStore = postgres.NewPostgresDocumentStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskRecordStore(db, logger)
	app.apiKeyStore = postgres.NewPostgresAPIKeyStore(db, logger)

	if err := app.setupBackends(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupServices(); err != nil {
		app.cleanup()
		return nil, err
	}

	logger.Info("Application initialized successfully", "role", cfg.Server.Role)
	return app, nil
}

// setupBackends connects Redis when enabled and builds the cache, the job
// queue and the blob store.
func (app *application) setupBackends(ctx context.Context) error {
	cfg := app.config

	var backend cache.Backend = cache.NewMemoryBackend()
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		app.redis = client
		backend = cache.NewRedisBackend(client)
		app.logger.Info("Redis connection established")
	}
	app.cache = cache.New(backend,
		cache.WithLogger(app.logger),
		cache.WithDefaultTTL(time.Duration(cfg.Cache.DefaultTTLSeconds)*time.Second),
		cache.WithHitRecorder(app.metrics.ObserveCacheLookup))

	switch cfg.Pipeline.QueueBackend {
	case "redis":
		if app.redis == nil {
			return errors.New("the redis queue backend requires redis.enabled")
		}
		app.queue = task.NewRedisQueue(app.redis, task.DefaultRedisQueueName, app.logger)
	default:
		app.queue = task.NewMemoryQueue(cfg.Pipeline.QueueSize, app.logger)
	}

	var err error
	switch cfg.Storage.Backend {
	case "gcs":
		app.blobs, err = blob.NewGCSStore(ctx, cfg.Storage.GCSBucket, cfg.Storage.PublicBaseURL, app.logger)
	default:
		app.blobs, err = blob.NewLocalStore(cfg.Storage.LocalRoot, cfg.Storage.PublicBaseURL, app.logger)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	return nil
}

// setupServices builds authentication, rate limiting, the processing
// pipeline, the document service and the worker runner from the stores and
// backends already on app.
func (app *application) setupServices() error {
	cfg := app.config

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.apiKeys = auth.NewAPIKeyAuthenticator(app.apiKeyStore, auth.BcryptVerifier{}, app.logger)

	app.limiter = ratelimit.NewLimiter(app.cache, ratelimit.TiersFromConfig(cfg.RateLimit), app.logger)
	app.limiter.OnReject(app.metrics.ObserveRateLimitRejection)

	app.processor, err = pipeline.NewProcessor(pipeline.Deps{
		Documents: app.documentStore,
		Tasks:     app.taskStore,
		Blobs:     app.blobs,
		Queue:     app.queue,
		Metrics:   app.metrics,
		Invalidate: func(ctx context.Context, tenantID uuid.UUID) {
			app.documentService.InvalidateTenant(ctx, tenantID)
		},
	}, pipeline.Config{
		MaxRetries:     cfg.Pipeline.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.Pipeline.RetryBaseDelaySeconds) * time.Second,
		TextLimit:      cfg.Pipeline.TextLimit,
		StuckThreshold: time.Duration(cfg.Pipeline.StuckThresholdMinutes) * time.Minute,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create document pipeline: %w", err)
	}

	svcConfig := service.DefaultConfig()
	svcConfig.MaxUploadBytes = cfg.Upload.MaxSizeBytes
	svcConfig.AllowedExtensions = cfg.Upload.AllowedExtensions
	if cfg.Cache.ListTTLSeconds > 0 {
		svcConfig.ListTTL = time.Duration(cfg.Cache.ListTTLSeconds) * time.Second
	}
	app.documentService, err = service.NewDocumentService(service.Deps{
		Documents: app.documentStore,
		Tasks:     app.taskStore,
		Blobs:     app.blobs,
		Pipeline:  app.processor,
		Cache:     app.cache,
		OnUpload:  app.metrics.ObserveUpload,
	}, svcConfig, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create document service: %w", err)
	}

	app.runner = task.NewRunner(app.queue, task.RunnerConfig{
		WorkerCount:     cfg.Pipeline.WorkerCount,
		HardTimeout:     time.Duration(cfg.Pipeline.HardTimeoutSeconds) * time.Second,
		SoftTimeout:     time.Duration(cfg.Pipeline.SoftTimeoutSeconds) * time.Second,
		PromoteInterval: time.Second,
	}, app.logger)
	app.runner.Handle(pipeline.JobName, app.processor.Handle)
	app.runner.Every(pipeline.SweepJobName,
		time.Duration(cfg.Pipeline.SweepIntervalMinutes)*time.Minute,
		func(ctx context.Context) error {
			_, err := app.processor.Sweep(ctx)
			return err
		})
	app.runner.Observe(app.metrics.ObserveJob)
	return nil
}

// runsAPI reports whether this process serves the document API.
func (app *application) runsAPI() bool {
	return app.config.Server.Role != roleWorker
}

// runsWorkers reports whether this process consumes the job queue.
func (app *application) runsWorkers() bool {
	return app.config.Server.Role != roleAPI
}

// Run starts the workers and the HTTP server for the configured role and
// blocks until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	if app.runsWorkers() {
		if err := app.runner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start task runner: %w", err)
		}
	}

	router := app.setupOpsRouter()
	if app.runsAPI() {
		router = app.setupRouter()
	}
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases resources in reverse order of acquisition. It is safe to
// call on a partially initialized application.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}
	if closer, ok := app.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			app.logger.Error("Error closing job queue", "error", err)
		}
	}
	if closer, ok := app.blobs.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			app.logger.Error("Error closing blob store", "error", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
	}
	if app.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.shutdownTracing(ctx); err != nil {
			app.logger.Error("Error flushing traces", "error", err)
		}
		cancel()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
}
