package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"careerpilot/internal/archive"
	"careerpilot/internal/config"
	"careerpilot/internal/logging"
	"careerpilot/internal/models"
	"careerpilot/internal/plans"
	"careerpilot/internal/prompts"
	"careerpilot/internal/providers"
	"careerpilot/internal/queue"
	"careerpilot/internal/quota"
	"careerpilot/internal/resolver"
	"careerpilot/internal/router"
	"careerpilot/internal/runner"
	"careerpilot/internal/storage"
)

// RunExecutor drives feature invocations. *runner.Runner satisfies it.
type RunExecutor interface {
	Execute(ctx context.Context, in runner.Input) (*runner.Result, error)
	ExecuteStream(ctx context.Context, in runner.Input, onFragment func(string) error) (*runner.Result, error)
}

// UsageReader reports quota consumption. *quota.Ledger satisfies it.
type UsageReader interface {
	Usage(ctx context.Context, userID int64, feature string) (quota.Decision, error)
}

// RunReader serves run history. *storage.RunRepository satisfies it.
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Run, error)
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Runner   RunExecutor
	Usage    UsageReader
	Runs     RunReader
	Plans    quota.PlanResolver
	DB       *storage.DB
	Redis    *redis.Client
	Provider providers.Provider

	ArchiveQueue  queue.Queue
	ArchiveWorker *archive.Worker
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	logger := logging.NewLogger("httpapi")

	db, err := storage.NewDB(storage.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		PlanCacheSize:   cfg.Cache.PlanCacheSize,
		PlanCacheTTL:    cfg.Cache.PlanCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Redis backs the quota ledger, the memory cache and optionally the
	// archive queue. When none of those need it, a dead Redis only costs
	// the memory cache.
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient, err = storage.NewRedisClient(storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			if cfg.Quota.Backend == "redis" || cfg.Archive.QueueBackend == "redis" {
				return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
			}
			logger.Warn("Redis unavailable, continuing without memory cache", "error", err)
			redisClient = nil
		}
	}

	var counterStore quota.CounterStore
	switch cfg.Quota.Backend {
	case "memory":
		counterStore = quota.NewMemoryStore()
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("quota backend %q requires REDIS_ADDRESS", cfg.Quota.Backend)
		}
		counterStore = quota.NewRedisStore(redisClient, cfg.Quota.CounterTTL)
	case "postgres":
		counterStore = quota.NewPostgresStore(db.Conn())
	default:
		return nil, nil, fmt.Errorf("unknown quota backend %q", cfg.Quota.Backend)
	}

	planLookup := plans.NewLookup(storage.NewSubscriptionRepository(db), db.PlanCache())
	ledger := quota.NewLedger(counterStore, planLookup)

	var memoryCache resolver.MemoryCache
	if redisClient != nil {
		memoryCache = storage.NewMemoryStore(redisClient, cfg.Cache.MemoryEntryTTL)
	}
	contextResolver := resolver.New(storage.NewContextRepository(db), memoryCache)

	promptStore, err := prompts.NewStore(prompts.DefaultTemplates())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	modelRouter, err := router.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build model router: %w", err)
	}

	provider, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
		APIKey:  cfg.Provider.OpenAIAPIKey,
		BaseURL: cfg.Provider.OpenAIBaseURL,
		Timeout: cfg.Provider.RequestTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize provider: %w", err)
	}

	runRepo := storage.NewRunRepository(db)

	var archiveQueue queue.Queue
	var archiveWorker *archive.Worker
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		queueCfg := queue.DefaultConfig("run-archive")
		queueCfg.BufferSize = cfg.Archive.BufferSize

		if cfg.Archive.QueueBackend == "redis" {
			archiveQueue = queue.NewRedisQueueWithClient(redisClient, queueCfg.Name)
		} else {
			archiveQueue = queue.NewMemoryQueue(queueCfg)
		}

		writer, err := archive.NewS3Writer(context.Background(),
			cfg.Archive.S3Bucket, cfg.Archive.S3Region, cfg.Archive.S3Prefix, cfg.Archive.PodName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize archive writer: %w", err)
		}

		archiveWorker = archive.NewWorker(archiveQueue, queue.NewMemoryDeadLetterQueue(), writer, archive.WorkerConfig{
			FlushSize:     cfg.Archive.FlushSize,
			FlushInterval: cfg.Archive.FlushInterval,
			MaxRetries:    queueCfg.MaxRetries,
			RetryBackoff:  queueCfg.RetryBackoff,
		})
		archiveWorker.Start(context.Background())
	}

	runnerCfg := runner.Config{
		Resolver:    contextResolver,
		Prompts:     promptStore,
		Quota:       ledger,
		Plans:       planLookup,
		Router:      modelRouter,
		Provider:    provider,
		Runs:        runRepo,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
	}
	if archiveWorker != nil {
		runnerCfg.Archiver = archiveWorker
	}

	deps := &Dependencies{
		Runner:        runner.New(runnerCfg),
		Usage:         ledger,
		Runs:          runRepo,
		Plans:         planLookup,
		DB:            db,
		Redis:         redisClient,
		Provider:      provider,
		ArchiveQueue:  archiveQueue,
		ArchiveWorker: archiveWorker,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps)

	return mux, deps, nil
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("/v1/ai/", deps.handleAI)
	mux.HandleFunc("/v1/usage", deps.handleUsage)
	mux.HandleFunc("/v1/runs", deps.handleRuns)
	mux.HandleFunc("/v1/runs/", deps.handleRuns)
	mux.HandleFunc("/healthz", deps.handleHealth)
}

// Shutdown releases every resource the router wired up. Closing the archive
// queue first unblocks the worker so it can drain before stopping.
func (d *Dependencies) Shutdown(ctx context.Context) {
	if d.ArchiveQueue != nil {
		_ = d.ArchiveQueue.Close()
	}
	if d.ArchiveWorker != nil {
		d.ArchiveWorker.Stop()
	}
	if d.Provider != nil {
		_ = d.Provider.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
