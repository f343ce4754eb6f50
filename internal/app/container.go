package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/config"
	"github.com/kapu/phantom-panel/internal/constants"
	"github.com/kapu/phantom-panel/internal/progress"
	"github.com/kapu/phantom-panel/internal/prompt"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/service/brief"
	"github.com/kapu/phantom-panel/internal/service/cache"
	"github.com/kapu/phantom-panel/internal/service/conversation"
	"github.com/kapu/phantom-panel/internal/service/database"
	"github.com/kapu/phantom-panel/internal/service/moderation"
	"github.com/kapu/phantom-panel/internal/service/persona"
	"github.com/kapu/phantom-panel/internal/service/retrieval"
	"github.com/kapu/phantom-panel/internal/service/runner"
	"github.com/kapu/phantom-panel/internal/service/synthesis"
)

// Container bundles the assembled services a command needs.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Postgres   *database.PostgresService
	Tests      *database.TestRepository
	Catalog    *database.CatalogRepository
	Models     *ai.ModelManager
	Analyzer   *brief.Analyzer
	Archetypes *persona.ArchetypeCache
	Runner     *runner.Runner

	closers []func()
}

// Close releases resources in reverse order of construction.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build assembles infrastructure and the panel pipeline. Redis and the
// progress socket are optional; Postgres and a model provider are not.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// Database
	postgresSvc, err := database.NewPostgresService(cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres service: %w", err)
	}
	c.closers = append(c.closers, func() {
		_ = postgresSvc.Close()
	})
	c.Postgres = postgresSvc
	c.Tests = database.NewTestRepository(postgresSvc, logger)
	c.Catalog = database.NewCatalogRepository(postgresSvc, logger)

	// Archetype cache, optionally backed by Redis
	var cacheOpts []persona.CacheOption
	if cfg.Redis.Enabled {
		cacheSvc, cacheErr := cache.NewCacheService(cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if cacheErr != nil {
			logger.Warn("Redis unavailable, archetype cache stays in-process", zap.Error(cacheErr))
		} else {
			c.closers = append(c.closers, func() {
				_ = cacheSvc.Close()
			})
			cacheOpts = append(cacheOpts, persona.WithTier(persona.NewRedisArchetypeTier(cacheSvc), constants.CacheTTL.ArchetypeRedis))
		}
	}
	c.Archetypes = persona.NewArchetypeCache(cfg.Panel.ArchetypeCacheTTL, logger, cacheOpts...)

	// AI stack
	modelManager, err := ai.NewModelManager(ctx, ai.ModelManagerConfig{
		GeminiAPIKey:       cfg.Gemini.APIKey,
		OpenAIAPIKey:       cfg.OpenAI.APIKey,
		DefaultGeminiModel: cfg.Gemini.Model,
		DefaultOpenAIModel: cfg.OpenAI.Model,
		EnableFallback:     cfg.OpenAI.EnableFallback,
		RequestsPerSecond:  cfg.RateLimit.RequestsPerSecond,
		Burst:              cfg.RateLimit.Burst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model manager: %w", err)
	}
	c.Models = modelManager

	prompts := prompt.DefaultPromptBuilder()
	c.Analyzer = brief.NewAnalyzer(modelManager, prompts, logger)

	builder := persona.NewBuilder(
		c.Catalog,
		c.Catalog,
		c.Archetypes,
		retrieval.NewRetriever(c.Catalog, nil, logger),
		persona.NewIdentityGenerator(nil),
		prompts,
		logger,
	)

	observers := conversation.Observers{conversation.NewLogObserver(logger)}
	if cfg.Progress.WebSocketURL != "" {
		publisher := progress.NewPublisher(cfg.Progress.WebSocketURL, 5, 5*time.Second, logger)
		if pubErr := publisher.Connect(ctx); pubErr != nil {
			logger.Warn("Progress socket unavailable, continuing without it", zap.Error(pubErr))
		} else {
			unsubscribe := publisher.OnStateChange(func(s progress.ConnState) {
				if s == progress.StateFailed {
					logger.Warn("Progress socket gave up reconnecting; events are no longer streamed")
				}
			})
			c.closers = append(c.closers, func() {
				unsubscribe()
				_ = publisher.Close()
			})
			observers = append(observers, publisher)
		}
	}

	orchestrator := conversation.NewOrchestrator(
		c.Analyzer,
		builder,
		synthesis.NewResponseGenerator(modelManager, prompts, logger),
		moderation.NewGenerator(modelManager, prompts, logger),
		observers,
		conversation.Options{
			BatchSize:          cfg.Panel.BatchSize,
			MinViableResponses: cfg.Panel.MinViableResponses,
			MaxFollowUps:       cfg.Panel.MaxFollowUps,
			MemoryLimit:        cfg.Panel.MemoryLimit,
		},
		logger,
	)

	pricing := conversation.DefaultPricing()
	pricing.InputPerMillion = cfg.Pricing.InputPerMillion
	pricing.OutputPerMillion = cfg.Pricing.OutputPerMillion

	c.Runner = runner.NewRunner(
		c.Tests,
		c.Tests,
		orchestrator,
		synthesis.NewAggregator(modelManager, prompts, logger),
		pricing,
		logger,
	)

	logger.Info("Panel services assembled",
		zap.Bool("redis_tier", len(cacheOpts) > 0),
		zap.Int("observers", len(observers)),
		zap.Int("batch_size", cfg.Panel.BatchSize),
	)
	return c, nil
}
