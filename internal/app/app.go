package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/tenx-cards/internal/ai"
	"github.com/suPer8Hu/tenx-cards/internal/config"
	"github.com/suPer8Hu/tenx-cards/internal/db"
	"github.com/suPer8Hu/tenx-cards/internal/deck"
	"github.com/suPer8Hu/tenx-cards/internal/generation"
	"github.com/suPer8Hu/tenx-cards/internal/logger"
	"github.com/suPer8Hu/tenx-cards/internal/metrics"
	"github.com/suPer8Hu/tenx-cards/internal/store/redisstore"
	"gorm.io/gorm"
)

// App holds the services shared by the API server and the queue worker.
// The generation service has no dispatcher yet; callers set one.
type App struct {
	Cfg         config.Config
	Log         *logger.Logger
	DB          *gorm.DB
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Decks       *deck.Service
	Generations *generation.Service

	redis *goredis.Client
}

func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &App{Cfg: cfg, Log: log, DB: gdb, Registry: reg, Metrics: m}

	var cache generation.SessionCache
	if cfg.RedisEnabled {
		rdb, err := redisstore.NewClient(ctx, redisstore.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			// the cache is optional; run without it
			log.Warn("redis unavailable, session cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			a.redis = rdb
			cache = redisstore.NewSessionCache(rdb, cfg.SessionCacheTTL)
		}
	}

	gen, model, err := NewGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("card generator ready", "provider", cfg.AIProvider, "model", model, "mock", cfg.UseMockData)

	a.Decks = deck.NewService(deck.NewRepo(gdb))
	a.Generations = generation.NewService(generation.Deps{
		Store:     generation.NewRepo(gdb),
		Decks:     a.Decks,
		Generator: gen,
		Cache:     cache,
		Metrics:   m,
		Log:       log,
	}, generation.Settings{
		Model:       model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.GenerationTimeout,
	})
	return a, nil
}

// NewGenerator picks the mock generator or a provider from the registry.
func NewGenerator(ctx context.Context, cfg config.Config) (generation.CardGenerator, string, error) {
	if cfg.UseMockData {
		return generation.MockGenerator{}, "mock", nil
	}

	reg := ai.NewRegistry()
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY is required for AI_PROVIDER=openrouter")
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	model := cfg.OpenRouterModel
	if strings.EqualFold(cfg.AIProvider, "ollama") {
		model = cfg.OllamaModel
	}
	p, err := reg.Get(ctx, cfg.AIProvider, model)
	if err != nil {
		return nil, "", err
	}
	return generation.NewAIGenerator(p, cfg.Temperature, cfg.MaxTokens), model, nil
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
