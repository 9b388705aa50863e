package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/link-registry/internal/config"
	"github.com/SergeiKhy/link-registry/internal/geo"
	"github.com/SergeiKhy/link-registry/internal/handler"
	"github.com/SergeiKhy/link-registry/internal/metrics"
	"github.com/SergeiKhy/link-registry/internal/middleware"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := newLogger(cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Хранилище ссылок
	store, db, closeStore, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to init storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer closeStore()

	dependencies := make(map[string]handler.Pinger)
	if db != nil {
		dependencies["postgres"] = db
	}

	// Redis-кэш (опционально)
	cache := repository.NewNoopCache()
	if cfg.Redis.Enabled() {
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		cache = repository.NewCacheRepository(redis)
		dependencies["redis"] = redis
		logger.Info("Connected to Redis")
	}

	// GeoIP (опционально)
	locator := geo.NewNoop()
	if cfg.Analytics.GeoIPDBPath != "" {
		locator, err = geo.Open(cfg.Analytics.GeoIPDBPath)
		if err != nil {
			logger.Fatal("Failed to open GeoIP database", zap.Error(err))
		}
		logger.Info("GeoIP lookup enabled", zap.String("path", cfg.Analytics.GeoIPDBPath))
	}
	defer locator.Close()

	// Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Процессор кликов (Worker Pool)
	clickProcessor := service.NewClickProcessor(store, locator, logger, m, service.ProcessorConfig{
		Workers:    cfg.Analytics.Workers,
		BufferSize: cfg.Analytics.BufferSize,
	})
	clickProcessor.Start()
	defer clickProcessor.Stop()

	// Инициализация сервиса
	linkService := service.NewLinkService(store, cache, clickProcessor, logger,
		service.WithBlockedDomains(cfg.Security.BlockedDomains),
		service.WithCacheTTL(cfg.Redis.CacheTTL),
		service.WithMetrics(m),
	)

	// Инициализация middleware
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	defer stopLimiter()
	rateLimiter := middleware.NewRateLimiter(limiterCtx, middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})

	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.RequireAPIKey(cfg.Auth.APIKeys)
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	} else {
		logger.Warn("API_KEYS is empty, link management endpoints are open")
	}

	// Настройка роутера
	linkHandler := handler.NewLinkHandler(linkService, clickProcessor, handler.HandlerConfig{
		BaseURL:       cfg.App.BaseURL,
		StorageDriver: cfg.Storage.Driver,
		Dependencies:  dependencies,
	}, logger)
	router := handler.NewRouter(linkHandler, rateLimiter, apiKeyMiddleware, m, registry, logger)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("base_url", cfg.App.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newStore выбирает хранилище по STORAGE_DRIVER; для Postgres сначала применяются миграции.
// Для хранилища в памяти db == nil.
func newStore(cfg *config.Config, logger *zap.Logger) (repository.LinkStore, *repository.PostgresDB, func(), error) {
	if cfg.Storage.Driver != config.StoragePostgres {
		logger.Info("Using in-memory storage", zap.Int("history_limit", cfg.Analytics.HistoryLimit))
		return repository.NewMemoryStore(cfg.Analytics.HistoryLimit), nil, func() {}, nil
	}

	if err := repository.Migrate(cfg.DB); err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Database migrations applied")

	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Connected to PostgreSQL")

	return repository.NewPostgresStore(db), db, db.Close, nil
}
