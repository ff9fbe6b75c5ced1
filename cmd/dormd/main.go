package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dorm-open-data-backend/config"
	"dorm-open-data-backend/internal/api"
	"dorm-open-data-backend/internal/db"
	"dorm-open-data-backend/internal/events"
	"dorm-open-data-backend/internal/importer"
	"dorm-open-data-backend/internal/logger"
	"dorm-open-data-backend/internal/metrics"
	"dorm-open-data-backend/internal/mw"
	"dorm-open-data-backend/internal/notification"
	"dorm-open-data-backend/internal/opendata"
	"dorm-open-data-backend/internal/store"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	zl, err := logger.New(cfg.Log, cfg.Server.Env, "dorm-open-data")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zl.Info("configuration loaded", zap.String("path", configPath))

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	zl.Info("database initialized", zap.String("driver", cfg.Database.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	openData := opendata.NewService(appStore, opendata.Options{
		DefaultLimit:    cfg.OpenData.DefaultLimit,
		MaxLimit:        cfg.OpenData.MaxLimit,
		TopN:            cfg.OpenData.TopN,
		MaxCompare:      cfg.OpenData.MaxCompare,
		TrendTolerance:  cfg.OpenData.TrendTolerancePercent,
		CycleStartMonth: time.Month(cfg.OpenData.CycleStartMonth),
	}, zl)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Prefix)
	}

	cacheStore, err := newCacheStore(ctx, cfg.Cache)
	if err != nil {
		zl.Fatal("failed to initialize response cache", zap.Error(err))
	}

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	go limiter.RunJanitor(ctx, time.Minute, 10*time.Minute)

	var webpushOptions *webpush.Options
	var dispatcher notification.Dispatcher
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, zl, m)
		pool.Start(ctx)
		dispatcher = pool
	} else {
		zl.Warn("VAPID keys are not configured, vacancy notifications are disabled")
	}

	importSvc := importer.NewService(cfg.Importer, appStore, zl, m)
	go importSvc.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Store:      appStore,
		OpenData:   openData,
		WebPush:    webpushOptions,
		Dispatcher: dispatcher,
		Events:     events.New(cfg.Events, zl),
		Cache:      cacheStore,
		Payments:   cfg.Payments,
		Metrics:    m,
		Logger:     zl,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		Logger:      zl,
		Metrics:     m,
		RateLimiter: limiter,
		IPHeader:    cfg.Server.RequestIPHeader,
		Cache:       cacheStore,
		CacheTTL:    cfg.Cache.TTL,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		zl.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	zl.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Fatal("HTTP server Shutdown", zap.Error(err))
	}

	zl.Info("server gracefully stopped")
}

// newCacheStore builds the configured response cache. A nil store disables caching.
func newCacheStore(ctx context.Context, cfg config.CacheConfig) (mw.CacheStore, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "redis":
		client, err := mw.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return mw.NewRedisCache(client, cfg.KeyPrefix), nil
	case "memory":
		return mw.NewMemoryCache(cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
