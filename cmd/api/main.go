package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"docgen-backend/internal/agent"
	"docgen-backend/internal/api"
	"docgen-backend/internal/assemble"
	"docgen-backend/internal/config"
	"docgen-backend/internal/dispatch"
	"docgen-backend/internal/extract"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/logger"
	"docgen-backend/internal/progress"
	"docgen-backend/internal/provider"
	"docgen-backend/internal/ratelimit"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		zlog.Fatalw("create output dir", "error", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		zlog.Fatalw("create upload dir", "error", err)
	}

	store := jobstore.New(zlog)
	gen, err := provider.ForModel(cfg, zlog, cfg.Model)
	if err != nil {
		zlog.Fatalw("init provider", "error", err)
	}
	extractor := extract.New(zlog)
	builder := assemble.NewBuilder(zlog)

	tsd, err := agent.NewTSD(store, gen, extractor, builder, cfg.OutputDir, cfg.StaticBase)
	if err != nil {
		zlog.Fatalw("init tsd agent", "error", err)
	}
	registry := agent.NewRegistry(
		agent.NewABAP(store, gen, extractor),
		tsd,
	)

	var dispatcher dispatch.Dispatcher
	var limiter *ratelimit.Limiter
	switch cfg.DispatchMode {
	case config.DispatchQueue:
		// Queue mode: this process only produces; cmd/worker consumes.
		dispatcher = dispatch.NewQueue(cfg, store, registry, zlog)
		limiterClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = ratelimit.NewLimiter(limiterClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	default:
		pool := dispatch.NewPool(store, registry, cfg.PoolWorkers, cfg.PoolQueueDepth, zlog)
		pool.Start(ctx)
		defer pool.Shutdown()
		dispatcher = pool
	}

	watcher := progress.New(store, cfg.StreamInterval)
	server := api.New(cfg, store, registry, dispatcher, watcher, limiter, zlog)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	zlog.Infow("api listening", "port", cfg.HTTPPort, "dispatch_mode", cfg.DispatchMode)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatalw("listen", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
