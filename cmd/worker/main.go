package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"docgen-backend/internal/agent"
	"docgen-backend/internal/assemble"
	"docgen-backend/internal/config"
	"docgen-backend/internal/dispatch"
	"docgen-backend/internal/extract"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/logger"
	"docgen-backend/internal/provider"
	"docgen-backend/internal/telemetry"
)

// Queue-mode consumer: drains the Redis dispatch list and runs agents. Job
// lifecycle records live in this process; the producing API keeps its own.
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
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		zlog.Fatalw("create output dir", "error", err)
	}

	store := jobstore.New(zlog)
	gen, err := provider.ForModel(cfg, zlog, cfg.Model)
	if err != nil {
		zlog.Fatalw("init provider", "error", err)
	}
	extractor := extract.New(zlog)

	tsd, err := agent.NewTSD(store, gen, extractor, assemble.NewBuilder(zlog), cfg.OutputDir, cfg.StaticBase)
	if err != nil {
		zlog.Fatalw("init tsd agent", "error", err)
	}
	registry := agent.NewRegistry(
		agent.NewABAP(store, gen, extractor),
		tsd,
	)

	queue := dispatch.NewQueue(cfg, store, registry, zlog)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			zlog.Warnw("metrics server stopped", "error", err)
		}
	}()

	zlog.Infow("worker started", "dispatch_key", cfg.DispatchKey, "model", cfg.Model)
	if err := queue.Run(ctx); err != nil && err != context.Canceled {
		zlog.Warnw("worker stopped", "error", err)
	}
}
