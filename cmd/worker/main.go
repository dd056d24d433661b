// Package main is the entry point for the audience background worker.
// It keeps segment sizes and membership snapshots fresh for every active tenant.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audience/internal/config"
	"audience/internal/core/tenant"
	"audience/internal/domain/profile"
	"audience/internal/domain/segment"
	"audience/internal/infrastructure/metrics"
	"audience/internal/infrastructure/storage/postgres"
	"audience/internal/infrastructure/storage/postgres/profile_repo"
	"audience/internal/infrastructure/storage/postgres/segment_repo"
	"audience/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("AUDIENCE_CONFIG_DIR"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("invalid config:\n%v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting audience multi-tenant worker")

	metaPool, err := postgres.NewPool(ctx, cfg.MetaDatabase)
	if err != nil {
		log.Fatalw("failed to connect to meta database", "error", err)
	}
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)
	managerCfg := cfg.Tenants
	managerCfg.PoolIdleTimeout = 10 * time.Minute // shorter for worker
	manager := tenant.NewManager(managerCfg, registry, log)
	defer manager.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	metrics.RegisterPoolStats(reg, manager)

	snapshots, err := postgres.NewSnapshotStore(cfg.Segments.SnapshotCompressThreshold)
	if err != nil {
		log.Fatalw("failed to create snapshot store", "error", err)
	}
	defer snapshots.Close()

	profiles := profile.NewService(profile.ServiceConfig{
		Repo:     profile_repo.New(cfg.Import.BatchSize),
		Observer: m,
	})
	segments := segment.NewService(segment.ServiceConfig{
		Repo:      segment_repo.New(),
		Snapshots: snapshots,
		Profiles:  profiles,
	})

	worker := NewMultiTenantWorker(manager, PoolBinder(manager), segments, m, WorkerConfig{
		SegmentRefreshInterval: cfg.Worker.SegmentRefreshInterval,
		TenantRefreshInterval:  cfg.Worker.TenantRefreshInterval,
		RefreshTimeout:         cfg.Worker.RefreshTimeout,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics endpoint failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	_ = metricsServer.Shutdown(shutdownCtx)

	wg.Wait()
	log.Info("worker stopped")
}
