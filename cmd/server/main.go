// Package main is the entry point for the audience API server.
// Multi-tenant architecture: Database-per-Tenant.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"audience/internal/config"
	"audience/internal/core/tenant"
	"audience/internal/domain"
	"audience/internal/domain/auth"
	"audience/internal/domain/importer"
	"audience/internal/domain/profile"
	"audience/internal/domain/segment"
	"audience/internal/infrastructure/cache"
	v1 "audience/internal/infrastructure/http/v1"
	"audience/internal/infrastructure/metrics"
	"audience/internal/infrastructure/storage/postgres"
	"audience/internal/infrastructure/storage/postgres/profile_repo"
	"audience/internal/infrastructure/storage/postgres/segment_repo"
	"audience/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const serviceName = "audience-api"

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

	if err := run(cfg, log); err != nil {
		log.Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting audience server", "version", version, "env", cfg.Server.Env)

	// --- Meta-database connection ---
	metaPool, err := postgres.NewPool(ctx, cfg.MetaDatabase)
	if err != nil {
		return fmt.Errorf("connect meta database: %w", err)
	}
	defer metaPool.Close()
	log.Info("meta database connection established")

	// --- Tenant Registry and Manager ---
	registry := tenant.NewPostgresRegistry(metaPool)
	tenantManager := tenant.NewManager(cfg.Tenants, registry, log)
	defer tenantManager.Close()

	log.Infow("tenant manager initialized",
		"max_pools", cfg.Tenants.MaxTotalPools,
		"max_conns_per_tenant", cfg.Tenants.MaxConnsPerTenant,
		"idle_timeout", cfg.Tenants.PoolIdleTimeout,
	)

	if cfg.Server.PrewarmPools {
		log.Info("prewarming tenant pools...")
		if err := tenantManager.PrewarmPools(ctx); err != nil {
			log.Warnw("failed to prewarm some pools", "error", err)
		}
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	metrics.RegisterPoolStats(reg, tenantManager)

	// --- Caches and stores ---
	fieldKeys := cache.NewFieldKeys(cfg.Segments.FieldKeyTTL)
	fieldKeys.Start(ctx)
	defer fieldKeys.Stop()

	snapshots, err := postgres.NewSnapshotStore(cfg.Segments.SnapshotCompressThreshold)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	defer snapshots.Close()

	// --- Domain services ---
	// TxManager is left nil everywhere: the tenant middleware puts it in the context.
	profiles := profile.NewService(profile.ServiceConfig{
		Repo:     profile_repo.New(cfg.Import.BatchSize),
		KeyCache: fieldKeys,
		Observer: m,
	})
	segments := segment.NewService(segment.ServiceConfig{
		Repo:      segment_repo.New(),
		Snapshots: snapshots,
		Profiles:  profiles,
	})
	imports := importer.NewService(importer.ServiceConfig{
		Profiles: profiles,
		Segments: segments,
		MaxRows:  cfg.Import.MaxRows,
	})
	imports.Hooks().On(domain.AfterImport, m.ImportHook)

	// --- Router ---
	router, err := v1.NewRouter(v1.RouterConfig{
		ServiceName:       serviceName,
		Version:           version,
		Pools:             tenantManager,
		Stats:             tenantManager,
		MetaDB:            metaPool,
		Logger:            log,
		JWTValidator:      auth.NewValidator(auth.JWTConfig{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer}),
		Metrics:           m,
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Profiles:          profiles,
		Segments:          segments,
		Importer:          imports,
		MaxImportFileSize: cfg.Import.MaxFileSize,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Tenant-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Export-Count", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
		Debug:            cfg.Server.IsDevelopment() && cfg.Log.Level == "debug",
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler.Handler(router),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", server.Addr, "mode", "multi-tenant")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// --- Graceful shutdown ---
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
