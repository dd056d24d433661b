package main

import (
	"context"
	"sync"
	"time"

	"audience/internal/core/tenant"
	"audience/internal/domain/segment"
	"audience/internal/infrastructure/storage/postgres"
	"audience/pkg/logger"
)

// TenantSource lists the workspaces the worker should serve.
type TenantSource interface {
	ActiveTenants(ctx context.Context) ([]*tenant.Tenant, error)
}

// TenantBinder attaches the tenant database to ctx. release must be called
// once the returned context is no longer used.
type TenantBinder func(ctx context.Context, t *tenant.Tenant) (bound context.Context, release func(), err error)

// Refresher re-evaluates every segment of the tenant bound to ctx.
type Refresher interface {
	RefreshAll(ctx context.Context) (segment.RefreshSummary, error)
}

// RefreshObserver records refresh runs. *metrics.Metrics implements it.
type RefreshObserver interface {
	ObserveRefresh(elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRefresh(time.Duration, error) {}

// WorkerConfig controls scheduling.
type WorkerConfig struct {
	// SegmentRefreshInterval applies to tenants without their own override.
	SegmentRefreshInterval time.Duration
	// TenantRefreshInterval is how often the active tenant set is reloaded.
	TenantRefreshInterval time.Duration
	// RefreshTimeout bounds one RefreshAll run.
	RefreshTimeout time.Duration
}

// MultiTenantWorker refreshes segment sizes for all active tenants.
type MultiTenantWorker struct {
	tenants   TenantSource
	bind      TenantBinder
	refresher Refresher
	observer  RefreshObserver
	cfg       WorkerConfig
	log       *logger.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc // tenant_id -> cancel
	wg      sync.WaitGroup
}

func NewMultiTenantWorker(
	tenants TenantSource,
	bind TenantBinder,
	refresher Refresher,
	observer RefreshObserver,
	cfg WorkerConfig,
	log *logger.Logger,
) *MultiTenantWorker {
	if observer == nil {
		observer = nopObserver{}
	}
	if cfg.TenantRefreshInterval <= 0 {
		cfg.TenantRefreshInterval = 5 * time.Minute
	}
	if cfg.SegmentRefreshInterval <= 0 {
		cfg.SegmentRefreshInterval = 15 * time.Minute
	}
	return &MultiTenantWorker{
		tenants:   tenants,
		bind:      bind,
		refresher: refresher,
		observer:  observer,
		cfg:       cfg,
		log:       log.WithComponent("worker"),
		running:   make(map[string]context.CancelFunc),
	}
}

// PoolBinder binds tenants through the connection pool manager, the same way
// the HTTP tenant middleware does for requests.
func PoolBinder(pools interface {
	GetPool(ctx context.Context, tenantID string) (*tenant.ManagedPool, error)
}) TenantBinder {
	return func(ctx context.Context, t *tenant.Tenant) (context.Context, func(), error) {
		mp, err := pools.GetPool(ctx, t.ID)
		if err != nil {
			return nil, nil, err
		}
		mp.AcquireRef()

		ctx = tenant.WithPool(ctx, mp.Pool())
		ctx = tenant.WithTxManager(ctx, postgres.NewTxManager(mp.Pool()))
		ctx = tenant.WithTenant(ctx, mp.Tenant())
		return ctx, mp.ReleaseRef, nil
	}
}

// Run starts one loop per active tenant and blocks until ctx is cancelled.
func (w *MultiTenantWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.TenantRefreshInterval)
	defer ticker.Stop()

	w.syncTenants(ctx)

	for {
		select {
		case <-ctx.Done():
			w.stopAll()
			return
		case <-ticker.C:
			w.syncTenants(ctx)
		}
	}
}

// syncTenants starts loops for new tenants and stops loops of tenants that
// are no longer active.
func (w *MultiTenantWorker) syncTenants(ctx context.Context) {
	tenants, err := w.tenants.ActiveTenants(ctx)
	if err != nil {
		w.log.Errorw("failed to get active tenants", "error", err)
		return
	}

	active := make(map[string]*tenant.Tenant, len(tenants))
	for _, t := range tenants {
		active[t.ID] = t
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for tenantID, cancel := range w.running {
		if _, ok := active[tenantID]; !ok {
			cancel()
			delete(w.running, tenantID)
			w.log.Infow("stopped worker for inactive tenant", "tenant_id", tenantID)
		}
	}

	for _, t := range tenants {
		if _, ok := w.running[t.ID]; ok {
			continue
		}
		tenantCtx, cancel := context.WithCancel(ctx)
		w.running[t.ID] = cancel

		w.wg.Add(1)
		go func(t *tenant.Tenant) {
			defer w.wg.Done()
			w.runTenant(tenantCtx, t)
		}(t)

		w.log.Infow("started worker for tenant", "tenant_id", t.ID, "slug", t.Slug)
	}
}

func (w *MultiTenantWorker) stopAll() {
	w.mu.Lock()
	for tenantID, cancel := range w.running {
		cancel()
		delete(w.running, tenantID)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// runningTenants reports how many tenant loops are alive.
func (w *MultiTenantWorker) runningTenants() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.running)
}

func (w *MultiTenantWorker) runTenant(ctx context.Context, t *tenant.Tenant) {
	interval := t.RefreshInterval(w.cfg.SegmentRefreshInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.refresh(ctx, t)
	for {
		select {
		case <-ctx.Done():
			w.log.Infow("stopping worker for tenant", "tenant_id", t.ID)
			return
		case <-ticker.C:
			w.refresh(ctx, t)
		}
	}
}

func (w *MultiTenantWorker) refresh(ctx context.Context, t *tenant.Tenant) {
	if w.cfg.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RefreshTimeout)
		defer cancel()
	}

	bound, release, err := w.bind(ctx, t)
	if err != nil {
		w.log.Errorw("failed to get pool for tenant", "tenant_id", t.ID, "error", err)
		return
	}
	defer release()

	log := w.log.With("tenant_id", t.ID)
	bound = logger.WithLogger(bound, log)

	start := time.Now()
	sum, err := w.refresher.RefreshAll(bound)
	w.observer.ObserveRefresh(time.Since(start), err)
	if err != nil {
		log.Warnw("segment refresh finished with errors",
			"segments", sum.Segments, "failed", sum.Failed, "error", err)
		return
	}
	log.Debugw("segments refreshed",
		"segments", sum.Segments, "profiles", sum.Profiles, "elapsed", sum.Elapsed)
}
