package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"audience/pkg/logger"
)

// ManagerConfig configures pool lifecycle for tenant databases.
type ManagerConfig struct {
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	SSLMode    string `mapstructure:"ssl_mode"`

	MaxConnsPerTenant int32         `mapstructure:"max_conns_per_tenant"`
	MinConnsPerTenant int32         `mapstructure:"min_conns_per_tenant"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`

	MaxTotalPools      int           `mapstructure:"max_total_pools"`     // 0 = unlimited
	PoolIdleTimeout    time.Duration `mapstructure:"pool_idle_timeout"`   // 0 = never evict
	HealthCheckPeriod  time.Duration `mapstructure:"health_check_period"` // 0 = no health loop
	PrewarmConcurrency int           `mapstructure:"prewarm_concurrency"`
}

// DefaultManagerConfig returns production-safe defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SSLMode:            "disable",
		MaxConnsPerTenant:  10,
		MinConnsPerTenant:  1,
		ConnectTimeout:     10 * time.Second,
		MaxTotalPools:      100,
		PoolIdleTimeout:    30 * time.Minute,
		HealthCheckPeriod:  time.Minute,
		PrewarmConcurrency: 8,
	}
}

// ManagedPool wraps a tenant pool with usage tracking.
type ManagedPool struct {
	pool     *pgxpool.Pool
	tenant   *Tenant
	lastUsed atomic.Int64 // unix seconds
	refCount atomic.Int32
	// unix seconds of the first failed ping, 0 while healthy
	unhealthySince atomic.Int64
}

func (mp *ManagedPool) touch() {
	mp.lastUsed.Store(time.Now().Unix())
}

func (mp *ManagedPool) Pool() *pgxpool.Pool { return mp.pool }

func (mp *ManagedPool) Tenant() *Tenant { return mp.tenant }

// AcquireRef marks the pool as used by an in-flight request. Referenced pools are never evicted.
func (mp *ManagedPool) AcquireRef() { mp.refCount.Add(1) }

func (mp *ManagedPool) ReleaseRef() { mp.refCount.Add(-1) }

type poolOpener func(ctx context.Context, t *Tenant) (*pgxpool.Pool, error)

// Manager hands out one connection pool per workspace database. Safe for concurrent use.
type Manager struct {
	config   ManagerConfig
	registry Registry
	open     poolOpener

	mu    sync.RWMutex
	pools map[string]*ManagedPool
	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger
}

// NewManager creates the manager and starts its eviction and health loops.
func NewManager(cfg ManagerConfig, registry Registry, log *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:   cfg,
		registry: registry,
		pools:    make(map[string]*ManagedPool),
		ctx:      ctx,
		cancel:   cancel,
		log:      log.WithComponent("tenant-manager"),
	}
	m.open = m.openPool

	if cfg.PoolIdleTimeout > 0 {
		m.startLoop(cfg.PoolIdleTimeout/2, m.evictIdlePools)
	}
	if cfg.HealthCheckPeriod > 0 {
		m.startLoop(cfg.HealthCheckPeriod, m.checkPoolsHealth)
	}

	m.log.Infow("tenant manager started",
		"max_pools", cfg.MaxTotalPools,
		"idle_timeout", cfg.PoolIdleTimeout,
		"health_check_period", cfg.HealthCheckPeriod,
	)
	return m
}

func (m *Manager) startLoop(every time.Duration, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// GetPool returns the pool for tenantID, opening it on first use.
// Concurrent first requests for the same tenant share a single open.
func (m *Manager) GetPool(ctx context.Context, tenantID string) (*ManagedPool, error) {
	if mp := m.lookup(tenantID); mp != nil {
		mp.touch()
		return mp, nil
	}

	v, err, _ := m.group.Do(tenantID, func() (any, error) {
		if mp := m.lookup(tenantID); mp != nil {
			return mp, nil
		}
		return m.createPool(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}

	mp := v.(*ManagedPool)
	mp.touch()
	return mp, nil
}

func (m *Manager) lookup(tenantID string) *ManagedPool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pools[tenantID]
}

func (m *Manager) createPool(ctx context.Context, tenantID string) (*ManagedPool, error) {
	if limit := m.config.MaxTotalPools; limit > 0 && m.poolCount() >= limit {
		return nil, fmt.Errorf("%w (%d)", ErrMaxPoolLimit, limit)
	}

	t, err := m.registry.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("tenant lookup failed: %w", err)
	}
	if !t.IsActive() {
		return nil, fmt.Errorf("%w: status=%s", ErrTenantNotActive, t.Status)
	}

	pool, err := m.open(ctx, t)
	if err != nil {
		return nil, err
	}

	mp := &ManagedPool{pool: pool, tenant: t}
	mp.touch()

	m.mu.Lock()
	m.pools[tenantID] = mp
	total := len(m.pools)
	m.mu.Unlock()

	m.log.Infow("created pool for tenant",
		"tenant_id", tenantID,
		"db_name", t.DBName,
		"total_pools", total,
	)
	return mp, nil
}

func (m *Manager) openPool(ctx context.Context, t *Tenant) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(t.DSN(m.config.DBUser, m.config.DBPassword, m.config.SSLMode))
	if err != nil {
		return nil, fmt.Errorf("parse dsn for tenant %s: %w", t.ID, err)
	}

	poolCfg.MaxConns = m.config.MaxConnsPerTenant
	poolCfg.MinConns = m.config.MinConnsPerTenant
	if m.config.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = m.config.HealthCheckPeriod
	}
	poolCfg.ConnConfig.ConnectTimeout = m.config.ConnectTimeout

	openCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(openCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool for tenant %s: %w", t.ID, err)
	}
	if err := pool.Ping(openCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping tenant %s: %w", t.ID, err)
	}
	return pool, nil
}

func (m *Manager) poolCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

func (m *Manager) snapshot() map[string]*ManagedPool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*ManagedPool, len(m.pools))
	for k, v := range m.pools {
		out[k] = v
	}
	return out
}

// evictIdlePools closes unreferenced pools that are idle or were marked unhealthy.
func (m *Manager) evictIdlePools() {
	threshold := time.Now().Add(-m.config.PoolIdleTimeout).Unix()

	for tenantID, mp := range m.snapshot() {
		if mp.refCount.Load() > 0 {
			continue
		}
		switch {
		case mp.unhealthySince.Load() > 0:
			m.closePool(tenantID, mp, "unhealthy pool (no active refs)")
		case mp.lastUsed.Load() < threshold:
			m.closePool(tenantID, mp, "idle timeout")
		}
	}
}

// checkPoolsHealth pings every pool. Failing pools are closed once no request holds them.
func (m *Manager) checkPoolsHealth() {
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	for tenantID, mp := range m.snapshot() {
		if err := mp.pool.Ping(ctx); err != nil {
			mp.unhealthySince.CompareAndSwap(0, time.Now().Unix())
			m.log.Warnw("pool health check failed", "tenant_id", tenantID, "error", err)

			if mp.refCount.Load() == 0 {
				m.closePool(tenantID, mp, "health check failed")
			}
			continue
		}
		mp.unhealthySince.Store(0)
	}
}

func (m *Manager) closePool(tenantID string, mp *ManagedPool, reason string) {
	m.mu.Lock()
	if m.pools[tenantID] != mp {
		m.mu.Unlock()
		return
	}
	delete(m.pools, tenantID)
	total := len(m.pools)
	m.mu.Unlock()

	mp.pool.Close()
	m.log.Infow("closed pool", "tenant_id", tenantID, "reason", reason, "total_pools", total)
}

// Close stops background loops and closes every pool.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*ManagedPool)
	m.mu.Unlock()

	for _, mp := range pools {
		mp.pool.Close()
	}
	m.log.Infow("tenant manager closed", "pools_closed", len(pools))
}

// ManagerStats contains manager runtime statistics.
type ManagerStats struct {
	TotalPools    int               `json:"totalPools"`
	TotalConns    int               `json:"totalConns"`
	IdleConns     int               `json:"idleConns"`
	AcquiredConns int               `json:"acquiredConns"`
	Tenants       []TenantPoolStats `json:"tenants"`
}

// TenantPoolStats contains per-tenant pool statistics.
type TenantPoolStats struct {
	TenantID      string    `json:"tenantId"`
	DBName        string    `json:"dbName"`
	TotalConns    int       `json:"totalConns"`
	IdleConns     int       `json:"idleConns"`
	AcquiredConns int       `json:"acquiredConns"`
	ActiveRefs    int       `json:"activeRefs"`
	Healthy       bool      `json:"healthy"`
	LastUsed      time.Time `json:"lastUsed"`
}

// Stats returns current manager statistics.
func (m *Manager) Stats() ManagerStats {
	pools := m.snapshot()
	stats := ManagerStats{TotalPools: len(pools)}

	for tenantID, mp := range pools {
		ps := mp.pool.Stat()
		stats.TotalConns += int(ps.TotalConns())
		stats.IdleConns += int(ps.IdleConns())
		stats.AcquiredConns += int(ps.AcquiredConns())

		stats.Tenants = append(stats.Tenants, TenantPoolStats{
			TenantID:      tenantID,
			DBName:        mp.tenant.DBName,
			TotalConns:    int(ps.TotalConns()),
			IdleConns:     int(ps.IdleConns()),
			AcquiredConns: int(ps.AcquiredConns()),
			ActiveRefs:    int(mp.refCount.Load()),
			Healthy:       mp.unhealthySince.Load() == 0,
			LastUsed:      time.Unix(mp.lastUsed.Load(), 0),
		})
	}
	return stats
}

// ActiveTenants lists active workspaces from the registry.
func (m *Manager) ActiveTenants(ctx context.Context) ([]*Tenant, error) {
	return m.registry.ListActive(ctx)
}

// Registry returns the tenant registry.
func (m *Manager) Registry() Registry {
	return m.registry
}

// PrewarmPools opens pools for all active tenants with bounded concurrency.
// Every failure is reported; successful pools stay open.
func (m *Manager) PrewarmPools(ctx context.Context) error {
	tenants, err := m.registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	m.log.Infow("prewarming pools", "tenant_count", len(tenants))

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	if m.config.PrewarmConcurrency > 0 {
		g.SetLimit(m.config.PrewarmConcurrency)
	}
	for _, t := range tenants {
		g.Go(func() error {
			if _, err := m.GetPool(gctx, t.ID); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("prewarm %s: %w", t.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		m.log.Warnw("some pools failed to prewarm", "error_count", len(errs))
		return errors.Join(errs...)
	}
	m.log.Info("all pools prewarmed")
	return nil
}
