package tenant

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audience/pkg/logger"
)

type mockRegistry struct {
	mu      sync.Mutex
	tenants map[string]*Tenant
}

func newMockRegistry(tenants ...*Tenant) *mockRegistry {
	r := &mockRegistry{tenants: make(map[string]*Tenant)}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

func (r *mockRegistry) GetByID(_ context.Context, id string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

func (r *mockRegistry) GetBySlug(_ context.Context, slug string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (r *mockRegistry) ListActive(ctx context.Context) ([]*Tenant, error) {
	all, _ := r.ListAll(ctx)
	var out []*Tenant
	for _, t := range all {
		if t.IsActive() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *mockRegistry) ListAll(context.Context) ([]*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (r *mockRegistry) Create(_ context.Context, t *Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
	return nil
}

func (r *mockRegistry) UpdateStatus(_ context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.Status = status
	return nil
}

// newTestManager returns a manager whose pools point at an unreachable
// address. pgxpool does not dial until a connection is needed.
func newTestManager(t *testing.T, cfg ManagerConfig, reg Registry) (*Manager, *atomic.Int32) {
	t.Helper()

	var opened atomic.Int32
	m := NewManager(cfg, reg, logger.Nop())
	m.open = func(ctx context.Context, tn *Tenant) (*pgxpool.Pool, error) {
		opened.Add(1)
		return pgxpool.New(ctx, "postgres://u:p@127.0.0.1:1/"+tn.DBName+"?connect_timeout=1")
	}
	t.Cleanup(m.Close)
	return m, &opened
}

func TestManager_GetPool(t *testing.T) {
	reg := newMockRegistry(
		&Tenant{ID: "t1", DBName: "aud_one", Status: StatusActive},
		&Tenant{ID: "t2", DBName: "aud_two", Status: StatusSuspended},
	)
	m, opened := newTestManager(t, ManagerConfig{}, reg)
	ctx := context.Background()

	mp, err := m.GetPool(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "aud_one", mp.Tenant().DBName)

	again, err := m.GetPool(ctx, "t1")
	require.NoError(t, err)
	assert.Same(t, mp, again)
	assert.Equal(t, int32(1), opened.Load())

	_, err = m.GetPool(ctx, "t2")
	assert.ErrorIs(t, err, ErrTenantNotActive)

	_, err = m.GetPool(ctx, "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestManager_ConcurrentFirstUseOpensOnce(t *testing.T) {
	reg := newMockRegistry(&Tenant{ID: "t1", DBName: "aud_one", Status: StatusActive})
	m, opened := newTestManager(t, ManagerConfig{}, reg)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.GetPool(context.Background(), "t1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opened.Load())
	assert.Equal(t, 1, m.Stats().TotalPools)
}

func TestManager_MaxPoolLimit(t *testing.T) {
	reg := newMockRegistry(
		&Tenant{ID: "t1", Status: StatusActive},
		&Tenant{ID: "t2", Status: StatusActive},
	)
	m, _ := newTestManager(t, ManagerConfig{MaxTotalPools: 1}, reg)

	_, err := m.GetPool(context.Background(), "t1")
	require.NoError(t, err)

	_, err = m.GetPool(context.Background(), "t2")
	assert.ErrorIs(t, err, ErrMaxPoolLimit)
}

func TestManager_EvictIdlePools(t *testing.T) {
	reg := newMockRegistry(
		&Tenant{ID: "idle", Status: StatusActive},
		&Tenant{ID: "busy", Status: StatusActive},
	)
	m, _ := newTestManager(t, ManagerConfig{}, reg)
	m.config.PoolIdleTimeout = time.Minute
	ctx := context.Background()

	idle, err := m.GetPool(ctx, "idle")
	require.NoError(t, err)
	busy, err := m.GetPool(ctx, "busy")
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour).Unix()
	idle.lastUsed.Store(old)
	busy.lastUsed.Store(old)
	busy.AcquireRef()
	defer busy.ReleaseRef()

	m.evictIdlePools()

	assert.Nil(t, m.lookup("idle"))
	assert.Same(t, busy, m.lookup("busy"))
}

func TestManager_HealthCheckKeepsReferencedPools(t *testing.T) {
	reg := newMockRegistry(
		&Tenant{ID: "free", Status: StatusActive},
		&Tenant{ID: "held", Status: StatusActive},
	)
	m, _ := newTestManager(t, ManagerConfig{}, reg)
	ctx := context.Background()

	_, err := m.GetPool(ctx, "free")
	require.NoError(t, err)
	held, err := m.GetPool(ctx, "held")
	require.NoError(t, err)
	held.AcquireRef()

	m.checkPoolsHealth()

	assert.Nil(t, m.lookup("free"))
	require.NotNil(t, m.lookup("held"))
	assert.NotZero(t, held.unhealthySince.Load())

	held.ReleaseRef()
	m.evictIdlePools()
	assert.Nil(t, m.lookup("held"))
}

func TestManager_PrewarmPools(t *testing.T) {
	reg := newMockRegistry(
		&Tenant{ID: "a", Status: StatusActive},
		&Tenant{ID: "b", Status: StatusActive},
		&Tenant{ID: "c", Status: StatusDeleted},
	)
	m, opened := newTestManager(t, ManagerConfig{PrewarmConcurrency: 2}, reg)

	require.NoError(t, m.PrewarmPools(context.Background()))
	assert.Equal(t, int32(2), opened.Load())
	assert.Equal(t, 2, m.Stats().TotalPools)
}

func TestTenant_RefreshInterval(t *testing.T) {
	tn := &Tenant{Settings: map[string]any{"segment_refresh_interval": "90s"}}
	assert.Equal(t, 90*time.Second, tn.RefreshInterval(time.Hour))

	tn.Settings["segment_refresh_interval"] = "soon"
	assert.Equal(t, time.Hour, tn.RefreshInterval(time.Hour))

	assert.Equal(t, time.Hour, (&Tenant{}).RefreshInterval(time.Hour))
}

func TestCreateInput_Normalize(t *testing.T) {
	in := CreateInput{Slug: " Acme_EU ", DisplayName: "Acme EU"}
	require.NoError(t, in.Normalize())
	assert.Equal(t, "acme_eu", in.Slug)
	assert.Equal(t, "aud_acme_eu", in.DBName())
	assert.Equal(t, 5432, in.DBPort)
	assert.Equal(t, StatusActive, in.Tenant().Status)

	bad := CreateInput{Slug: "9lives", DisplayName: "x"}
	assert.Error(t, bad.Normalize())

	noName := CreateInput{Slug: "acme"}
	assert.Error(t, noName.Normalize())
}
