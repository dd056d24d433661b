package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"audience/internal/core/tenant"
)

// Pinger checks connectivity of the meta-database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats reports tenant pool usage. *tenant.Manager implements it.
type PoolStats interface {
	Stats() tenant.ManagerStats
}

// HealthHandler provides health check endpoints for the multi-tenant service.
type HealthHandler struct {
	meta    Pinger
	pools   PoolStats
	version string
}

func NewHealthHandler(meta Pinger, pools PoolStats, version string) *HealthHandler {
	return &HealthHandler{meta: meta, pools: pools, version: version}
}

// Live handles liveness probe.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles readiness probe. Only the meta-database is checked; tenant
// databases are opened lazily.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.meta.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{
				"meta_database": "unhealthy: " + err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{
			"meta_database": "healthy",
		},
	})
}

// Info returns application information with tenant pool totals.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	stats := h.pools.Stats()
	c.JSON(http.StatusOK, gin.H{
		"app":     "audience",
		"version": h.version,
		"mode":    "multi-tenant",
		"tenants": map[string]any{
			"active_pools":   stats.TotalPools,
			"total_conns":    stats.TotalConns,
			"idle_conns":     stats.IdleConns,
			"acquired_conns": stats.AcquiredConns,
		},
	})
}

// TenantsStats returns detailed statistics for all tenant pools.
// GET /health/tenants
func (h *HealthHandler) TenantsStats(c *gin.Context) {
	stats := h.pools.Stats()
	if stats.Tenants == nil {
		stats.Tenants = []tenant.TenantPoolStats{}
	}
	c.JSON(http.StatusOK, stats)
}
