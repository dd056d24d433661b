package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"audience/internal/core/apperror"
	"audience/internal/core/tenant"
	"audience/internal/infrastructure/storage/postgres"
	"audience/pkg/logger"
)

// TenantHeader is the HTTP header for tenant identification.
const TenantHeader = "X-Tenant-ID"

// PoolProvider hands out tenant pools. *tenant.Manager implements it.
type PoolProvider interface {
	GetPool(ctx context.Context, tenantID string) (*tenant.ManagedPool, error)
}

// TenantDB resolves the workspace from X-Tenant-ID and puts its pool,
// transaction manager and tenant record into the request context.
// It must run before any handler touches the database.
func TenantDB(pools PoolProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		rawTenantID := c.GetHeader(TenantHeader)
		if rawTenantID == "" {
			_ = c.Error(
				apperror.NewValidation("tenant is required").
					WithDetail("header", TenantHeader),
			)
			c.Abort()
			return
		}

		tenantUUID, err := uuid.Parse(rawTenantID)
		if err != nil {
			_ = c.Error(
				apperror.NewValidation("invalid tenant id").
					WithDetail("header", TenantHeader).
					WithDetail("value", rawTenantID),
			)
			c.Abort()
			return
		}
		tenantID := tenantUUID.String()

		managedPool, err := pools.GetPool(ctx, tenantID)
		if err != nil {
			_ = c.Error(poolError(ctx, tenantID, err))
			c.Abort()
			return
		}

		// Referenced pools are not evicted while the request runs.
		managedPool.AcquireRef()
		defer managedPool.ReleaseRef()

		txManager := postgres.NewTxManager(managedPool.Pool())

		ctx = tenant.WithPool(ctx, managedPool.Pool())
		ctx = tenant.WithTxManager(ctx, txManager)
		ctx = tenant.WithTenant(ctx, managedPool.Tenant())
		c.Request = c.Request.WithContext(ctx)

		c.Set("tenant_id", tenantID)
		c.Next()
	}
}

func poolError(ctx context.Context, tenantID string, err error) error {
	logger.Warn(ctx, "tenant pool error", "tenant_id", tenantID, "error", err)

	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return apperror.NewNotFound("tenant", tenantID)
	case errors.Is(err, tenant.ErrTenantNotActive):
		return apperror.NewForbidden("tenant is not active").WithDetail("tenant_id", tenantID)
	case errors.Is(err, tenant.ErrMaxPoolLimit):
		return apperror.NewUnavailable(err).WithDetail("tenant_id", tenantID)
	default:
		return apperror.NewInternal(err).WithDetail("tenant_id", tenantID)
	}
}
