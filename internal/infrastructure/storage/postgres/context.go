package postgres

import (
	"context"
	"fmt"

	"audience/internal/core/tenant"
)

// MustGetTxManager returns the concrete *TxManager that TenantDB put in ctx.
// Repositories need it for GetQuerier; domain code depends on tx.Manager only.
func MustGetTxManager(ctx context.Context) *TxManager {
	txm := tenant.MustGetTxManager(ctx)
	pg, ok := txm.(*TxManager)
	if !ok || pg == nil {
		panic(fmt.Sprintf("TxManager in context has unexpected type: %T", txm))
	}
	return pg
}

// QuerierFrom returns the tenant transaction in ctx, or the tenant pool.
func QuerierFrom(ctx context.Context) Querier {
	return MustGetTxManager(ctx).GetQuerier(ctx)
}
