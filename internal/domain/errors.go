package domain

import (
	"context"

	"audience/internal/core/apperror"
	"audience/internal/core/tenant"
	"audience/internal/core/tx"
)

// ValidationErr keeps structured AppErrors and wraps anything else as a validation error.
func ValidationErr(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	return apperror.NewValidation(err.Error())
}

// GetErr maps repository lookup errors onto the entity name the caller used.
func GetErr(err error, entity string, key any) error {
	if err == nil {
		return nil
	}
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(entity, key)
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", entity).WithDetail("id", key)
}

// TxManager returns fixed when set, otherwise the manager TenantDB put in ctx.
func TxManager(ctx context.Context, fixed tx.Manager) (tx.Manager, error) {
	if fixed != nil {
		return fixed, nil
	}
	txm, err := tenant.GetTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm, nil
}
