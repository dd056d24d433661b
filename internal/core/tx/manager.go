// Package tx decouples domain services from the concrete database transaction implementation.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction. fn's error rolls back, nil commits.
// Nested calls join the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds read-only transactions for evaluation paths that only load rows.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// Noop runs fn directly. Services fall back to it when no database is attached,
// for example under unit tests with in-memory repositories.
type Noop struct{}

func (Noop) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (Noop) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
