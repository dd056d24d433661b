package profile

import (
	"context"

	"audience/internal/core/id"
)

// Repository persists profiles of the tenant bound to ctx.
type Repository interface {
	Create(ctx context.Context, p *Profile) error

	// Update writes p if its version still matches, then bumps the version.
	Update(ctx context.Context, p *Profile) error

	GetByID(ctx context.Context, profileID id.ID) (*Profile, error)

	// ListAll returns every profile ordered by creation time. Filtering happens in memory.
	ListAll(ctx context.Context) ([]*Profile, error)

	SetStatus(ctx context.Context, profileID id.ID, status Status) error

	// Upsert matches incoming rows by email, then mobile, and writes the plan in one batch.
	Upsert(ctx context.Context, rows []Incoming) (UpsertResult, error)

	// CustomFieldKeys returns the distinct custom field names in use, sorted.
	CustomFieldKeys(ctx context.Context) ([]string, error)
}

// UpsertResult counts rows written by Upsert.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// FieldKeyCache caches CustomFieldKeys per tenant.
type FieldKeyCache interface {
	Get(tenantID string) ([]string, bool)
	Set(tenantID string, keys []string)
	Invalidate(tenantID string)
}
