package tenant

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registry provides access to workspace metadata stored in the meta-database.
type Registry interface {
	GetByID(ctx context.Context, tenantID string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	ListActive(ctx context.Context) ([]*Tenant, error)
	ListAll(ctx context.Context) ([]*Tenant, error)

	// Create inserts a new tenant row and populates t.ID.
	Create(ctx context.Context, t *Tenant) error
	UpdateStatus(ctx context.Context, tenantID string, status Status) error
}

var tenantColumns = []string{
	"id", "slug", "display_name", "db_name", "db_host", "db_port",
	"status", "created_at", "updated_at", "settings",
}

// PostgresRegistry implements Registry on the meta-database.
type PostgresRegistry struct {
	pool    *pgxpool.Pool
	builder sq.StatementBuilderType
}

func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{
		pool:    pool,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *PostgresRegistry) selectTenants() sq.SelectBuilder {
	return r.builder.Select(tenantColumns...).From("tenants")
}

func (r *PostgresRegistry) getOne(ctx context.Context, q sq.SelectBuilder) (*Tenant, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t Tenant
	if err := pgxscan.Get(ctx, r.pool, &t, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (r *PostgresRegistry) list(ctx context.Context, q sq.SelectBuilder) ([]*Tenant, error) {
	query, args, err := q.OrderBy("slug").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var tenants []*Tenant
	if err := pgxscan.Select(ctx, r.pool, &tenants, query, args...); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (r *PostgresRegistry) GetByID(ctx context.Context, tenantID string) (*Tenant, error) {
	return r.getOne(ctx, r.selectTenants().Where(sq.Eq{"id": tenantID}))
}

func (r *PostgresRegistry) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return r.getOne(ctx, r.selectTenants().Where(sq.Eq{"slug": slug}))
}

func (r *PostgresRegistry) ListActive(ctx context.Context) ([]*Tenant, error) {
	return r.list(ctx, r.selectTenants().Where(sq.Eq{"status": StatusActive}))
}

func (r *PostgresRegistry) ListAll(ctx context.Context) ([]*Tenant, error) {
	return r.list(ctx, r.selectTenants())
}

func (r *PostgresRegistry) Create(ctx context.Context, t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is nil")
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	if t.Settings == nil {
		t.Settings = map[string]any{}
	}

	query, args, err := r.builder.Insert("tenants").
		SetMap(map[string]any{
			"slug":         t.Slug,
			"display_name": t.DisplayName,
			"db_name":      t.DBName,
			"db_host":      t.DBHost,
			"db_port":      t.DBPort,
			"status":       t.Status,
			"settings":     t.Settings,
		}).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) UpdateStatus(ctx context.Context, tenantID string, status Status) error {
	query, args, err := r.builder.Update("tenants").
		Set("status", status).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": tenantID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

var _ Registry = (*PostgresRegistry)(nil)
