// Package profile_repo stores profiles in the tenant database.
// The TxManager is taken from context per request.
package profile_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"audience/internal/core/apperror"
	"audience/internal/core/id"
	"audience/internal/domain/profile"
	"audience/internal/infrastructure/storage/postgres"
)

const tableName = "profiles"

var columns = postgres.DBColumns[profile.Profile]()

// immutable columns are written on insert only; version is bumped by SQL.
var immutable = []string{"id", "version", "created_at"}

type Repo struct {
	batch *postgres.BatchExecutor
}

// New creates the repository. chunkSize bounds statements per upsert batch.
func New(chunkSize int) *Repo {
	return &Repo{batch: postgres.NewBatchExecutor(chunkSize)}
}

var _ profile.Repository = (*Repo)(nil)

func insertQuery(p *profile.Profile) (string, []any, error) {
	return postgres.Builder().
		Insert(tableName).
		SetMap(postgres.PickColumns(postgres.StructToMap(p), columns)).
		ToSql()
}

// updateQuery writes every mutable column if the stored version still equals p.Version.
func updateQuery(p *profile.Profile) (string, []any, error) {
	return postgres.Builder().
		Update(tableName).
		SetMap(postgres.PickColumns(postgres.StructToMap(p), columns, immutable...)).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": p.ID, "version": p.Version}).
		Suffix("RETURNING version").
		ToSql()
}

func (r *Repo) Create(ctx context.Context, p *profile.Profile) error {
	sql, args, err := insertQuery(p)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := postgres.QuerierFrom(ctx).Exec(ctx, sql, args...); err != nil {
		if constraint, ok := postgres.IsUniqueViolation(err); ok {
			return apperror.NewDuplicate("profile", constraintField(constraint), "").WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", tableName, err)
	}
	return nil
}

func constraintField(constraint string) string {
	switch {
	case strings.Contains(constraint, "email"):
		return "email"
	case strings.Contains(constraint, "mobile"):
		return "mobile"
	}
	return "id"
}

func (r *Repo) Update(ctx context.Context, p *profile.Profile) error {
	sql, args, err := updateQuery(p)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	var version int
	err = postgres.QuerierFrom(ctx).QueryRow(ctx, sql, args...).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewConcurrentModification(tableName, p.ID.String())
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", tableName, err)
	}
	p.Version = version
	return nil
}

func baseSelect() squirrel.SelectBuilder {
	return postgres.Builder().Select(columns...).From(tableName)
}

func (r *Repo) GetByID(ctx context.Context, profileID id.ID) (*profile.Profile, error) {
	sql, args, err := baseSelect().Where(squirrel.Eq{"id": profileID}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	p := new(profile.Profile)
	if err := pgxscan.Get(ctx, postgres.QuerierFrom(ctx), p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, profileID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return p, nil
}

func listAllQuery() (string, []any, error) {
	return baseSelect().OrderBy("created_at", "id").ToSql()
}

func (r *Repo) ListAll(ctx context.Context) ([]*profile.Profile, error) {
	sql, args, err := listAllQuery()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []*profile.Profile
	if err := pgxscan.Select(ctx, postgres.QuerierFrom(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", tableName, err)
	}
	return out, nil
}

func (r *Repo) SetStatus(ctx context.Context, profileID id.ID, status profile.Status) error {
	sql, args, err := postgres.Builder().
		Update(tableName).
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": profileID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := postgres.QuerierFrom(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(tableName, profileID.String())
	}
	return nil
}

// matchQuery locks every stored profile an incoming row could merge into.
func matchQuery(rows []profile.Incoming) (string, []any, error) {
	var emails, mobiles []string
	for _, in := range rows {
		if in.Profile.Email != nil {
			emails = append(emails, strings.ToLower(*in.Profile.Email))
		}
		if in.Profile.Mobile != nil {
			mobiles = append(mobiles, *in.Profile.Mobile)
		}
	}
	return baseSelect().
		Where(squirrel.Or{
			squirrel.Expr("lower(email) = ANY(?)", emails),
			squirrel.Expr("mobile = ANY(?)", mobiles),
		}).
		OrderBy("created_at", "id").
		Suffix("FOR UPDATE").
		ToSql()
}

// Upsert must run inside a transaction: matched rows are locked until commit.
func (r *Repo) Upsert(ctx context.Context, rows []profile.Incoming) (profile.UpsertResult, error) {
	if len(rows) == 0 {
		return profile.UpsertResult{}, nil
	}
	q := postgres.QuerierFrom(ctx)

	sql, args, err := matchQuery(rows)
	if err != nil {
		return profile.UpsertResult{}, fmt.Errorf("build match query: %w", err)
	}
	var existing []*profile.Profile
	if err := pgxscan.Select(ctx, q, &existing, sql, args...); err != nil {
		return profile.UpsertResult{}, fmt.Errorf("match profiles: %w", err)
	}

	plan := profile.PlanUpsert(existing, rows)

	inserts := make([]postgres.BatchQuery, 0, len(plan.Inserts))
	for _, p := range plan.Inserts {
		sql, args, err := insertQuery(p)
		if err != nil {
			return profile.UpsertResult{}, fmt.Errorf("build insert: %w", err)
		}
		inserts = append(inserts, postgres.BatchQuery{SQL: sql, Args: args})
	}
	if err := r.batch.Exec(ctx, q, inserts); err != nil {
		return profile.UpsertResult{}, fmt.Errorf("insert profiles: %w", err)
	}

	updates := make([]postgres.BatchQuery, 0, len(plan.Updates))
	for _, p := range plan.Updates {
		sql, args, err := updateQuery(p)
		if err != nil {
			return profile.UpsertResult{}, fmt.Errorf("build update: %w", err)
		}
		updates = append(updates, postgres.BatchQuery{SQL: sql, Args: args})
	}
	err = r.batch.QueryRows(ctx, q, updates, func(i int, row pgx.Row) error {
		err := row.Scan(&plan.Updates[i].Version)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NewConcurrentModification(tableName, plan.Updates[i].ID.String())
		}
		return err
	})
	if err != nil {
		return profile.UpsertResult{}, fmt.Errorf("update profiles: %w", err)
	}

	return profile.UpsertResult{Inserted: len(plan.Inserts), Updated: plan.Merged}, nil
}

func (r *Repo) CustomFieldKeys(ctx context.Context) ([]string, error) {
	const sql = `SELECT DISTINCT jsonb_object_keys(custom_fields) AS key FROM profiles ORDER BY key`
	var keys []string
	if err := pgxscan.Select(ctx, postgres.QuerierFrom(ctx), &keys, sql); err != nil {
		return nil, fmt.Errorf("custom field keys: %w", err)
	}
	return keys, nil
}
