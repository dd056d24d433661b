// Package segment_repo stores segments in the tenant database.
package segment_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"audience/internal/core/apperror"
	"audience/internal/core/id"
	"audience/internal/domain"
	"audience/internal/domain/segment"
	"audience/internal/infrastructure/storage/postgres"
)

const tableName = "segments"

var columns = postgres.DBColumns[segment.Segment]()

var immutable = []string{"id", "version", "created_at", "created_by", "source"}

type Repo struct{}

func New() *Repo { return &Repo{} }

var _ segment.Repository = (*Repo)(nil)

func baseSelect() squirrel.SelectBuilder {
	return postgres.Builder().Select(columns...).From(tableName)
}

func (r *Repo) Create(ctx context.Context, s *segment.Segment) error {
	sql, args, err := postgres.Builder().
		Insert(tableName).
		SetMap(postgres.PickColumns(postgres.StructToMap(s), columns)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := postgres.QuerierFrom(ctx).Exec(ctx, sql, args...); err != nil {
		if _, ok := postgres.IsUniqueViolation(err); ok {
			return apperror.NewDuplicate("segment", "name", s.Name).WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", tableName, err)
	}
	return nil
}

func updateQuery(s *segment.Segment) (string, []any, error) {
	return postgres.Builder().
		Update(tableName).
		SetMap(postgres.PickColumns(postgres.StructToMap(s), columns, immutable...)).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": s.ID, "version": s.Version}).
		Suffix("RETURNING version").
		ToSql()
}

func (r *Repo) Update(ctx context.Context, s *segment.Segment) error {
	sql, args, err := updateQuery(s)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	var version int
	err = postgres.QuerierFrom(ctx).QueryRow(ctx, sql, args...).Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperror.NewConcurrentModification(tableName, s.ID.String())
	case err != nil:
		if _, ok := postgres.IsUniqueViolation(err); ok {
			return apperror.NewDuplicate("segment", "name", s.Name).WithCause(err)
		}
		return fmt.Errorf("update %s: %w", tableName, err)
	}
	s.Version = version
	return nil
}

func (r *Repo) GetByID(ctx context.Context, segmentID id.ID) (*segment.Segment, error) {
	sql, args, err := baseSelect().Where(squirrel.Eq{"id": segmentID}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	s := new(segment.Segment)
	if err := pgxscan.Get(ctx, postgres.QuerierFrom(ctx), s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, segmentID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return s, nil
}

// listQueries returns the count query and the page query for q.
func listQueries(q segment.ListQuery) (count squirrel.SelectBuilder, page squirrel.SelectBuilder) {
	sel := baseSelect()
	if q.Search != "" {
		sel = sel.Where(squirrel.ILike{"name": "%" + q.Search + "%"})
	}
	count = postgres.Builder().Select("COUNT(*)").FromSelect(sel, "sub")

	page = sel.OrderBy("created_at DESC", "id")
	if q.Limit > 0 {
		page = page.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		page = page.Offset(uint64(q.Offset))
	}
	return count, page
}

func (r *Repo) List(ctx context.Context, q segment.ListQuery) (domain.ListResult[*segment.Segment], error) {
	result := domain.ListResult[*segment.Segment]{Limit: q.Limit, Offset: q.Offset}
	querier := postgres.QuerierFrom(ctx)
	countQ, pageQ := listQueries(q)

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	sql, args, err := pageQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}
	return result, nil
}

func (r *Repo) ListAll(ctx context.Context) ([]*segment.Segment, error) {
	sql, args, err := baseSelect().OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []*segment.Segment
	if err := pgxscan.Select(ctx, postgres.QuerierFrom(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", tableName, err)
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, segmentID id.ID) error {
	sql, args, err := postgres.Builder().Delete(tableName).Where(squirrel.Eq{"id": segmentID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := postgres.QuerierFrom(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", tableName, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(tableName, segmentID.String())
	}
	return nil
}

func (r *Repo) UpdateSize(ctx context.Context, segmentID id.ID, size int, at time.Time) error {
	sql, args, err := postgres.Builder().
		Update(tableName).
		Set("estimated_size", size).
		Set("size_computed_at", at).
		Where(squirrel.Eq{"id": segmentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := postgres.QuerierFrom(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update size: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(tableName, segmentID.String())
	}
	return nil
}
