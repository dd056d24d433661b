package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the tenant tables. It is a bootstrap for fresh tenant
// databases, not a migration history.
//
//go:embed schema.sql
var Schema string

// ApplySchema runs Schema against q.
func ApplySchema(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const duplicateDatabase = "42P04"

// CreateDatabase creates database name through an admin connection. An
// existing database is not an error.
func CreateDatabase(ctx context.Context, q Querier, name string) error {
	_, err := q.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == duplicateDatabase {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}
