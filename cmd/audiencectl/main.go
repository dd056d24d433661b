// Package main is the audience operator CLI.
//
// Usage:
//
//	audiencectl tenant create --slug acme --name "ACME Corp" --create-db
//	audiencectl tenant list
//	audiencectl tenant suspend <tenant-id>
//	audiencectl evaluate --profiles people.csv --criteria criteria.json
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"audience/internal/config"
	"audience/internal/core/tenant"
	"audience/internal/infrastructure/storage/postgres"
)

func main() {
	if err := newRootCmd(postgresBackend{}).Execute(); err != nil {
		os.Exit(1)
	}
}

// backend reaches the databases the tenant commands operate on.
type backend interface {
	// OpenRegistry connects to the meta database. release closes the connection.
	OpenRegistry(ctx context.Context, cfg *config.Config) (reg tenant.Registry, release func(), err error)
	// Provision creates the tenant database and applies the schema to it.
	Provision(ctx context.Context, cfg *config.Config, adminURL string, t *tenant.Tenant) error
}

func newRootCmd(b backend) *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:          "audiencectl",
		Short:        "Operate audience workspaces and evaluate criteria offline",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding config.yaml (default: working directory)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configDir)
		if err != nil {
			return nil, err
		}
		if cfg.MetaDatabase.DSN == "" {
			return nil, errors.New("meta_database.url is required (set AUDIENCE_META_DATABASE_URL)")
		}
		return cfg, nil
	}

	root.AddCommand(newTenantCmd(b, loadConfig), newEvaluateCmd())
	return root
}

type postgresBackend struct{}

func (postgresBackend) OpenRegistry(ctx context.Context, cfg *config.Config) (tenant.Registry, func(), error) {
	pool, err := postgres.NewPool(ctx, cfg.MetaDatabase)
	if err != nil {
		return nil, nil, fmt.Errorf("connect meta database: %w", err)
	}
	return tenant.NewPostgresRegistry(pool), pool.Close, nil
}

func (postgresBackend) Provision(ctx context.Context, cfg *config.Config, adminURL string, t *tenant.Tenant) error {
	if adminURL == "" {
		return errors.New("--admin-url is required with --create-db")
	}
	admin, err := pgxpool.New(ctx, adminURL)
	if err != nil {
		return fmt.Errorf("connect as admin: %w", err)
	}
	defer admin.Close()

	if err := postgres.CreateDatabase(ctx, admin, t.DBName); err != nil {
		return err
	}

	db, err := pgxpool.New(ctx, t.DSN(cfg.Tenants.DBUser, cfg.Tenants.DBPassword, cfg.Tenants.SSLMode))
	if err != nil {
		return fmt.Errorf("connect tenant database: %w", err)
	}
	defer db.Close()

	return postgres.ApplySchema(ctx, db)
}
