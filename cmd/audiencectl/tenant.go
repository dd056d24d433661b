package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"audience/internal/config"
	"audience/internal/core/tenant"
)

func newTenantCmd(b backend, loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage workspaces registered in the meta database",
	}
	cmd.AddCommand(
		newTenantListCmd(b, loadConfig),
		newTenantCreateCmd(b, loadConfig),
		newTenantStatusCmd(b, loadConfig, "suspend", tenant.StatusSuspended),
		newTenantStatusCmd(b, loadConfig, "activate", tenant.StatusActive),
	)
	return cmd
}

func newTenantListCmd(b backend, loadConfig func() (*config.Config, error)) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			reg, closeReg, err := b.OpenRegistry(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeReg()

			list := reg.ListAll
			if activeOnly {
				list = reg.ListActive
			}
			tenants, err := list(ctx)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(tenants) == 0 {
				fmt.Fprintln(out, "No tenants found")
				return nil
			}

			fmt.Fprintf(out, "%-36s %-20s %-30s %-24s %-10s\n", "TENANT_ID", "SLUG", "NAME", "DATABASE", "STATUS")
			fmt.Fprintln(out, strings.Repeat("-", 124))
			for _, t := range tenants {
				fmt.Fprintf(out, "%-36s %-20s %-30s %-24s %-10s\n",
					truncate(t.ID, 36),
					truncate(t.Slug, 20),
					truncate(t.DisplayName, 30),
					truncate(t.DBName, 24),
					t.Status,
				)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active tenants")
	return cmd
}

func newTenantCreateCmd(b backend, loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		in       tenant.CreateInput
		createDB bool
		adminURL string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new tenant, optionally creating its database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := in.Normalize(); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			reg, closeReg, err := b.OpenRegistry(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeReg()

			t := in.Tenant()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Creating tenant '%s'...\n", t.Slug)

			if createDB {
				fmt.Fprintf(out, "  Creating database %s...\n", t.DBName)
				if err := b.Provision(ctx, cfg, adminURL, t); err != nil {
					return err
				}
				fmt.Fprintln(out, "  Schema applied")
			}

			if err := reg.Create(ctx, t); err != nil {
				return fmt.Errorf("register tenant: %w", err)
			}

			fmt.Fprintf(out, "Tenant '%s' created\n", t.Slug)
			fmt.Fprintf(out, "  Tenant ID: %s\n", t.ID)
			fmt.Fprintf(out, "  Database:  %s\n", t.DBName)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Slug, "slug", "", "tenant slug (a-z, 0-9, _)")
	f.StringVar(&in.DisplayName, "name", "", "display name")
	f.StringVar(&in.DBHost, "db-host", "", "tenant database host (default localhost)")
	f.IntVar(&in.DBPort, "db-port", 0, "tenant database port (default 5432)")
	f.BoolVar(&createDB, "create-db", false, "create the tenant database and apply the schema")
	f.StringVar(&adminURL, "admin-url", "", "admin connection string used with --create-db")
	_ = cmd.MarkFlagRequired("slug")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTenantStatusCmd(b backend, loadConfig func() (*config.Config, error), verb string, status tenant.Status) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <tenant-id>",
		Short: fmt.Sprintf("Set a tenant to %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			reg, closeReg, err := b.OpenRegistry(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeReg()

			if err := reg.UpdateStatus(ctx, args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant '%s' is now %s\n", args[0], status)
			return nil
		},
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
