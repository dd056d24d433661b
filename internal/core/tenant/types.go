// Package tenant manages per-workspace databases. Every workspace owns an
// isolated PostgreSQL database that holds its profiles and segments.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is the lifecycle state of a workspace.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Tenant is a row of the meta-database tenants table.
type Tenant struct {
	ID          string         `db:"id" json:"id"`
	Slug        string         `db:"slug" json:"slug"`
	DisplayName string         `db:"display_name" json:"displayName"`
	DBName      string         `db:"db_name" json:"dbName"`
	DBHost      string         `db:"db_host" json:"dbHost"`
	DBPort      int            `db:"db_port" json:"dbPort"`
	Status      Status         `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
	Settings    map[string]any `db:"settings" json:"settings,omitempty"`
}

// IsActive returns true if tenant can accept requests.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// DSN builds the connection string for this tenant's database.
func (t *Tenant) DSN(user, password, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, password, t.DBHost, t.DBPort, t.DBName, sslMode,
	)
}

// RefreshInterval returns the per-tenant segment refresh override stored in
// settings, or fallback when none is set or it does not parse.
func (t *Tenant) RefreshInterval(fallback time.Duration) time.Duration {
	raw, ok := t.Settings["segment_refresh_interval"].(string)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// CreateInput contains data for registering a new workspace.
type CreateInput struct {
	Slug        string
	DisplayName string
	DBHost      string
	DBPort      int
}

// Normalize lowercases the slug and fills connection defaults, then validates.
func (i *CreateInput) Normalize() error {
	i.Slug = strings.ToLower(strings.TrimSpace(i.Slug))
	if !slugPattern.MatchString(i.Slug) {
		return fmt.Errorf("slug %q must start with a letter and contain only a-z, 0-9 and _ (max 63)", i.Slug)
	}
	if strings.TrimSpace(i.DisplayName) == "" {
		return fmt.Errorf("display name is required")
	}
	if i.DBHost == "" {
		i.DBHost = "localhost"
	}
	if i.DBPort == 0 {
		i.DBPort = 5432
	}
	return nil
}

// DBName derives the database name from the slug.
func (i *CreateInput) DBName() string {
	return "aud_" + i.Slug
}

// Tenant builds the record to insert.
func (i *CreateInput) Tenant() *Tenant {
	return &Tenant{
		Slug:        i.Slug,
		DisplayName: i.DisplayName,
		DBName:      i.DBName(),
		DBHost:      i.DBHost,
		DBPort:      i.DBPort,
		Status:      StatusActive,
		Settings:    map[string]any{},
	}
}
