// Package config loads process configuration from an optional config.yaml
// and AUDIENCE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"audience/internal/core/tenant"
	"audience/internal/infrastructure/storage/postgres"
	"audience/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. AUDIENCE_SERVER_PORT.
const EnvPrefix = "AUDIENCE"

type Config struct {
	Server       ServerConfig         `mapstructure:"server"`
	Log          logger.Config        `mapstructure:"log"`
	MetaDatabase postgres.PoolConfig  `mapstructure:"meta_database"`
	Tenants      tenant.ManagerConfig `mapstructure:"tenants"`
	Auth         AuthConfig           `mapstructure:"auth"`
	Import       ImportConfig         `mapstructure:"import"`
	Segments     SegmentConfig        `mapstructure:"segments"`
	Worker       WorkerConfig         `mapstructure:"worker"`
	CORS         CORSConfig           `mapstructure:"cors"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PrewarmPools    bool          `mapstructure:"prewarm_pools"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// IsDevelopment reports whether the process runs in the development environment.
func (s ServerConfig) IsDevelopment() bool { return s.Env == "development" }

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type ImportConfig struct {
	MaxRows     int   `mapstructure:"max_rows"`
	MaxFileSize int64 `mapstructure:"max_file_size"`
	// BatchSize bounds statements per pgx batch during upsert.
	BatchSize int `mapstructure:"batch_size"`
}

type SegmentConfig struct {
	SnapshotCompressThreshold int           `mapstructure:"snapshot_compress_threshold"`
	FieldKeyTTL               time.Duration `mapstructure:"field_key_ttl"`
}

type WorkerConfig struct {
	SegmentRefreshInterval time.Duration `mapstructure:"segment_refresh_interval"`
	TenantRefreshInterval  time.Duration `mapstructure:"tenant_refresh_interval"`
	// RefreshTimeout bounds one RefreshAll run for one tenant.
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	// MetricsAddr is where the worker serves /metrics.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.prewarm_pools", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.output_paths", []string{"stdout"})

	meta := postgres.DefaultPoolConfig("")
	v.SetDefault("meta_database.url", "")
	v.SetDefault("meta_database.max_conns", meta.MaxConns)
	v.SetDefault("meta_database.min_conns", meta.MinConns)
	v.SetDefault("meta_database.max_conn_lifetime", meta.MaxConnLifetime)
	v.SetDefault("meta_database.max_conn_idle_time", meta.MaxConnIdleTime)
	v.SetDefault("meta_database.health_check_period", meta.HealthCheckPeriod)
	v.SetDefault("meta_database.application_name", meta.ApplicationName)

	pools := tenant.DefaultManagerConfig()
	v.SetDefault("tenants.db_user", "")
	v.SetDefault("tenants.db_password", "")
	v.SetDefault("tenants.ssl_mode", pools.SSLMode)
	v.SetDefault("tenants.max_conns_per_tenant", pools.MaxConnsPerTenant)
	v.SetDefault("tenants.min_conns_per_tenant", pools.MinConnsPerTenant)
	v.SetDefault("tenants.connect_timeout", pools.ConnectTimeout)
	v.SetDefault("tenants.max_total_pools", pools.MaxTotalPools)
	v.SetDefault("tenants.pool_idle_timeout", pools.PoolIdleTimeout)
	v.SetDefault("tenants.health_check_period", pools.HealthCheckPeriod)
	v.SetDefault("tenants.prewarm_concurrency", pools.PrewarmConcurrency)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("import.max_rows", 50_000)
	v.SetDefault("import.max_file_size", 20<<20)
	v.SetDefault("import.batch_size", 500)

	v.SetDefault("segments.snapshot_compress_threshold", postgres.DefaultSnapshotThreshold)
	v.SetDefault("segments.field_key_ttl", 5*time.Minute)

	v.SetDefault("worker.segment_refresh_interval", 15*time.Minute)
	v.SetDefault("worker.tenant_refresh_interval", 5*time.Minute)
	v.SetDefault("worker.refresh_timeout", 10*time.Minute)
	v.SetDefault("worker.metrics_addr", ":9091")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}

// Load reads config.yaml from dir (when present) and applies environment
// overrides on top of the defaults. An empty dir means the working directory.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every missing or out-of-range key at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.MetaDatabase.DSN == "" {
		errs = append(errs, errors.New("meta_database.url is required"))
	}
	if c.Tenants.DBUser == "" {
		errs = append(errs, errors.New("tenants.db_user is required"))
	}
	if len(c.Auth.JWTSecret) < 32 && !c.Server.IsDevelopment() {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes outside development"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Import.MaxRows <= 0 {
		errs = append(errs, errors.New("import.max_rows must be positive"))
	}
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, errors.New("import.max_file_size must be positive"))
	}
	if c.Worker.SegmentRefreshInterval < time.Minute {
		errs = append(errs, errors.New("worker.segment_refresh_interval must be at least 1m"))
	}
	return errors.Join(errs...)
}
