package config

import (
	"time"

	"mercator-hq/archivist/pkg/archive"
)

// Config is the root configuration structure for Archivist.
// It contains all configuration sections for the archiving engine.
type Config struct {
	// Catalog configures the durable manifest of archive files.
	Catalog CatalogConfig `yaml:"catalog"`

	// Source configures access to the live tables being archived.
	Source SourceConfig `yaml:"source"`

	// Archive configures archive runs: file location, paging, locking.
	Archive ArchiveConfig `yaml:"archive"`

	// Growth contains the thresholds that flag a table for archiving.
	Growth GrowthConfig `yaml:"growth"`

	// Retention contains per-table retention policies and the auto-archive
	// schedule.
	Retention RetentionConfig `yaml:"retention"`

	// Search contains limits for archive search.
	Search SearchConfig `yaml:"search"`

	// Mirror configures the optional offsite copy of verified archives.
	Mirror MirrorConfig `yaml:"mirror"`

	// Server configures the HTTP listener used by `archivist serve`.
	Server ServerConfig `yaml:"server"`

	// Telemetry contains observability configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CatalogConfig contains catalog backend configuration.
type CatalogConfig struct {
	// Backend selects the catalog implementation.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite database configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/catalog.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// SourceConfig contains live table access configuration.
type SourceConfig struct {
	// Driver selects the source implementation.
	// Options: "sqlite"
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the live database file path.
	Path string `yaml:"path"`

	// MaxOpenConns bounds the source connection pool.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// TimeFormat is the encoding of timestamp columns: a Go time layout or
	// "unix" for integer seconds.
	// Default: "2006-01-02 15:04:05"
	TimeFormat string `yaml:"time_format"`

	// Tables overrides the timestamp and cursor columns per table.
	// Tables not listed use "created_at" and "id".
	Tables map[string]TableColumns `yaml:"tables"`
}

// TableColumns names the columns used to age and page a table.
type TableColumns struct {
	TimestampColumn string `yaml:"timestamp_column"`
	CursorColumn    string `yaml:"cursor_column"`
}

// TableSpec returns the table spec for name, applying column overrides.
func (c *SourceConfig) TableSpec(name string) archive.TableSpec {
	spec := archive.TableSpec{Name: name}
	if cols, ok := c.Tables[name]; ok {
		spec.TimestampColumn = cols.TimestampColumn
		spec.CursorColumn = cols.CursorColumn
	}
	return spec.WithDefaults()
}

// ArchiveConfig contains archive run configuration.
type ArchiveConfig struct {
	// Directory is where archive files are written.
	// Default: "data/archives"
	Directory string `yaml:"directory"`

	// PageSize is the number of rows read or deleted per page. It bounds
	// memory use during extraction.
	// Default: 1000
	PageSize int `yaml:"page_size"`

	// CompressionLevel is the gzip level (1-9, or -1 for default).
	// Default: -1
	CompressionLevel int `yaml:"compression_level"`

	// PagesPerSecond throttles extraction and deletion (0 = unlimited).
	// Default: 0
	PagesPerSecond float64 `yaml:"pages_per_second"`

	// LockStaleAfter allows a new run to take over a lock older than this
	// (0 = never).
	// Default: 6h
	LockStaleAfter time.Duration `yaml:"lock_stale_after"`
}

// GrowthConfig contains the size thresholds that flag a table for archiving.
// A zero threshold disables that dimension.
type GrowthConfig struct {
	// MaxRows flags tables with more rows than this.
	// Default: 1000000
	MaxRows int64 `yaml:"max_rows"`

	// MaxBytes flags tables larger than this many bytes.
	// Default: 1073741824 (1 GiB)
	MaxBytes int64 `yaml:"max_bytes"`
}

// RetentionConfig contains retention policies and scheduling.
type RetentionConfig struct {
	// Schedule is the cron expression for automatic archiving in serve mode.
	// Default: "0 3 * * *" (daily at 3 AM)
	Schedule string `yaml:"schedule"`

	// Concurrency bounds how many tables RunAuto archives in parallel.
	// Default: 2
	Concurrency int `yaml:"concurrency"`

	// Watch reloads policies when the configuration file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Policies maps table names to retention policies.
	Policies map[string]archive.RetentionPolicy `yaml:"policies"`
}

// SearchConfig contains archive search limits.
type SearchConfig struct {
	// DefaultLimit applies when a query sets no limit.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the largest accepted limit.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// MirrorConfig configures copying verified archives to S3-compatible storage.
type MirrorConfig struct {
	// Enabled turns mirroring on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Bucket is the destination bucket.
	Bucket string `yaml:"bucket"`

	// Region is the bucket region.
	// Default: "us-east-1"
	Region string `yaml:"region"`

	// Prefix is prepended to object keys.
	// Default: "archives/"
	Prefix string `yaml:"prefix"`

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack).
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle forces path-style addressing.
	UsePathStyle bool `yaml:"use_path_style"`

	// AccessKeyID and SecretAccessKey are static credentials, given inline
	// or as "env:NAME" / "file:/path" references. The
	// ARCHIVIST_MIRROR_ACCESS_KEY_ID and ARCHIVIST_MIRROR_SECRET_ACCESS_KEY
	// environment variables override both.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// Timeout bounds a single upload.
	// Default: 5m
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig contains configuration for the serve HTTP listener.
type ServerConfig struct {
	// ListenAddress is the address for metrics and health endpoints.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "archivist"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "engine"
	Subsystem string `yaml:"subsystem"`

	// RunDurationBuckets defines histogram buckets for archive run duration (seconds).
	// Default: [1, 5, 15, 60, 300, 900, 3600]
	RunDurationBuckets []float64 `yaml:"run_duration_buckets"`

	// SearchDurationBuckets defines histogram buckets for search duration (seconds).
	// Default: [0.01, 0.05, 0.1, 0.5, 1, 5, 30]
	SearchDurationBuckets []float64 `yaml:"search_duration_buckets"`
}
