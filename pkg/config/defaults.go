package config

import "time"

// Default values for configuration fields.
const (
	// Catalog defaults
	DefaultCatalogBackend      = "sqlite"
	DefaultCatalogSQLitePath   = "data/catalog.db"
	DefaultCatalogMaxOpenConns = 4
	DefaultCatalogWALMode      = true
	DefaultCatalogBusyTimeout  = 5 * time.Second

	// Source defaults
	DefaultSourceDriver       = "sqlite"
	DefaultSourceMaxOpenConns = 4
	DefaultSourceBusyTimeout  = 5 * time.Second
	DefaultSourceTimeFormat   = "2006-01-02 15:04:05"

	// Archive defaults
	DefaultArchiveDirectory        = "data/archives"
	DefaultArchivePageSize         = 1000
	DefaultArchiveCompressionLevel = -1
	DefaultArchiveLockStaleAfter   = 6 * time.Hour

	// Growth defaults
	DefaultGrowthMaxRows  = int64(1000000)
	DefaultGrowthMaxBytes = int64(1 << 30)

	// Retention defaults
	DefaultRetentionSchedule    = "0 3 * * *"
	DefaultRetentionConcurrency = 2

	// Search defaults
	DefaultSearchDefaultLimit = 100
	DefaultSearchMaxLimit     = 10000

	// Mirror defaults
	DefaultMirrorRegion  = "us-east-1"
	DefaultMirrorPrefix  = "archives/"
	DefaultMirrorTimeout = 5 * time.Minute

	// Server defaults
	DefaultServerListenAddress   = "127.0.0.1:9090"
	DefaultServerShutdownTimeout = 30 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "archivist"
	DefaultMetricsSubsystem = "engine"
)

// Default histogram buckets.
var (
	DefaultRunDurationBuckets    = []float64{1, 5, 15, 60, 300, 900, 3600}
	DefaultSearchDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30}
)

// NewDefaultConfig returns a configuration with every default applied.
// LoadConfig decodes YAML on top of it, so boolean defaults survive when a
// file omits the field.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Catalog: CatalogConfig{
			SQLite: SQLiteConfig{WALMode: DefaultCatalogWALMode},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults. Boolean fields are
// left as configured.
func ApplyDefaults(cfg *Config) {
	// Catalog defaults
	if cfg.Catalog.Backend == "" {
		cfg.Catalog.Backend = DefaultCatalogBackend
	}
	if cfg.Catalog.SQLite.Path == "" {
		cfg.Catalog.SQLite.Path = DefaultCatalogSQLitePath
	}
	if cfg.Catalog.SQLite.MaxOpenConns == 0 {
		cfg.Catalog.SQLite.MaxOpenConns = DefaultCatalogMaxOpenConns
	}
	if cfg.Catalog.SQLite.BusyTimeout == 0 {
		cfg.Catalog.SQLite.BusyTimeout = DefaultCatalogBusyTimeout
	}

	// Source defaults
	if cfg.Source.Driver == "" {
		cfg.Source.Driver = DefaultSourceDriver
	}
	if cfg.Source.MaxOpenConns == 0 {
		cfg.Source.MaxOpenConns = DefaultSourceMaxOpenConns
	}
	if cfg.Source.BusyTimeout == 0 {
		cfg.Source.BusyTimeout = DefaultSourceBusyTimeout
	}
	if cfg.Source.TimeFormat == "" {
		cfg.Source.TimeFormat = DefaultSourceTimeFormat
	}

	// Archive defaults
	if cfg.Archive.Directory == "" {
		cfg.Archive.Directory = DefaultArchiveDirectory
	}
	if cfg.Archive.PageSize == 0 {
		cfg.Archive.PageSize = DefaultArchivePageSize
	}
	if cfg.Archive.CompressionLevel == 0 {
		cfg.Archive.CompressionLevel = DefaultArchiveCompressionLevel
	}
	if cfg.Archive.LockStaleAfter == 0 {
		cfg.Archive.LockStaleAfter = DefaultArchiveLockStaleAfter
	}

	// Growth defaults
	if cfg.Growth.MaxRows == 0 {
		cfg.Growth.MaxRows = DefaultGrowthMaxRows
	}
	if cfg.Growth.MaxBytes == 0 {
		cfg.Growth.MaxBytes = DefaultGrowthMaxBytes
	}

	// Retention defaults
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.Retention.Concurrency == 0 {
		cfg.Retention.Concurrency = DefaultRetentionConcurrency
	}
	for table, policy := range cfg.Retention.Policies {
		policy.Table = table
		cfg.Retention.Policies[table] = policy
	}

	// Search defaults
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = DefaultSearchDefaultLimit
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = DefaultSearchMaxLimit
	}

	// Mirror defaults
	if cfg.Mirror.Region == "" {
		cfg.Mirror.Region = DefaultMirrorRegion
	}
	if cfg.Mirror.Prefix == "" {
		cfg.Mirror.Prefix = DefaultMirrorPrefix
	}
	if cfg.Mirror.Timeout == 0 {
		cfg.Mirror.Timeout = DefaultMirrorTimeout
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultServerListenAddress
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RunDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RunDurationBuckets = append([]float64(nil), DefaultRunDurationBuckets...)
	}
	if len(cfg.Telemetry.Metrics.SearchDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.SearchDurationBuckets = append([]float64(nil), DefaultSearchDurationBuckets...)
	}
}
