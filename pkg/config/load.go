package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "ARCHIVIST_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults and fills remaining zero values.
// It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables in a .env file in the working
// directory are loaded first without replacing variables already set.
// Environment variables follow the naming convention ARCHIVIST_SECTION_FIELD
// (e.g., ARCHIVIST_CATALOG_SQLITE_PATH) and take precedence over the file.
//
// The loading sequence is:
// 1. Load .env (if present)
// 2. Load YAML from file
// 3. Apply default values
// 4. Apply environment variable overrides
// 5. Validate final configuration
//
// An empty path skips the file and starts from defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Catalog overrides
	envString("CATALOG_BACKEND", &cfg.Catalog.Backend)
	envString("CATALOG_SQLITE_PATH", &cfg.Catalog.SQLite.Path)
	envInt("CATALOG_SQLITE_MAX_OPEN_CONNS", &cfg.Catalog.SQLite.MaxOpenConns)
	envBool("CATALOG_SQLITE_WAL_MODE", &cfg.Catalog.SQLite.WALMode)
	envDuration("CATALOG_SQLITE_BUSY_TIMEOUT", &cfg.Catalog.SQLite.BusyTimeout)

	// Source overrides
	envString("SOURCE_DRIVER", &cfg.Source.Driver)
	envString("SOURCE_PATH", &cfg.Source.Path)
	envInt("SOURCE_MAX_OPEN_CONNS", &cfg.Source.MaxOpenConns)
	envDuration("SOURCE_BUSY_TIMEOUT", &cfg.Source.BusyTimeout)
	envString("SOURCE_TIME_FORMAT", &cfg.Source.TimeFormat)

	// Archive overrides
	envString("ARCHIVE_DIRECTORY", &cfg.Archive.Directory)
	envInt("ARCHIVE_PAGE_SIZE", &cfg.Archive.PageSize)
	envInt("ARCHIVE_COMPRESSION_LEVEL", &cfg.Archive.CompressionLevel)
	if val := os.Getenv(EnvPrefix + "ARCHIVE_PAGES_PER_SECOND"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Archive.PagesPerSecond = f
		}
	}
	envDuration("ARCHIVE_LOCK_STALE_AFTER", &cfg.Archive.LockStaleAfter)

	// Growth overrides
	envInt64("GROWTH_MAX_ROWS", &cfg.Growth.MaxRows)
	envInt64("GROWTH_MAX_BYTES", &cfg.Growth.MaxBytes)

	// Retention overrides
	envString("RETENTION_SCHEDULE", &cfg.Retention.Schedule)
	envInt("RETENTION_CONCURRENCY", &cfg.Retention.Concurrency)
	envBool("RETENTION_WATCH", &cfg.Retention.Watch)

	// Search overrides
	envInt("SEARCH_DEFAULT_LIMIT", &cfg.Search.DefaultLimit)
	envInt("SEARCH_MAX_LIMIT", &cfg.Search.MaxLimit)

	// Mirror overrides
	envBool("MIRROR_ENABLED", &cfg.Mirror.Enabled)
	envString("MIRROR_BUCKET", &cfg.Mirror.Bucket)
	envString("MIRROR_REGION", &cfg.Mirror.Region)
	envString("MIRROR_PREFIX", &cfg.Mirror.Prefix)
	envString("MIRROR_ENDPOINT", &cfg.Mirror.Endpoint)
	envBool("MIRROR_USE_PATH_STYLE", &cfg.Mirror.UsePathStyle)
	envString("MIRROR_ACCESS_KEY_ID", &cfg.Mirror.AccessKeyID)
	envString("MIRROR_SECRET_ACCESS_KEY", &cfg.Mirror.SecretAccessKey)
	envDuration("MIRROR_TIMEOUT", &cfg.Mirror.Timeout)

	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envString("TELEMETRY_METRICS_NAMESPACE", &cfg.Telemetry.Metrics.Namespace)
}

// Malformed override values are ignored and the file value kept.

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envInt64(key string, dst *int64) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
