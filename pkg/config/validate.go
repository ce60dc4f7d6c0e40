package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/archivist/pkg/archive"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "archive.page_size").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateCatalog(&cfg.Catalog)...)
	errs = append(errs, validateSource(&cfg.Source)...)
	errs = append(errs, validateArchive(&cfg.Archive)...)
	errs = append(errs, validateGrowth(&cfg.Growth)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateSearch(&cfg.Search)...)
	errs = append(errs, validateMirror(&cfg.Mirror)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateCatalog validates catalog configuration.
func validateCatalog(cfg *CatalogConfig) []FieldError {
	var errs []FieldError

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "catalog.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" {
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "catalog.sqlite.path",
				Message: "SQLite path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{
				Field:   "catalog.sqlite.max_open_conns",
				Message: "max open connections must be at least 1",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "catalog.sqlite.busy_timeout",
				Message: "busy timeout must be non-negative",
			})
		}
	}

	return errs
}

// validateSource validates live source configuration. The database path is
// checked when the source is opened, since read-only commands do not need it.
func validateSource(cfg *SourceConfig) []FieldError {
	var errs []FieldError

	if cfg.Driver != "sqlite" {
		errs = append(errs, FieldError{
			Field:   "source.driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite'", cfg.Driver),
		})
	}

	if cfg.MaxOpenConns < 1 {
		errs = append(errs, FieldError{
			Field:   "source.max_open_conns",
			Message: "max open connections must be at least 1",
		})
	}

	for table, cols := range cfg.Tables {
		if err := archive.ValidateIdentifier(table); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("source.tables.%s", table),
				Message: err.Error(),
			})
		}
		for field, col := range map[string]string{"timestamp_column": cols.TimestampColumn, "cursor_column": cols.CursorColumn} {
			if col == "" {
				continue
			}
			if err := archive.ValidateIdentifier(col); err != nil {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("source.tables.%s.%s", table, field),
					Message: err.Error(),
				})
			}
		}
	}

	return errs
}

// validateArchive validates archive run configuration.
func validateArchive(cfg *ArchiveConfig) []FieldError {
	var errs []FieldError

	if cfg.Directory == "" {
		errs = append(errs, FieldError{
			Field:   "archive.directory",
			Message: "archive directory is required",
		})
	}

	if cfg.PageSize < 1 || cfg.PageSize > 100000 {
		errs = append(errs, FieldError{
			Field:   "archive.page_size",
			Message: "page size must be between 1 and 100000",
		})
	}

	if cfg.CompressionLevel != -1 && (cfg.CompressionLevel < 1 || cfg.CompressionLevel > 9) {
		errs = append(errs, FieldError{
			Field:   "archive.compression_level",
			Message: "compression level must be -1 or between 1 and 9",
		})
	}

	if cfg.PagesPerSecond < 0 {
		errs = append(errs, FieldError{
			Field:   "archive.pages_per_second",
			Message: "pages per second must be non-negative",
		})
	}

	if cfg.LockStaleAfter < 0 {
		errs = append(errs, FieldError{
			Field:   "archive.lock_stale_after",
			Message: "lock stale duration must be non-negative",
		})
	}

	return errs
}

// validateGrowth validates growth thresholds.
func validateGrowth(cfg *GrowthConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxRows < 0 {
		errs = append(errs, FieldError{
			Field:   "growth.max_rows",
			Message: "max rows must be non-negative",
		})
	}
	if cfg.MaxBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "growth.max_bytes",
			Message: "max bytes must be non-negative",
		})
	}

	return errs
}

// validateRetention validates retention scheduling and policies.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "retention.schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
		})
	}

	if cfg.Concurrency < 1 || cfg.Concurrency > 64 {
		errs = append(errs, FieldError{
			Field:   "retention.concurrency",
			Message: "concurrency must be between 1 and 64",
		})
	}

	errs = append(errs, ValidatePolicies(cfg.Policies)...)

	return errs
}

// ValidatePolicies validates a table to policy mapping.
func ValidatePolicies(policies map[string]archive.RetentionPolicy) []FieldError {
	var errs []FieldError

	for table, policy := range policies {
		if err := archive.ValidateIdentifier(table); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("retention.policies.%s", table),
				Message: err.Error(),
			})
		}
		if policy.ArchiveAfterDays < 1 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("retention.policies.%s.archive_after_days", table),
				Message: "archive after days must be at least 1",
			})
		}
		if policy.ArchiveAfterDays > 36500 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("retention.policies.%s.archive_after_days", table),
				Message: "archive after days exceeds reasonable limit (36500 days / 100 years)",
			})
		}
	}

	return errs
}

// validateSearch validates search limits.
func validateSearch(cfg *SearchConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultLimit < 1 {
		errs = append(errs, FieldError{
			Field:   "search.default_limit",
			Message: "default limit must be at least 1",
		})
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		errs = append(errs, FieldError{
			Field:   "search.max_limit",
			Message: "max limit must be greater than or equal to default limit",
		})
	}

	return errs
}

// validateMirror validates offsite mirror configuration.
func validateMirror(cfg *MirrorConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if cfg.Bucket == "" {
		errs = append(errs, FieldError{
			Field:   "mirror.bucket",
			Message: "S3 bucket is required when mirroring is enabled",
		})
	}
	if cfg.Region == "" {
		errs = append(errs, FieldError{
			Field:   "mirror.region",
			Message: "S3 region is required when mirroring is enabled",
		})
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		errs = append(errs, FieldError{
			Field:   "mirror.access_key_id",
			Message: "access key id and secret access key must be set together",
		})
	}

	return errs
}

// validateServer validates the serve listener.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	return errs
}
