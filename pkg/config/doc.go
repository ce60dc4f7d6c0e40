// Package config provides configuration management for Archivist.
//
// This package handles loading, validating, and reloading configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("archivist.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("archivist.yaml")
//
// A .env file in the working directory is loaded before overrides are
// applied. Variables already set in the environment win.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention ARCHIVIST_SECTION_FIELD.
// For example:
//
//   - ARCHIVIST_CATALOG_SQLITE_PATH overrides catalog.sqlite.path
//   - ARCHIVIST_ARCHIVE_PAGE_SIZE overrides archive.page_size
//   - ARCHIVIST_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Retention Policies
//
// Policies live under retention.policies, keyed by table name. PolicyStore
// serves them to the engine and can re-read them from the file. When
// retention.watch is set, FileWatcher triggers the reload on change.
package config
