// Package logging configures structured logging for Archivist.
//
// The package wraps log/slog to provide JSON, text, and console formats, an
// adjustable level, and a handler that copies run fields from the context
// onto every record:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	logger.SetDefault()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithTable(ctx, "audit_logs")
//	slog.InfoContext(ctx, "Archive run started") // includes run_id and table
//
// Components log through slog.Default().With("component", ...), so they need
// no reference to this package.
package logging
