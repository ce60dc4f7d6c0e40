package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RunIDKey is the context key for the ID of an archive run or
	// auto-archive pass.
	RunIDKey contextKey = "run_id"

	// TableKey is the context key for the source table being processed.
	TableKey contextKey = "table"

	// ArchiveUUIDKey is the context key for the archive being written or
	// verified.
	ArchiveUUIDKey contextKey = "archive_uuid"

	// TriggerKey is the context key for what started the run
	// ("cli", "schedule", "http").
	TriggerKey contextKey = "trigger"
)

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// WithTable adds a table name to the context.
func WithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, TableKey, table)
}

// GetTable retrieves the table name from the context.
func GetTable(ctx context.Context) string {
	if table, ok := ctx.Value(TableKey).(string); ok {
		return table
	}
	return ""
}

// WithArchiveUUID adds an archive UUID to the context.
func WithArchiveUUID(ctx context.Context, uuid string) context.Context {
	return context.WithValue(ctx, ArchiveUUIDKey, uuid)
}

// GetArchiveUUID retrieves the archive UUID from the context.
func GetArchiveUUID(ctx context.Context) string {
	if uuid, ok := ctx.Value(ArchiveUUIDKey).(string); ok {
		return uuid
	}
	return ""
}

// WithTrigger adds the run trigger to the context.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, TriggerKey, trigger)
}

// GetTrigger retrieves the run trigger from the context.
func GetTrigger(ctx context.Context) string {
	if trigger, ok := ctx.Value(TriggerKey).(string); ok {
		return trigger
	}
	return ""
}

// contextAttrs extracts the run fields stored in ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if runID := GetRunID(ctx); runID != "" {
		attrs = append(attrs, slog.String(string(RunIDKey), runID))
	}
	if trigger := GetTrigger(ctx); trigger != "" {
		attrs = append(attrs, slog.String(string(TriggerKey), trigger))
	}
	if table := GetTable(ctx); table != "" {
		attrs = append(attrs, slog.String(string(TableKey), table))
	}
	if uuid := GetArchiveUUID(ctx); uuid != "" {
		attrs = append(attrs, slog.String(string(ArchiveUUIDKey), uuid))
	}

	return attrs
}
