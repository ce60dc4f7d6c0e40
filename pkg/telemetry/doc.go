// Package telemetry groups Archivist's observability packages.
//
//   - logging: slog configuration and run-scoped context fields
//   - metrics: Prometheus collectors for archive runs, search and growth
//   - health: liveness and readiness checks served by `archivist serve`
//
// Components never import these packages for logging; they log through
// slog.Default(), which cmd/archivist configures at startup.
package telemetry
