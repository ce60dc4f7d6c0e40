// Package health provides liveness and readiness endpoints for
// `archivist serve`.
//
// Readiness aggregates component checks run concurrently with a per-check
// timeout. Archivist registers checks for the catalog, the archive directory
// and the auto-archive scheduler:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("catalog", health.CatalogCheck(cat))
//	checker.RegisterCheck("archive_directory", health.DirectoryCheck(cfg.Archive.Directory))
//	checker.RegisterCheck("scheduler", health.SchedulerCheck(scheduler.IsRunning))
//
//	r := chi.NewRouter()
//	checker.Mount(r, version, commit, buildDate)
//
// Endpoints:
//
//   - /healthz: the process is running
//   - /readyz: all component checks pass (503 otherwise)
//   - /version: build information
package health
