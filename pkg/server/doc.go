// Package server provides the operational HTTP server run by
// `archivist serve`.
//
// The server exposes health, metrics and a small archive API next to the
// retention scheduler:
//
//	srv := server.New(&cfg.Server, server.NewRouter(server.RouterConfig{
//	    Archives:    svc,
//	    Health:      checker,
//	    Metrics:     collector,
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	}))
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled or the listener fails, then shuts down
// gracefully within ServerConfig.ShutdownTimeout.
//
// # Routes
//
//   - GET /healthz, /readyz, /version: see package health
//   - GET <metrics path>: Prometheus metrics, when a collector is set
//   - GET /archives/summary: per-table archive summary
//   - POST /archives/auto: run an automatic archiving pass now
//
// # Middleware
//
// Requests pass through, outermost first: panic recovery, request ID,
// request logging.
package server
