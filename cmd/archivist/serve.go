package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/archivist/pkg/archive/retention"
	"mercator-hq/archivist/pkg/cli"
	"mercator-hq/archivist/pkg/config"
	"mercator-hq/archivist/pkg/server"
	"mercator-hq/archivist/pkg/telemetry/health"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

var serveFlags struct {
	listenAddress string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled archiving with metrics and health endpoints",
	Long: `Run automatic archiving on the retention schedule and serve operational
endpoints until interrupted.

Endpoints:
  GET  /healthz            - liveness
  GET  /readyz             - catalog, archive directory and scheduler checks
  GET  /version            - build information
  GET  /metrics            - Prometheus metrics (telemetry.metrics.path)
  GET  /archives/summary   - per-table archive summary
  POST /archives/auto      - run an automatic archiving pass now

When retention.watch is set, retention policies are reloaded when the
config file changes.

Examples:
  archivist serve --config /etc/archivist/config.yaml
  archivist serve --listen 0.0.0.0:9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if serveFlags.listenAddress != "" {
		a.cfg.Server.ListenAddress = serveFlags.listenAddress
	}

	ctx, cancel := cli.SetupSignalHandler()
	defer cancel()

	scheduler := retention.NewScheduler(a.svc.Runner(), a.cfg.Retention.Schedule)
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewConfigError("retention.schedule", err.Error())
	}
	defer scheduler.Stop()

	if a.cfg.Retention.Watch && cfgFile != "" {
		watcher, err := config.NewFileWatcher(cfgFile, 0)
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer watcher.Stop()

		go func() {
			if err := watcher.Watch(ctx, a.policies.Reload); err != nil {
				slog.Error("Policy watcher stopped", "error", err)
			}
		}()
	}

	checker := health.New(5 * time.Second)
	checker.RegisterCheck("catalog", health.CatalogCheck(a.svc.Catalog()))
	checker.RegisterCheck("archive_directory", health.DirectoryCheck(a.cfg.Archive.Directory))
	if a.cfg.Retention.Schedule != "" {
		checker.RegisterCheck("scheduler", health.SchedulerCheck(scheduler.IsRunning))
		checker.RegisterDetail("scheduler", health.NextRunDetail(scheduler.NextRun))
	}

	router := server.NewRouter(server.RouterConfig{
		Archives:    a.svc,
		Health:      checker,
		Metrics:     metricsCollector(a),
		MetricsPath: a.cfg.Telemetry.Metrics.Path,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})

	srv := server.New(&a.cfg.Server, router)
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}

	fmt.Println("✓ Archivist stopped")
	return nil
}

// metricsCollector returns the collector to expose, or nil when metrics are
// disabled.
func metricsCollector(a *app) *metrics.Collector {
	if !a.cfg.Telemetry.Metrics.Enabled {
		return nil
	}
	return a.metrics
}
