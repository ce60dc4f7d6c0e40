package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mercator-hq/archivist/pkg/archive/engine"
	"mercator-hq/archivist/pkg/cli"
	"mercator-hq/archivist/pkg/config"
	"mercator-hq/archivist/pkg/telemetry/logging"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "archivist",
	Short: "Archivist - verified archiving for aged table rows",
	Long: `Archivist moves aged rows out of live database tables into compressed,
checksummed archive files and removes them from the source only after the
archive has been verified.

It provides:
  - Per-table retention policies with manual and automatic archiving
  - Growth tracking against row and size thresholds
  - Search over verified archives
  - Resumable source deletion after interrupted runs`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code describing the
// failure class.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus ARCHIVIST_* environment when empty)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "output format (text, json, csv)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig loads configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}

	logCfg := logging.FromConfig(cfg.Telemetry.Logging)
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	logger.SetDefault()

	return cfg, nil
}

// app is the state shared by commands that talk to the catalog and source.
type app struct {
	cfg      *config.Config
	svc      *engine.Service
	policies *config.PolicyStore
	metrics  *metrics.Collector
	format   cli.OutputFormat
}

// openApp loads configuration and opens the archiving service.
func openApp() (*app, error) {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	policies := config.NewPolicyStore(cfgFile, cfg.Retention.Policies)
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	svc, err := engine.Open(cfg, policies, collector)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		svc:      svc,
		policies: policies,
		metrics:  collector,
		format:   format,
	}, nil
}

func (a *app) Close() error {
	return a.svc.Close()
}

// output writes data in the selected format. text renders through textFn.
func (a *app) output(data any, textFn func()) error {
	switch a.format {
	case cli.FormatText:
		textFn()
		return nil
	default:
		return cli.NewFormatter(a.format).FormatTo(os.Stdout, data)
	}
}

// commandContext returns a context cancelled on SIGINT or SIGTERM and
// tagged with a fresh run ID.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := cli.SetupSignalHandler()
	ctx = logging.WithRunID(ctx, uuid.NewString())
	return logging.WithTrigger(ctx, "cli"), cancel
}
