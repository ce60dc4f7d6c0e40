package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/archive/catalog"
	"mercator-hq/archivist/pkg/archive/growth"
	"mercator-hq/archivist/pkg/archive/mirror"
	"mercator-hq/archivist/pkg/archive/retention"
	"mercator-hq/archivist/pkg/archive/search"
	"mercator-hq/archivist/pkg/archive/source"
	"mercator-hq/archivist/pkg/archive/verifier"
	"mercator-hq/archivist/pkg/archive/writer"
	"mercator-hq/archivist/pkg/config"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

// Components are the backends a Service runs against.
type Components struct {
	// Catalog is required.
	Catalog archive.Catalog

	// Source is required.
	Source archive.TableSource

	// Policies supplies retention policies. Nil uses the policies in the
	// configuration.
	Policies archive.PolicySource

	// Mirror receives verified archives. Nil disables mirroring.
	Mirror writer.Mirror

	// Metrics may be nil.
	Metrics *metrics.Collector
}

// Service is the archiving engine exposed to the CLI and automation.
// All operations are synchronous and return typed results; formatting is
// left to the caller.
type Service struct {
	catalog  archive.Catalog
	source   archive.TableSource
	policies archive.PolicySource
	writer   *writer.Writer
	verifier *verifier.Verifier
	search   *search.Engine
	tracker  *growth.Tracker
	runner   *retention.Runner
	metrics  *metrics.Collector
	closers  []io.Closer
	logger   *slog.Logger
	now      func() time.Time
}

// New assembles a Service from configuration and already opened backends.
// The caller keeps ownership of the backends.
func New(cfg *config.Config, c Components) (*Service, error) {
	if c.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if c.Source == nil {
		return nil, fmt.Errorf("source is required")
	}

	policies := c.Policies
	if policies == nil {
		policies = archive.PolicyMap(cfg.Retention.Policies)
	}

	v := verifier.New(c.Catalog, c.Metrics)

	s := &Service{
		catalog:  c.Catalog,
		source:   c.Source,
		policies: policies,
		verifier: v,
		metrics:  c.Metrics,
		logger:   slog.Default().With("component", "archive.engine"),
		now:      time.Now,
	}

	s.writer = writer.New(writer.Config{
		Directory:        cfg.Archive.Directory,
		PageSize:         cfg.Archive.PageSize,
		CompressionLevel: cfg.Archive.CompressionLevel,
		PagesPerSecond:   cfg.Archive.PagesPerSecond,
		LockStaleAfter:   cfg.Archive.LockStaleAfter,
	}, c.Catalog, c.Source, v, writer.Options{
		Specs:   cfg.Source.TableSpec,
		Mirror:  c.Mirror,
		Metrics: c.Metrics,
	})

	s.search = search.New(c.Catalog, search.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, c.Metrics)

	s.tracker = growth.NewTracker(growth.NewProbe(c.Source, c.Catalog), c.Catalog, policies, growth.Thresholds{
		MaxRows:  cfg.Growth.MaxRows,
		MaxBytes: cfg.Growth.MaxBytes,
	}, c.Metrics)

	// Automatic runs go through the service so they re-sample growth too.
	s.runner = retention.NewRunner(s, s.tracker, policies, cfg.Retention.Concurrency, c.Metrics)

	return s, nil
}

// Open opens the catalog, source and optional mirror named in cfg and
// assembles a Service that owns them. Close releases them.
func Open(cfg *config.Config, policies archive.PolicySource, collector *metrics.Collector) (*Service, error) {
	cat, err := catalog.Open(cfg.Catalog.Backend, &catalog.SQLiteConfig{
		Path:         cfg.Catalog.SQLite.Path,
		MaxOpenConns: cfg.Catalog.SQLite.MaxOpenConns,
		WALMode:      cfg.Catalog.SQLite.WALMode,
		BusyTimeout:  cfg.Catalog.SQLite.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	src, err := source.OpenSQLite(source.SQLiteConfig{
		Path:         cfg.Source.Path,
		BusyTimeout:  cfg.Source.BusyTimeout,
		MaxOpenConns: cfg.Source.MaxOpenConns,
		TimeFormat:   cfg.Source.TimeFormat,
	})
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("failed to open source: %w", err)
	}

	c := Components{
		Catalog:  cat,
		Source:   src,
		Policies: policies,
		Metrics:  collector,
	}

	if cfg.Mirror.Enabled {
		m, err := mirror.NewS3Mirror(cfg.Mirror)
		if err != nil {
			src.Close()
			cat.Close()
			return nil, fmt.Errorf("failed to configure mirror: %w", err)
		}
		c.Mirror = m
	}

	s, err := New(cfg, c)
	if err != nil {
		src.Close()
		cat.Close()
		return nil, err
	}
	s.closers = []io.Closer{src, cat}
	return s, nil
}

// Close releases backends opened by Open.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Catalog returns the archive catalog, for health checks.
func (s *Service) Catalog() archive.Catalog {
	return s.catalog
}

// Runner returns the automatic archiving runner, for scheduling.
func (s *Service) Runner() *retention.Runner {
	return s.runner
}

// ArchiveTable archives rows of table older than cutoff. On success the
// table's growth is re-sampled so it is no longer flagged.
func (s *Service) ArchiveTable(ctx context.Context, table string, cutoff time.Time) (*archive.ArchiveResult, error) {
	result, err := s.writer.ArchiveTable(ctx, table, cutoff)
	if err == nil {
		if _, trackErr := s.tracker.Track(context.WithoutCancel(ctx), table); trackErr != nil {
			s.logger.WarnContext(ctx, "Failed to re-sample table growth after archiving",
				"table", table,
				"error", trackErr,
			)
		}
	}
	return result, err
}

// PolicyCutoff returns the cutoff for table derived from its retention
// policy, or false if the table has no policy.
func (s *Service) PolicyCutoff(table string) (time.Time, bool) {
	policy, ok := s.policies.Policy(table)
	if !ok {
		return time.Time{}, false
	}
	return policy.Cutoff(s.now()), true
}

// ResumeDeletion continues an incomplete source deletion of a verified
// archive.
func (s *Service) ResumeDeletion(ctx context.Context, uuid string) (*archive.ArchiveResult, error) {
	return s.writer.ResumeDeletion(ctx, uuid)
}

// VerifyArchive re-verifies an archive file against its catalog entry.
func (s *Service) VerifyArchive(ctx context.Context, uuid string) (bool, error) {
	return s.verifier.Verify(ctx, uuid)
}

// SearchArchives runs a query over verified archives.
func (s *Service) SearchArchives(ctx context.Context, q *archive.SearchQuery) (*archive.SearchResult, error) {
	return s.search.Search(ctx, q)
}

// GetTablesNeedingArchival returns policy tables flagged by growth
// thresholds or archive age.
func (s *Service) GetTablesNeedingArchival(ctx context.Context) ([]string, error) {
	return s.tracker.ListTablesNeedingArchival(ctx)
}

// TrackTableGrowth samples table and stores a new growth snapshot.
func (s *Service) TrackTableGrowth(ctx context.Context, table string) (*archive.TableGrowthSnapshot, error) {
	return s.tracker.Track(ctx, table)
}

// GetTableArchives lists the archives of table, most recent first. A limit
// of zero returns all of them.
func (s *Service) GetTableArchives(ctx context.Context, table string, limit int) ([]*archive.ArchiveRecord, error) {
	if err := archive.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	return s.catalog.List(ctx, &archive.RecordFilter{Table: table, Limit: limit})
}

// GetArchive returns one catalog entry.
func (s *Service) GetArchive(ctx context.Context, uuid string) (*archive.ArchiveRecord, error) {
	return s.catalog.Get(ctx, uuid)
}

// RunAuto archives every flagged table whose policy enables auto-archive.
func (s *Service) RunAuto(ctx context.Context) (*retention.AutoResult, error) {
	return s.runner.RunAuto(ctx)
}
