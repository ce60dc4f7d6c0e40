package retention

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/telemetry/logging"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

// DefaultConcurrency is the number of tables archived in parallel when the
// configuration does not set one.
const DefaultConcurrency = 2

// Archiver runs one archive run.
type Archiver interface {
	ArchiveTable(ctx context.Context, table string, cutoff time.Time) (*archive.ArchiveResult, error)
}

// Lister reports which tables currently need archiving.
type Lister interface {
	ListTablesNeedingArchival(ctx context.Context) ([]string, error)
}

// TableError records why one table failed during an automatic pass.
type TableError struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// AutoResult summarizes an automatic archiving pass.
type AutoResult struct {
	// Archived lists tables whose run succeeded, including runs that found
	// nothing to archive.
	Archived []string `json:"archived"`

	// Skipped lists flagged tables without a policy or with auto-archive off.
	Skipped []string `json:"skipped"`

	// Errors lists tables whose run failed. One failure never stops the
	// others.
	Errors []TableError `json:"errors"`

	// Results holds the archive result of every attempted table.
	Results []*archive.ArchiveResult `json:"results"`
}

// Runner drives automatic archiving across all flagged tables.
type Runner struct {
	archiver    Archiver
	lister      Lister
	policies    archive.PolicySource
	concurrency int
	metrics     *metrics.Collector
	logger      *slog.Logger
	now         func() time.Time
}

// NewRunner creates a runner. concurrency bounds parallel table runs.
// collector may be nil.
func NewRunner(archiver Archiver, lister Lister, policies archive.PolicySource, concurrency int, collector *metrics.Collector) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{
		archiver:    archiver,
		lister:      lister,
		policies:    policies,
		concurrency: concurrency,
		metrics:     collector,
		logger:      slog.Default().With("component", "archive.retention"),
		now:         time.Now,
	}
}

// RunAuto archives every table flagged by the lister whose policy enables
// auto-archive, using cutoff = now - archiveAfterDays. The returned error is
// reserved for failing to list tables; per-table failures, including a run
// already in progress, are reported in AutoResult.Errors.
func (r *Runner) RunAuto(ctx context.Context) (*AutoResult, error) {
	if logging.GetRunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}

	tables, err := r.lister.ListTablesNeedingArchival(ctx)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "Automatic archiving started", "flagged_tables", len(tables))

	result := &AutoResult{
		Archived: []string{},
		Skipped:  []string{},
		Errors:   []TableError{},
		Results:  []*archive.ArchiveResult{},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	now := r.now()
	for _, table := range tables {
		policy, ok := r.policies.Policy(table)
		if !ok || !policy.AutoArchive {
			result.Skipped = append(result.Skipped, table)
			r.logger.DebugContext(ctx, "Skipping table without auto-archive policy", "table", table)
			continue
		}

		cutoff := policy.Cutoff(now)
		g.Go(func() error {
			// Per-table failures are collected, never returned, so one table
			// cannot cancel the others.
			res, err := r.archiver.ArchiveTable(gctx, table, cutoff)

			mu.Lock()
			defer mu.Unlock()

			if res != nil {
				result.Results = append(result.Results, res)
			}
			if err != nil {
				result.Errors = append(result.Errors, TableError{Table: table, Reason: err.Error(), Err: err})
				return nil
			}
			result.Archived = append(result.Archived, table)
			return nil
		})
	}
	// Failures land in result; the goroutines never return an error.
	g.Wait()

	sort.Strings(result.Archived)
	sort.Strings(result.Skipped)
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Table < result.Errors[j].Table })
	sort.Slice(result.Results, func(i, j int) bool { return result.Results[i].Table < result.Results[j].Table })

	r.metrics.RecordAutoRun(len(result.Archived), len(result.Skipped), len(result.Errors))

	r.logger.InfoContext(ctx, "Automatic archiving completed",
		"archived", len(result.Archived),
		"skipped", len(result.Skipped),
		"failed", len(result.Errors),
	)

	return result, nil
}
