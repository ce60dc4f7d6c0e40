package metrics

import (
	"sync"
	"time"

	"mercator-hq/archivist/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// OtherTable replaces table labels once the cardinality limit is reached.
const OtherTable = "other"

// Collector is the main orchestrator for all Prometheus metrics in Archivist.
// It manages metric registration and provides a unified interface for
// recording metrics across the engine.
//
// All methods are safe on a nil *Collector, so components can run without
// metrics.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	archiveMetrics *ArchiveMetrics
	searchMetrics  *SearchMetrics
	growthMetrics  *GrowthMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "archivist",
//		Subsystem: "engine",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RunDurationBuckets) == 0 {
		cfg.RunDurationBuckets = append([]float64(nil), config.DefaultRunDurationBuckets...)
	}
	if len(cfg.SearchDurationBuckets) == 0 {
		cfg.SearchDurationBuckets = append([]float64(nil), config.DefaultSearchDurationBuckets...)
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
		// Tables are operator-configured, so a small bound is plenty.
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.archiveMetrics = NewArchiveMetrics(cfg, registry)
	c.searchMetrics = NewSearchMetrics(cfg, registry)
	c.growthMetrics = NewGrowthMetrics(cfg, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// table returns the label to use for table, folding new tables into
// OtherTable past the cardinality limit.
func (c *Collector) table(table string) string {
	if !c.cardinalityLimiter.Allow(table) {
		return OtherTable
	}
	return table
}

// RecordArchiveRun records the outcome of one archive run.
//
// Parameters:
//   - table: Source table name
//   - outcome: Run outcome ("noop", "archived", "partial_deletion", "unverified", "error")
//   - duration: Wall time of the run
//   - records: Rows written to the archive file
//   - bytes: Size of the archive file
func (c *Collector) RecordArchiveRun(table, outcome string, duration time.Duration, records, bytes int64) {
	if !c.enabled() {
		return
	}

	c.archiveMetrics.RecordRun(c.table(table), outcome, duration, records, bytes)
}

// RecordDeletedRows records source rows removed after verification.
func (c *Collector) RecordDeletedRows(table string, rows int64) {
	if !c.enabled() || rows <= 0 {
		return
	}

	c.archiveMetrics.RecordDeleted(c.table(table), rows)
}

// RecordVerification records a verification result.
//
// Parameters:
//   - table: Source table name
//   - verified: true if the file matched the catalog
func (c *Collector) RecordVerification(table string, verified bool) {
	if !c.enabled() {
		return
	}

	c.archiveMetrics.RecordVerification(c.table(table), verified)
}

// RecordSearch records a completed or rejected search.
//
// Parameters:
//   - status: "success", "invalid" or "error"
//   - duration: Search duration
//   - archives: Number of archive files read
//   - matches: Number of matching rows counted
func (c *Collector) RecordSearch(status string, duration time.Duration, archives int, matches int64) {
	if !c.enabled() {
		return
	}

	c.searchMetrics.RecordSearch(status, duration, archives, matches)
}

// SetTableGrowth publishes the latest size sample of a table.
func (c *Collector) SetTableGrowth(table string, rows, bytes int64, needsArchive bool) {
	if !c.enabled() {
		return
	}

	c.growthMetrics.SetTable(c.table(table), rows, bytes, needsArchive)
}

// RecordAutoRun records one scheduled or manual auto-archive pass.
//
// Parameters:
//   - archived: Tables archived successfully
//   - skipped: Tables skipped (no policy, auto archive off, or not due)
//   - failed: Tables whose run returned an error
func (c *Collector) RecordAutoRun(archived, skipped, failed int) {
	if !c.enabled() {
		return
	}

	c.growthMetrics.RecordAutoRun(archived, skipped, failed)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the cardinality limit has not been reached.
func (cl *CardinalityLimiter) Allow(label string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[label]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[label]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[label] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
