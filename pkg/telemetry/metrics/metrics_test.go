package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/archivist/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:               true,
		Namespace:             "test",
		Subsystem:             "archive",
		RunDurationBuckets:    []float64{1, 10, 60},
		SearchDurationBuckets: []float64{0.1, 1},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector.config != cfg {
		t.Error("Collector config not set correctly")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	NewCollector(cfg, nil)

	if cfg.Namespace != "archivist" || cfg.Subsystem != "engine" {
		t.Errorf("namespace/subsystem = %q/%q", cfg.Namespace, cfg.Subsystem)
	}
	if len(cfg.RunDurationBuckets) == 0 || len(cfg.SearchDurationBuckets) == 0 {
		t.Error("expected default buckets")
	}
}

func TestCollector_RecordArchiveRun(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordArchiveRun("audit_logs", "archived", 2*time.Second, 1000, 4096)
	collector.RecordArchiveRun("audit_logs", "archived", 3*time.Second, 500, 2048)
	collector.RecordArchiveRun("audit_logs", "noop", time.Millisecond, 0, 0)

	am := collector.archiveMetrics
	if got := testutil.ToFloat64(am.runsTotal.WithLabelValues("audit_logs", "archived")); got != 2 {
		t.Errorf("archived runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(am.runsTotal.WithLabelValues("audit_logs", "noop")); got != 1 {
		t.Errorf("noop runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(am.recordsTotal.WithLabelValues("audit_logs")); got != 1500 {
		t.Errorf("records = %v, want 1500", got)
	}
	if got := testutil.ToFloat64(am.bytesTotal.WithLabelValues("audit_logs")); got != 6144 {
		t.Errorf("bytes = %v, want 6144", got)
	}
	if got := testutil.CollectAndCount(am.runDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestCollector_RecordDeletedAndVerification(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordDeletedRows("sessions", 300)
	collector.RecordDeletedRows("sessions", 0)
	collector.RecordVerification("sessions", true)
	collector.RecordVerification("sessions", false)
	collector.RecordVerification("sessions", false)

	am := collector.archiveMetrics
	if got := testutil.ToFloat64(am.deletedTotal.WithLabelValues("sessions")); got != 300 {
		t.Errorf("deleted = %v, want 300", got)
	}
	if got := testutil.ToFloat64(am.verificationsTotal.WithLabelValues("sessions", "failed")); got != 2 {
		t.Errorf("failed verifications = %v, want 2", got)
	}
}

func TestCollector_RecordSearch(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordSearch("success", 200*time.Millisecond, 3, 120)
	collector.RecordSearch("invalid", 0, 0, 0)

	sm := collector.searchMetrics
	if got := testutil.ToFloat64(sm.searchesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("successful searches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sm.archivesScanned); got != 3 {
		t.Errorf("archives scanned = %v, want 3", got)
	}
	if got := testutil.ToFloat64(sm.matchesTotal); got != 120 {
		t.Errorf("matches = %v, want 120", got)
	}
}

func TestCollector_Growth(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.SetTableGrowth("audit_logs", 2000000, 1<<31, true)
	collector.SetTableGrowth("audit_logs", 10, 4096, false)
	collector.RecordAutoRun(1, 2, 0)

	gm := collector.growthMetrics
	if got := testutil.ToFloat64(gm.tableRows.WithLabelValues("audit_logs")); got != 10 {
		t.Errorf("rows = %v, want latest sample 10", got)
	}
	if got := testutil.ToFloat64(gm.needsArchive.WithLabelValues("audit_logs")); got != 0 {
		t.Errorf("needs archive = %v, want 0", got)
	}
	if got := testutil.ToFloat64(gm.autoRunsTables.WithLabelValues("skipped")); got != 2 {
		t.Errorf("skipped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(gm.autoRunsTotal); got != 1 {
		t.Errorf("auto runs = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordArchiveRun("audit_logs", "archived", time.Second, 10, 10)
	collector.RecordSearch("success", time.Second, 1, 1)

	if got := testutil.ToFloat64(collector.archiveMetrics.runsTotal.WithLabelValues("audit_logs", "archived")); got != 0 {
		t.Errorf("disabled collector recorded %v runs", got)
	}
}

func TestCollector_Nil(t *testing.T) {
	var collector *Collector

	// None of these may panic.
	collector.RecordArchiveRun("t", "archived", time.Second, 1, 1)
	collector.RecordDeletedRows("t", 1)
	collector.RecordVerification("t", true)
	collector.RecordSearch("success", time.Second, 1, 1)
	collector.SetTableGrowth("t", 1, 1, false)
	collector.RecordAutoRun(1, 0, 0)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCollector_TableCardinality(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.cardinalityLimiter = NewCardinalityLimiter(2)

	collector.RecordDeletedRows("a", 1)
	collector.RecordDeletedRows("b", 1)
	collector.RecordDeletedRows("c", 1)
	collector.RecordDeletedRows("d", 1)

	if got := testutil.ToFloat64(collector.archiveMetrics.deletedTotal.WithLabelValues(OtherTable)); got != 2 {
		t.Errorf("other = %v, want 2", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("first two labels should be allowed")
	}
	if cl.Allow("c") {
		t.Error("third label should be rejected")
	}
	if !cl.Allow("a") {
		t.Error("existing label should stay allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d, want 2", cl.Count())
	}
}

func TestHandler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordArchiveRun("audit_logs", "archived", time.Second, 10, 100)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `test_archive_archive_runs_total{outcome="archived",table="audit_logs"} 1`) {
		t.Errorf("metrics output missing run counter:\n%s", body)
	}
}
