package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/archive/catalog"
	"mercator-hq/archivist/pkg/archive/engine"
	"mercator-hq/archivist/pkg/archive/retention"
	"mercator-hq/archivist/pkg/archive/source"
	"mercator-hq/archivist/pkg/config"
	"mercator-hq/archivist/pkg/telemetry/health"
	"mercator-hq/archivist/pkg/telemetry/logging"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

type fixture struct {
	router  http.Handler
	source  *source.MemorySource
	checker *health.Checker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.Archive.Directory = t.TempDir()
	cfg.Growth.MaxRows = 10

	cat := catalog.NewMemoryCatalog()
	src := source.NewMemorySource()
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	svc, err := engine.New(cfg, engine.Components{
		Catalog:  cat,
		Source:   src,
		Policies: archive.PolicyMap{"events": {ArchiveAfterDays: 30, AutoArchive: true}},
		Metrics:  collector,
	})
	require.NoError(t, err)

	checker := health.New(time.Second)
	checker.RegisterCheck("catalog", health.CatalogCheck(cat))

	router := NewRouter(RouterConfig{
		Archives:    svc,
		Health:      checker,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version:     "test",
	})

	return &fixture{router: router, source: src, checker: checker}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz").Code)

	f.checker.RegisterCheck("scheduler", func(ctx context.Context) error { return errors.New("scheduler not running") })

	rec := f.do(t, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status health.HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, health.StatusDegraded, status.Status)
	assert.Equal(t, health.StatusOK, status.Checks["catalog"].Status)
}

func TestRouter_AutoAndSummary(t *testing.T) {
	f := newFixture(t)

	old := time.Now().UTC().AddDate(0, 0, -60)
	for i := 1; i <= 20; i++ {
		require.NoError(t, f.source.Insert("events", archive.Row{
			"id":         int64(i),
			"created_at": old.Add(time.Duration(i) * time.Minute),
			"action":     "login",
		}))
	}

	rec := f.do(t, http.MethodPost, "/archives/auto")
	require.Equal(t, http.StatusOK, rec.Code)

	var result retention.AutoResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, []string{"events"}, result.Archived)
	assert.Equal(t, 0, f.source.Count("events"))

	rec = f.do(t, http.MethodGet, "/archives/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary engine.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, 1, summary.Archives)
	assert.Equal(t, int64(20), summary.Records)

	rec = f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "archivist_engine_archive_runs_total")
}

type failingArchives struct{}

func (failingArchives) GetArchiveSummary(ctx context.Context) (*engine.Summary, error) {
	return nil, archive.NewSourceError("", "list", errors.New("database is locked"))
}

func (failingArchives) RunAuto(ctx context.Context) (*retention.AutoResult, error) {
	if logging.GetTrigger(ctx) != "http" || logging.GetRunID(ctx) == "" {
		return nil, fmt.Errorf("missing run context")
	}
	return nil, errors.New("listing failed")
}

func TestRouter_Errors(t *testing.T) {
	router := NewRouter(RouterConfig{Archives: failingArchives{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archives/summary", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/archives/auto", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "listing failed", body["error"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := &config.ServerConfig{ListenAddress: "127.0.0.1:0", ShutdownTimeout: time.Second}
	srv := New(cfg, NewRouter(RouterConfig{Health: health.New(time.Second)}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, srv.IsRunning, time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.IsRunning())
}

func TestServer_ListenError(t *testing.T) {
	cfg := &config.ServerConfig{ListenAddress: "256.0.0.1:bad"}
	err := New(cfg, http.NotFoundHandler()).Start(context.Background())
	assert.Error(t, err)
}
