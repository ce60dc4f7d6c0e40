package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"mercator-hq/archivist/pkg/archive/engine"
	"mercator-hq/archivist/pkg/archive/retention"
	"mercator-hq/archivist/pkg/telemetry/health"
	"mercator-hq/archivist/pkg/telemetry/logging"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

// Archives is the part of the archiving service exposed over HTTP.
type Archives interface {
	GetArchiveSummary(ctx context.Context) (*engine.Summary, error)
	RunAuto(ctx context.Context) (*retention.AutoResult, error)
}

// RouterConfig wires the router's dependencies.
type RouterConfig struct {
	Archives Archives
	Health   *health.Checker

	// Metrics is served at MetricsPath when non-nil.
	Metrics     *metrics.Collector
	MetricsPath string

	// Build information for /version.
	Version   string
	Commit    string
	BuildTime string
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(slog.Default().With("component", "server.http")))

	if cfg.Health != nil {
		cfg.Health.Mount(r, cfg.Version, cfg.Commit, cfg.BuildTime)
	}

	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, cfg.Metrics.Handler())
	}

	if cfg.Archives != nil {
		h := &archiveHandler{archives: cfg.Archives}
		r.Route("/archives", func(r chi.Router) {
			r.Get("/summary", h.summary)
			r.Post("/auto", h.auto)
		})
	}

	return r
}

type archiveHandler struct {
	archives Archives
}

func (h *archiveHandler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.archives.GetArchiveSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *archiveHandler) auto(w http.ResponseWriter, r *http.Request) {
	runID := middleware.GetReqID(r.Context())
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx := logging.WithTrigger(logging.WithRunID(r.Context(), runID), "http")

	result, err := h.archives.RunAuto(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requestLogger logs each request at debug level, and at warn for 5xx.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
