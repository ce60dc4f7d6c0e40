package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mercator-hq/archivist/pkg/archive"
)

// CheckFunc performs a health check for a component. It returns nil if the
// component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// DetailFunc returns informational text attached to a check result. An
// empty string adds nothing.
type DetailFunc func() string

// Check statuses.
const (
	StatusOK        = "ok"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Status is "ok" or "unhealthy".
	Status string `json:"status"`

	// Message describes the problem for an unhealthy check.
	Message string `json:"message,omitempty"`

	// Detail is informational text from the check's DetailFunc.
	Detail string `json:"detail,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// HealthStatus represents the overall health status of the process.
type HealthStatus struct {
	// Status is "ok" for liveness, "ready" or "degraded" for readiness.
	Status string `json:"status"`

	// Checks contains the status of individual components (readiness only).
	Checks map[string]CheckResult `json:"checks,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ErrCheckTimeout is reported when a health check exceeds its timeout.
var ErrCheckTimeout = errors.New("health check timeout")

// Checker manages health checks for archivist components.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	details map[string]DetailFunc

	checkTimeout time.Duration
}

// New creates a health checker. If checkTimeout is 0 it defaults to
// 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]CheckFunc),
		details:      make(map[string]DetailFunc),
		checkTimeout: checkTimeout,
	}
}

// RegisterCheck registers check under name, replacing any existing one.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RegisterDetail attaches detail to the readiness result of the check
// registered under name.
func (c *Checker) RegisterDetail(name string, detail DetailFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[name] = detail
}

// ListChecks returns the sorted names of all registered checks.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckLiveness reports that the process is running.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
}

// CheckReadiness runs all registered checks concurrently. Any unhealthy
// check makes the overall status degraded.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	details := make(map[string]DetailFunc, len(c.details))
	for name, detail := range c.details {
		details[name] = detail
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()

			result := c.runCheck(ctx, check)
			if detail, ok := details[name]; ok {
				result.Detail = detail()
			}

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := StatusReady
	for _, result := range results {
		if result.Status == StatusUnhealthy {
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// runCheck executes a single health check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Duration: time.Since(start)}
		}
		return CheckResult{Status: StatusOK, Duration: time.Since(start)}
	case <-checkCtx.Done():
		return CheckResult{Status: StatusUnhealthy, Message: ErrCheckTimeout.Error(), Duration: time.Since(start)}
	}
}

// CatalogCheck reports whether the catalog answers queries.
func CatalogCheck(cat archive.Catalog) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := cat.List(ctx, &archive.RecordFilter{Limit: 1}); err != nil {
			return fmt.Errorf("catalog unavailable: %w", err)
		}
		return nil
	}
}

// DirectoryCheck reports whether archive files can be created in dir.
func DirectoryCheck(dir string) CheckFunc {
	return func(ctx context.Context) error {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("archive directory unavailable: %w", err)
		}
		f, err := os.CreateTemp(dir, ".healthcheck-*")
		if err != nil {
			return fmt.Errorf("archive directory not writable: %w", err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(filepath.Clean(name))
	}
}

// SchedulerCheck reports whether the auto-archive scheduler is running.
func SchedulerCheck(running func() bool) CheckFunc {
	return func(ctx context.Context) error {
		if !running() {
			return errors.New("scheduler not running")
		}
		return nil
	}
}

// NextRunDetail reports the scheduler's next run time.
func NextRunDetail(next func() *time.Time) DetailFunc {
	return func() string {
		t := next()
		if t == nil || t.IsZero() {
			return ""
		}
		return "next run at " + t.UTC().Format(time.RFC3339)
	}
}
