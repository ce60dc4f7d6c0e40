package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"mercator-hq/archivist/pkg/telemetry/logging"
)

// Scheduler runs automatic archiving on a cron schedule. A pass that is
// still running when the next one is due is skipped.
type Scheduler struct {
	runner   *Runner
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner *Runner, schedule string) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   slog.Default().With("component", "archive.scheduler"),
	}
}

// Start begins scheduled runs using a standard five-field cron expression:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//
// An empty schedule disables the scheduler. The scheduler stops when ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("Archive schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule automatic archiving: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Archive scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	ctx = logging.WithTrigger(logging.WithRunID(ctx, uuid.NewString()), "schedule")

	result, err := s.runner.RunAuto(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled archiving failed", "error", err)
		return
	}
	for _, te := range result.Errors {
		s.logger.WarnContext(ctx, "Scheduled archiving failed for table",
			"table", te.Table,
			"error", te.Reason,
		)
	}
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("Archive scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run, or nil if none is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
