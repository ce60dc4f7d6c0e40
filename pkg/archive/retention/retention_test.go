package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/archivist/pkg/archive"
)

type staticLister struct {
	tables []string
	err    error
}

func (l staticLister) ListTablesNeedingArchival(ctx context.Context) ([]string, error) {
	return l.tables, l.err
}

type fakeArchiver struct {
	mu      sync.Mutex
	calls   map[string]time.Time
	results map[string]error
}

func (a *fakeArchiver) ArchiveTable(ctx context.Context, table string, cutoff time.Time) (*archive.ArchiveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.calls == nil {
		a.calls = make(map[string]time.Time)
	}
	a.calls[table] = cutoff

	result := &archive.ArchiveResult{Table: table, Success: true, Outcome: archive.OutcomeArchived}
	if err := a.results[table]; err != nil {
		result.Fail(archive.OutcomeNoop, err)
		return result, err
	}
	return result, nil
}

func TestRunAuto_SkipsAndArchives(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	policies := archive.PolicyMap{
		"A": {ArchiveAfterDays: 30, AutoArchive: false},
		"B": {ArchiveAfterDays: 30, AutoArchive: true},
	}
	archiver := &fakeArchiver{}

	runner := NewRunner(archiver, staticLister{tables: []string{"A", "B"}}, policies, 2, nil)
	runner.now = func() time.Time { return now }

	result, err := runner.RunAuto(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, result.Archived)
	assert.Equal(t, []string{"A"}, result.Skipped)
	assert.Empty(t, result.Errors)

	assert.NotContains(t, archiver.calls, "A")
	assert.Equal(t, now.AddDate(0, 0, -30), archiver.calls["B"])
}

func TestRunAuto_FailureIsolated(t *testing.T) {
	lockErr := archive.NewLockError(&archive.Lock{Table: "events", Owner: "other"})

	policies := archive.PolicyMap{
		"audit_logs": {ArchiveAfterDays: 90, AutoArchive: true},
		"events":     {ArchiveAfterDays: 30, AutoArchive: true},
		"sessions":   {ArchiveAfterDays: 7, AutoArchive: true},
	}
	archiver := &fakeArchiver{results: map[string]error{"events": lockErr}}

	runner := NewRunner(archiver, staticLister{tables: []string{"sessions", "events", "audit_logs", "unknown"}}, policies, 1, nil)

	result, err := runner.RunAuto(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"audit_logs", "sessions"}, result.Archived)
	assert.Equal(t, []string{"unknown"}, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "events", result.Errors[0].Table)
	assert.ErrorIs(t, result.Errors[0].Err, archive.ErrArchiveInProgress)
	assert.Len(t, result.Results, 3)
}

func TestRunAuto_ListError(t *testing.T) {
	boom := errors.New("catalog unavailable")
	runner := NewRunner(&fakeArchiver{}, staticLister{err: boom}, archive.PolicyMap{}, 0, nil)

	_, err := runner.RunAuto(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"valid daily schedule", "0 3 * * *", true, false},
		{"valid hourly schedule", "0 * * * *", true, false},
		{"empty schedule", "", false, false},
		{"invalid schedule", "invalid cron", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := NewRunner(&fakeArchiver{}, staticLister{}, archive.PolicyMap{}, 1, nil)
			scheduler := NewScheduler(runner, tt.schedule)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := scheduler.Start(ctx)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantRunning, scheduler.IsRunning())

			if tt.wantRunning {
				next := scheduler.NextRun()
				require.NotNil(t, next)
				assert.True(t, next.After(time.Now()))
			}

			scheduler.Stop()
			assert.False(t, scheduler.IsRunning())
		})
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	runner := NewRunner(&fakeArchiver{}, staticLister{}, archive.PolicyMap{}, 1, nil)
	scheduler := NewScheduler(runner, "*/5 * * * *")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !scheduler.IsRunning() }, time.Second, 10*time.Millisecond)
}
