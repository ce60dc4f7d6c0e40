package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/archivist/pkg/archive"
)

func TestSourceConfig_TableSpec(t *testing.T) {
	cfg := SourceConfig{
		Tables: map[string]TableColumns{
			"events": {TimestampColumn: "occurred_at", CursorColumn: "seq"},
		},
	}

	got := cfg.TableSpec("events")
	if got.Name != "events" || got.TimestampColumn != "occurred_at" || got.CursorColumn != "seq" {
		t.Errorf("TableSpec(events) = %+v", got)
	}

	got = cfg.TableSpec("audit_logs")
	if got.TimestampColumn != archive.DefaultTimestampColumn || got.CursorColumn != archive.DefaultCursorColumn {
		t.Errorf("TableSpec(audit_logs) = %+v, want default columns", got)
	}
}

func TestPolicyStore(t *testing.T) {
	store := NewPolicyStore("", map[string]archive.RetentionPolicy{
		"sessions":   {ArchiveAfterDays: 30, AutoArchive: true},
		"audit_logs": {ArchiveAfterDays: 90},
	})

	var _ archive.PolicySource = store

	p, ok := store.Policy("sessions")
	if !ok || p.Table != "sessions" || p.ArchiveAfterDays != 30 {
		t.Errorf("Policy(sessions) = %+v, %v", p, ok)
	}
	if _, ok := store.Policy("missing"); ok {
		t.Error("Policy(missing) should not be found")
	}

	tables := store.Tables()
	if len(tables) != 2 || tables[0] != "audit_logs" {
		t.Errorf("Tables() = %v, want sorted", tables)
	}

	if err := store.Reload(); err == nil {
		t.Error("Reload() without a file should fail")
	}
}

func TestPolicyStore_Reload(t *testing.T) {
	path := writeConfig(t, `
retention:
  policies:
    sessions:
      archive_after_days: 30
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	store := NewPolicyStore(path, cfg.Retention.Policies)

	if err := os.WriteFile(path, []byte(`
retention:
  policies:
    sessions:
      archive_after_days: 7
    audit_logs:
      archive_after_days: 90
      auto_archive: true
`), 0644); err != nil {
		t.Fatal(err)
	}

	if err := store.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if p, _ := store.Policy("sessions"); p.ArchiveAfterDays != 7 {
		t.Errorf("sessions days = %d, want 7", p.ArchiveAfterDays)
	}
	if p, ok := store.Policy("audit_logs"); !ok || !p.AutoArchive {
		t.Errorf("audit_logs = %+v, %v", p, ok)
	}

	// An invalid file keeps the previous policies.
	if err := os.WriteFile(path, []byte(`
retention:
  policies:
    sessions:
      archive_after_days: 0
`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err == nil {
		t.Error("Reload() with invalid policy should fail")
	}
	if p, _ := store.Policy("sessions"); p.ArchiveAfterDays != 7 {
		t.Errorf("sessions days = %d after failed reload, want 7", p.ArchiveAfterDays)
	}
}

func TestFileWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "retention: {}\n")

	fw, err := NewFileWatcher(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fw.Watch(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0644)

	for i := 0; i < 5; i++ {
		os.WriteFile(path, []byte("retention: {}\n"), 0644)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("expected at least one reload")
	}

	if err := fw.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
	}

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}

	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Stop()
	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls after Stop = %d, want 1", got)
	}
}
