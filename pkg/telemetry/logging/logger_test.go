package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/archivist/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid JSON config", config: Config{Level: "info", Format: "json"}},
		{name: "valid text config", config: Config{Level: "debug", Format: "text"}},
		{name: "valid console config", config: Config{Level: "warn", Format: "console"}},
		{name: "empty config uses defaults", config: Config{}},
		{name: "invalid log level", config: Config{Level: "invalid", Format: "json"}, wantErr: true},
		{name: "invalid format", config: Config{Level: "info", Format: "invalid"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LoggingConfig{Level: "debug", Format: "text", AddSource: true})
	if cfg.Level != "debug" || cfg.Format != "text" || !cfg.AddSource {
		t.Errorf("FromConfig() = %+v", cfg)
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.With("component", "archive.writer").Info("Archive written", "records", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "Archive written" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "archive.writer" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["records"] != float64(42) {
		t.Errorf("records = %v", entry["records"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Level: "warn", Format: "text", Writer: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn were logged:\n%s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("warn and error messages missing:\n%s", out)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Level: "error", Format: "text", Writer: &buf})
	child := logger.With("component", "test")

	child.Info("before")
	if err := logger.SetLevel("info"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	child.Info("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("message logged before level change")
	}
	if !strings.Contains(out, "after") {
		t.Error("derived logger did not pick up level change")
	}

	if err := logger.SetLevel("loud"); err == nil {
		t.Error("SetLevel() expected error for unknown level")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Level: "info", Format: "json", Writer: &buf})

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithTable(ctx, "audit_logs")
	ctx = WithArchiveUUID(ctx, "0f8fad5b")

	logger.InfoContext(ctx, "Archive verified")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	for key, want := range map[string]string{"run_id": "run-1", "table": "audit_logs", "archive_uuid": "0f8fad5b"} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}

func TestLogger_SetDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger, _ := New(Config{Level: "info", Format: "json", Writer: &buf})
	logger.SetDefault()

	ctx := WithTrigger(context.Background(), "schedule")
	slog.Default().With("component", "archive.retention").InfoContext(ctx, "Auto-archive started")

	if !strings.Contains(buf.String(), `"trigger":"schedule"`) {
		t.Errorf("default logger missing context fields:\n%s", buf.String())
	}
}
