package logging

import (
	"context"
	"io"
	"testing"
)

func BenchmarkLogger_Disabled(b *testing.B) {
	logger, _ := New(Config{Level: "error", Format: "json", Writer: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("filtered", "i", i)
	}
}

func BenchmarkLogger_ContextFields(b *testing.B) {
	logger, _ := New(Config{Level: "info", Format: "json", Writer: io.Discard})
	ctx := WithTable(WithRunID(context.Background(), "run-1"), "audit_logs")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.InfoContext(ctx, "page archived", "rows", 1000)
	}
}
