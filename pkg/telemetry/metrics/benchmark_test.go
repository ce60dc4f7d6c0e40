package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func Benchmark_Collector_RecordArchiveRun(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordArchiveRun("audit_logs", "archived", time.Second, 1000, 4096)
	}
}

func Benchmark_Collector_SetTableGrowth_Parallel(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			collector.SetTableGrowth("audit_logs", 1000, 4096, false)
		}
	})
}
