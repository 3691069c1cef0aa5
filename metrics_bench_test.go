package jobAuth

import (
	"testing"
	"time"
)

// refreshHotPath is the set of counters touched by a login followed by refreshes.
var refreshHotPath = [...]MetricID{
	MetricLoginSuccess,
	MetricSessionCreated,
	MetricRefreshSuccess,
	MetricRefreshSuccess,
	MetricRefreshSuccess,
	MetricLogout,
}

func BenchmarkMetricsInc(b *testing.B) {
	for _, enabled := range []bool{true, false} {
		name := "enabled"
		if !enabled {
			name = "disabled"
		}
		b.Run(name, func(b *testing.B) {
			m := NewMetrics(MetricsConfig{Enabled: enabled})
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					m.Inc(MetricRefreshSuccess)
				}
			})
		})
	}
}

func BenchmarkMetricsRefreshHotPathParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			m.Inc(refreshHotPath[i%len(refreshHotPath)])
			i++
		}
	})
}

func BenchmarkMetricsObserveRefreshLatency(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 3 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricRefreshLatency, d)
		}
	})
}
