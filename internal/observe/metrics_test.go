package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"confab.stt.duration", m.STTDuration},
		{"confab.llm.duration", m.LLMDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	counters := []struct {
		name string
		c    metric.Int64Counter
	}{
		{"confab.capture.windows", m.WindowsAssembled},
		{"confab.transcript.segments", m.SegmentsTranscribed},
		{"confab.analysis.passes", m.AnalysisPasses},
		{"confab.analysis.summaries", m.SummaryPasses},
		{"confab.analysis.summaries_evicted", m.SummariesEvicted},
		{"confab.provider.errors", m.ProviderErrors},
	}

	for _, tc := range counters {
		tc.c.Add(ctx, 3)
	}

	rm := collect(t, reader)

	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != 3 {
				t.Errorf("value = %d, want 3", got)
			}
		})
	}
}

func TestUpDownCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.QueueBacklog.Add(ctx, 5)
	m.QueueBacklog.Add(ctx, -2)

	rm := collect(t, reader)

	sessions := findMetric(rm, "confab.active_sessions")
	if sessions == nil {
		t.Fatal("confab.active_sessions not found")
	}
	if got := sessions.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 0 {
		t.Errorf("active sessions = %d, want 0", got)
	}

	backlog := findMetric(rm, "confab.capture.queue_backlog")
	if backlog == nil {
		t.Fatal("confab.capture.queue_backlog not found")
	}
	if got := backlog.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 3 {
		t.Errorf("queue backlog = %d, want 3", got)
	}
}

func TestRecordLLMCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLLMCall(ctx, "analysis", 0.42, 100, 50)

	rm := collect(t, reader)

	tokens := findMetric(rm, "confab.llm.tokens")
	if tokens == nil {
		t.Fatal("confab.llm.tokens not found")
	}
	sum := tokens.Data.(metricdata.Sum[int64])
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 150 {
		t.Errorf("total tokens = %d, want 150", total)
	}

	dur := findMetric(rm, "confab.llm.duration")
	if dur == nil {
		t.Fatal("confab.llm.duration not found")
	}
	if got := dur.Data.(metricdata.Histogram[float64]).DataPoints[0].Count; got != 1 {
		t.Errorf("duration count = %d, want 1", got)
	}
}

func TestDefaultMetrics_SameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
