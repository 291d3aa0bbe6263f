// Package observe provides application-wide observability primitives for
// Confab: OpenTelemetry metrics and the Prometheus exporter bridge that makes
// them scrapeable.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Confab metrics.
const meterName = "github.com/nwehr/confab"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks per-window speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM call latency. Use with attribute:
	//   attribute.String("pass", "analysis"|"summary"|"final")
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// WindowsAssembled counts audio windows emitted by the assembler.
	WindowsAssembled metric.Int64Counter

	// SegmentsTranscribed counts transcript segments appended to the ledger.
	SegmentsTranscribed metric.Int64Counter

	// WindowsDropped counts windows lost to transcription failures.
	WindowsDropped metric.Int64Counter

	// AnalysisPasses counts analysis passes. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	AnalysisPasses metric.Int64Counter

	// SummaryPasses counts rolling-summary compression passes. Use with
	// attribute: attribute.String("status", "ok"|"error")
	SummaryPasses metric.Int64Counter

	// SummariesEvicted counts rolling summaries dropped to honour the
	// summary-context word ceiling.
	SummariesEvicted metric.Int64Counter

	// LLMTokens counts tokens reported by the LLM backend. Use with
	// attributes: attribute.String("pass", ...), attribute.String("type", "prompt"|"completion")
	LLMTokens metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", "stt"|"llm")
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// QueueBacklog tracks the number of captured chunks waiting for
	// transcription.
	QueueBacklog metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transcription and LLM latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("confab.stt.duration",
		metric.WithDescription("Latency of per-window speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("confab.llm.duration",
		metric.WithDescription("Latency of LLM calls by pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WindowsAssembled, err = m.Int64Counter("confab.capture.windows",
		metric.WithDescription("Total audio windows emitted by the assembler."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsTranscribed, err = m.Int64Counter("confab.transcript.segments",
		metric.WithDescription("Total transcript segments appended to the ledger."),
	); err != nil {
		return nil, err
	}
	if met.WindowsDropped, err = m.Int64Counter("confab.capture.windows_dropped",
		metric.WithDescription("Total windows lost to transcription failures."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisPasses, err = m.Int64Counter("confab.analysis.passes",
		metric.WithDescription("Total analysis passes by status."),
	); err != nil {
		return nil, err
	}
	if met.SummaryPasses, err = m.Int64Counter("confab.analysis.summaries",
		metric.WithDescription("Total rolling-summary compression passes by status."),
	); err != nil {
		return nil, err
	}
	if met.SummariesEvicted, err = m.Int64Counter("confab.analysis.summaries_evicted",
		metric.WithDescription("Total rolling summaries evicted to honour the context ceiling."),
	); err != nil {
		return nil, err
	}
	if met.LLMTokens, err = m.Int64Counter("confab.llm.tokens",
		metric.WithDescription("Total LLM tokens by pass and type."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("confab.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("confab.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.QueueBacklog, err = m.Int64UpDownCounter("confab.capture.queue_backlog",
		metric.WithDescription("Captured chunks waiting for transcription."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordLLMCall records an LLM call's latency and token usage with the
// standard attribute set.
func (m *Metrics) RecordLLMCall(ctx context.Context, pass string, seconds float64, promptTokens, completionTokens int) {
	passAttr := metric.WithAttributes(attribute.String("pass", pass))
	m.LLMDuration.Record(ctx, seconds, passAttr)
	if promptTokens > 0 {
		m.LLMTokens.Add(ctx, int64(promptTokens), metric.WithAttributes(
			attribute.String("pass", pass),
			attribute.String("type", "prompt"),
		))
	}
	if completionTokens > 0 {
		m.LLMTokens.Add(ctx, int64(completionTokens), metric.WithAttributes(
			attribute.String("pass", pass),
			attribute.String("type", "completion"),
		))
	}
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
