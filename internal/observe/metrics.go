// Package observe provides application-wide observability primitives for
// voxpipe: OpenTelemetry metrics and the Prometheus exporter bridge.
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

// meterName is the instrumentation scope name used for all voxpipe metrics.
const meterName = "github.com/voxpipe/voxpipe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end batch pipeline latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// PipelineRequests counts batch pipeline invocations. Use with attributes:
	//   attribute.String("status", ...), attribute.Bool("cache_hit", ...)
	PipelineRequests metric.Int64Counter

	// CacheHits counts result-cache lookups served from a completed entry.
	CacheHits metric.Int64Counter

	// CacheMisses counts result-cache lookups that ran a computation.
	CacheMisses metric.Int64Counter

	// NudgesFired counts non-suppressed nudge triggers.
	NudgesFired metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("stage", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live realtime sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
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
	if met.STTDuration, err = m.Float64Histogram("voxpipe.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voxpipe.llm.duration",
		metric.WithDescription("Latency of LLM generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxpipe.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("voxpipe.pipeline.duration",
		metric.WithDescription("End-to-end batch pipeline latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PipelineRequests, err = m.Int64Counter("voxpipe.pipeline.requests",
		metric.WithDescription("Total batch pipeline invocations by status and cache outcome."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("voxpipe.cache.hits",
		metric.WithDescription("Result-cache lookups served from a completed entry."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("voxpipe.cache.misses",
		metric.WithDescription("Result-cache lookups that ran a computation."),
	); err != nil {
		return nil, err
	}
	if met.NudgesFired, err = m.Int64Counter("voxpipe.nudges.fired",
		metric.WithDescription("Non-suppressed nudge triggers."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxpipe.provider.errors",
		metric.WithDescription("Total provider failures by pipeline stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxpipe.active_sessions",
		metric.WithDescription("Number of live realtime sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxpipe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordStage records one pipeline stage's latency and, on failure, the
// stage-tagged error counter.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64, failed bool) {
	var hist metric.Float64Histogram
	switch stage {
	case "stt":
		hist = m.STTDuration
	case "llm":
		hist = m.LLMDuration
	case "tts":
		hist = m.TTSDuration
	default:
		hist = m.PipelineDuration
	}
	hist.Record(ctx, seconds)
	if failed {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}
