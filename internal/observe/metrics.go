// Package observe provides application-wide observability for the voxwire
// gateway: OpenTelemetry metrics, tracing helpers, HTTP middleware, and the
// per-turn latency collector behind the /metrics admin endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard Prometheus endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all voxwire metrics.
const meterName = "github.com/voxwire/voxwire"

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies. Sub-second resolution matters most: the
// first-audio budget for a whole turn is about one second.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics holds all OpenTelemetry metric instruments for the gateway.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency, stream start to stream end.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks per-sentence speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// SearchDuration tracks web-search latency.
	SearchDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency, end-of-speech to final
	// audio frame.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("provider", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider API calls, same attributes.
	ProviderErrors metric.Int64Counter

	// ProviderFallbacks counts current-provider switches inside a manager.
	ProviderFallbacks metric.Int64Counter

	// CacheLookups counts semantic cache lookups. Use with attribute:
	//   attribute.String("outcome", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// TurnsInterrupted counts turns cut short by barge-in.
	TurnsInterrupted metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice connections.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("voxwire.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voxwire.llm.duration",
		metric.WithDescription("Latency of LLM completion streaming."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxwire.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis per sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("voxwire.search.duration",
		metric.WithDescription("Latency of web search calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("voxwire.turn.duration",
		metric.WithDescription("End-to-end turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("voxwire.provider.requests",
		metric.WithDescription("Total provider API requests by kind and provider."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxwire.provider.errors",
		metric.WithDescription("Total failed provider API requests by kind and provider."),
	); err != nil {
		return nil, err
	}
	if met.ProviderFallbacks, err = m.Int64Counter("voxwire.provider.fallbacks",
		metric.WithDescription("Total current-provider switches by kind."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("voxwire.cache.lookups",
		metric.WithDescription("Semantic cache lookups by outcome."),
	); err != nil {
		return nil, err
	}
	if met.TurnsInterrupted, err = m.Int64Counter("voxwire.turns.interrupted",
		metric.WithDescription("Turns cut short by barge-in."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxwire.sessions.active",
		metric.WithDescription("Number of live voice connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxwire.http.request.duration",
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

// RecordStage records one pipeline-stage duration (seconds) on the matching
// histogram. Stage names are shared with [Collector]; unknown stages are
// dropped silently.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	if m == nil {
		return
	}
	switch stage {
	case StageSTT:
		m.STTDuration.Record(ctx, seconds)
	case StageLLM:
		m.LLMDuration.Record(ctx, seconds)
	case StageTTS:
		m.TTSDuration.Record(ctx, seconds)
	case StageSearch:
		m.SearchDuration.Record(ctx, seconds)
	case StageTotal:
		m.TurnDuration.Record(ctx, seconds)
	}
}

// RecordProviderRequest records one provider call and, when failed, one error.
func (m *Metrics) RecordProviderRequest(ctx context.Context, kind, provider string, failed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("provider", provider),
	)
	m.ProviderRequests.Add(ctx, 1, attrs)
	if failed {
		m.ProviderErrors.Add(ctx, 1, attrs)
	}
}

// SessionOpened bumps the live-connection gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionClosed drops the live-connection gauge.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// RecordInterrupted counts one turn cut short by barge-in.
func (m *Metrics) RecordInterrupted(ctx context.Context) {
	if m == nil {
		return
	}
	m.TurnsInterrupted.Add(ctx, 1)
}

// ProviderResult implements the resilience manager's observer hook.
func (m *Metrics) ProviderResult(kind, provider string, failed bool) {
	m.RecordProviderRequest(context.Background(), kind, provider, failed)
}

// Fallback implements the resilience manager's observer hook.
func (m *Metrics) Fallback(kind string) {
	if m == nil {
		return
	}
	m.ProviderFallbacks.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordCacheLookup records one semantic-cache lookup outcome.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
