// Package observe provides application-wide observability primitives for
// ghostline: OpenTelemetry metrics, tracing, and structured logging helpers.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all ghostline metrics.
const meterName = "github.com/pkravets/ghostline"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StreamDuration tracks the lifetime of a suggestion stream from open to
	// terminal state. Use with attribute.String("outcome", ...): one of
	// "completed", "cancelled", "errored".
	StreamDuration metric.Float64Histogram

	// EditDuration tracks submit-to-terminal latency of edit sessions.
	EditDuration metric.Float64Histogram

	// TranscribeDuration tracks voice transcription latency.
	TranscribeDuration metric.Float64Histogram

	// --- Counters ---

	// SuggestionOutcomes counts accepted and rejected suggestions. Use with
	// attribute.Bool("accepted", ...).
	SuggestionOutcomes metric.Int64Counter

	// StaleDrops counts async results silently discarded because their
	// generation no longer matched the surface. Use with
	// attribute.String("kind", ...): "token", "fallback", "edit".
	StaleDrops metric.Int64Counter

	// BackendErrors counts failed backend calls by operation. Use with
	// attribute.String("op", ...).
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of currently live suggestion streams.
	// By construction this never exceeds the number of attached surfaces.
	ActiveStreams metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for interactive completion latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StreamDuration, err = m.Float64Histogram("ghostline.stream.duration",
		metric.WithDescription("Lifetime of a suggestion stream from open to terminal state."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EditDuration, err = m.Float64Histogram("ghostline.edit.duration",
		metric.WithDescription("Submit-to-terminal latency of edit sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("ghostline.transcribe.duration",
		metric.WithDescription("Voice transcription latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SuggestionOutcomes, err = m.Int64Counter("ghostline.suggestion.outcomes",
		metric.WithDescription("Accepted and rejected suggestions."),
	); err != nil {
		return nil, err
	}
	if met.StaleDrops, err = m.Int64Counter("ghostline.stale.drops",
		metric.WithDescription("Async results discarded because their generation was stale."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("ghostline.backend.errors",
		metric.WithDescription("Failed backend calls by operation."),
	); err != nil {
		return nil, err
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("ghostline.active_streams",
		metric.WithDescription("Number of currently live suggestion streams."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordStreamOutcome records a finished suggestion stream with its outcome
// attribute ("completed", "cancelled", "errored"). nil-safe.
func (m *Metrics) RecordStreamOutcome(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StreamDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordEditOutcome records a finished edit round trip. nil-safe.
func (m *Metrics) RecordEditOutcome(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.EditDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTranscription records one voice transcription round trip. nil-safe.
func (m *Metrics) RecordTranscription(d time.Duration) {
	if m == nil {
		return
	}
	m.TranscribeDuration.Record(context.Background(), d.Seconds())
}

// RecordSuggestionOutcome counts one accepted or rejected suggestion. nil-safe.
func (m *Metrics) RecordSuggestionOutcome(accepted bool) {
	if m == nil {
		return
	}
	m.SuggestionOutcomes.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("accepted", accepted)))
}

// RecordStaleDrop counts one discarded stale async result by kind. nil-safe.
func (m *Metrics) RecordStaleDrop(kind string) {
	if m == nil {
		return
	}
	m.StaleDrops.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBackendError counts one failed backend call by operation. nil-safe.
func (m *Metrics) RecordBackendError(op string) {
	if m == nil {
		return
	}
	m.BackendErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("op", op)))
}

// AddActiveStreams adjusts the live-stream gauge by delta. nil-safe.
func (m *Metrics) AddActiveStreams(delta int64) {
	if m == nil {
		return
	}
	m.ActiveStreams.Add(context.Background(), delta)
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
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
