// Package observe wires OpenTelemetry metrics and tracing into duckd and the
// duckdebug client, plus the HTTP middleware that ties requests to both.
//
// Tests should build their own [Metrics] with [NewMetrics] and a
// manual reader instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = tracerName

// Metrics holds the instruments recorded by the backend services and the
// client pipeline. Instruments are safe for concurrent use.
type Metrics struct {
	// --- Provider latency histograms (backend) ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding latency.
	EmbeddingDuration metric.Float64Histogram

	// RetrievalDuration tracks vector search latency.
	RetrievalDuration metric.Float64Histogram

	// --- Client pipeline ---

	// StageDuration tracks each pipeline stage as seen by the client. Use with
	// attributes: attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// CaptureDuration tracks recording length. Use with attribute:
	//   attribute.String("reason", ...)
	CaptureDuration metric.Float64Histogram

	// ActivePipelines tracks the number of in-flight pipeline runs.
	ActivePipelines metric.Int64UpDownCounter

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ChunksIndexed counts source chunks written to the code store.
	ChunksIndexed metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for model
// and network calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// captureBuckets covers spoken questions from a breath to a minute.
var captureBuckets = []float64{
	0.5, 1, 2, 3, 5, 8, 13, 21, 34, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "duckdebug.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "duckdebug.llm.duration", "Latency of LLM completion."},
		{&met.TTSDuration, "duckdebug.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.EmbeddingDuration, "duckdebug.embeddings.duration", "Latency of embedding requests."},
		{&met.RetrievalDuration, "duckdebug.retrieval.duration", "Latency of code retrieval."},
		{&met.StageDuration, "duckdebug.pipeline.stage.duration", "Latency of client pipeline stages by stage and status."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}
	if met.CaptureDuration, err = m.Float64Histogram("duckdebug.capture.duration",
		metric.WithDescription("Length of microphone recordings by stop reason."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(captureBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("duckdebug.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ChunksIndexed, err = m.Int64Counter("duckdebug.ingest.chunks",
		metric.WithDescription("Total source chunks indexed."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("duckdebug.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActivePipelines, err = m.Int64UpDownCounter("duckdebug.pipeline.active",
		metric.WithDescription("Number of in-flight pipeline runs."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("duckdebug.http.request.duration",
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

// DefaultMetrics returns instruments bound to the global meter provider,
// created on first use. Call it after [InitProvider].
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

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordStage records the duration of one client pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage, status string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordCapture records a finished or failed recording.
func (m *Metrics) RecordCapture(ctx context.Context, reason string, d time.Duration) {
	m.CaptureDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordChunksIndexed adds n to the indexed chunk counter.
func (m *Metrics) RecordChunksIndexed(ctx context.Context, n int) {
	m.ChunksIndexed.Add(ctx, int64(n))
}
