// Package observe provides application-wide observability primitives for
// heckler: OpenTelemetry metrics, tracing, and HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed
// for scraping via a Prometheus exporter set up by [InitProvider].
package observe

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all heckler metrics.
const meterName = "github.com/hecklerbot/heckler"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TranscriptionDuration tracks speech-to-text inference latency per
	// utterance.
	TranscriptionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks admin API request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// TranscriptsHandled counts transcripts that reached the reaction
	// engine.
	TranscriptsHandled metric.Int64Counter

	// ClipsPlayed counts clips enqueued by the reaction engine.
	ClipsPlayed metric.Int64Counter

	// RateLimited counts transcripts dropped by the rate-limit gate.
	RateLimited metric.Int64Counter

	// ActiveSpeakers tracks how many participants are speaking right now.
	ActiveSpeakers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries in seconds. The
// upper buckets cover whisper inference on long utterances.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the
// given [metric.MeterProvider]. Returns an error if any instrument
// creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("heckler.stt.duration",
		metric.WithDescription("Latency of speech-to-text inference per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("heckler.http.duration",
		metric.WithDescription("Latency of admin API requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptsHandled, err = m.Int64Counter("heckler.transcripts",
		metric.WithDescription("Transcripts delivered to the reaction engine."),
	); err != nil {
		return nil, err
	}
	if met.ClipsPlayed, err = m.Int64Counter("heckler.clips.played",
		metric.WithDescription("Clips enqueued for playback."),
	); err != nil {
		return nil, err
	}
	if met.RateLimited, err = m.Int64Counter("heckler.rate_limited",
		metric.WithDescription("Transcripts dropped by the rate-limit gate."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSpeakers, err = m.Int64UpDownCounter("heckler.speakers.active",
		metric.WithDescription("Participants currently speaking."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// NewDefaultMetrics creates a [Metrics] struct on the globally
// registered meter provider. Call after [InitProvider].
func NewDefaultMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}
