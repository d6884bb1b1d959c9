// Package observe provides OpenTelemetry metrics for the perception
// pipeline, with a Prometheus exporter bridge so the daemon can expose a
// standard /metrics endpoint. Tests should use NewMetrics with a custom
// metric.MeterProvider to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all percept metrics.
const meterName = "github.com/capable-vision/percept"

// Metrics holds all metric instruments for the pipeline. The underlying
// OTel types handle their own synchronisation.
type Metrics struct {
	// FramesProcessed counts frames through the per-frame path.
	FramesProcessed metric.Int64Counter

	// Detections counts raw detector observations.
	Detections metric.Int64Counter

	// HazardsBuilt counts fused hazards by distance class.
	// Use with attribute.String("distance", ...).
	HazardsBuilt metric.Int64Counter

	// Announcements counts narration requests by urgency level.
	// Use with attribute.String("level", ...).
	Announcements metric.Int64Counter

	// UtterancesDropped counts narration requests discarded by the
	// dispatcher queue.
	UtterancesDropped metric.Int64Counter

	// InferenceSkipped counts heavy inference jobs skipped because one
	// was already in flight. Use with attribute.String("model", ...).
	InferenceSkipped metric.Int64Counter

	// InferenceErrors counts model failures degraded to empty results.
	// Use with attribute.String("model", ...).
	InferenceErrors metric.Int64Counter

	// InferenceDuration tracks model latency by model name.
	InferenceDuration metric.Float64Histogram

	// ActiveTracks tracks the current activated track count.
	ActiveTracks metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized
// for on-device inference latencies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised Metrics struct using the given
// metric.MeterProvider. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("percept.frames.processed",
		metric.WithDescription("Total frames through the per-frame pipeline."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("percept.detections",
		metric.WithDescription("Total raw detector observations."),
	); err != nil {
		return nil, err
	}
	if met.HazardsBuilt, err = m.Int64Counter("percept.hazards.built",
		metric.WithDescription("Total fused hazards by distance class."),
	); err != nil {
		return nil, err
	}
	if met.Announcements, err = m.Int64Counter("percept.announcements",
		metric.WithDescription("Total narration requests by urgency level."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDropped, err = m.Int64Counter("percept.utterances.dropped",
		metric.WithDescription("Narration requests discarded by the dispatcher queue."),
	); err != nil {
		return nil, err
	}
	if met.InferenceSkipped, err = m.Int64Counter("percept.inference.skipped",
		metric.WithDescription("Heavy inference jobs skipped while one was in flight."),
	); err != nil {
		return nil, err
	}
	if met.InferenceErrors, err = m.Int64Counter("percept.inference.errors",
		metric.WithDescription("Model failures degraded to empty results."),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("percept.inference.duration",
		metric.WithDescription("Model latency by model name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveTracks, err = m.Int64UpDownCounter("percept.tracks.active",
		metric.WithDescription("Currently activated tracks."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics instance, creating it
// on first call from the global meter provider. Panics if instrument
// creation fails, which cannot happen with the global provider.
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

// RecordInference records one model invocation's latency.
func (m *Metrics) RecordInference(ctx context.Context, model string, seconds float64) {
	m.InferenceDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("model", model)))
}

// RecordInferenceError counts one degraded model failure.
func (m *Metrics) RecordInferenceError(ctx context.Context, model string) {
	m.InferenceErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("model", model)))
}

// RecordInferenceSkipped counts one job skipped by the in-flight gate.
func (m *Metrics) RecordInferenceSkipped(ctx context.Context, model string) {
	m.InferenceSkipped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("model", model)))
}

// RecordHazard counts one fused hazard.
func (m *Metrics) RecordHazard(ctx context.Context, distance string) {
	m.HazardsBuilt.Add(ctx, 1,
		metric.WithAttributes(attribute.String("distance", distance)))
}

// RecordAnnouncement counts one narration request.
func (m *Metrics) RecordAnnouncement(ctx context.Context, level string) {
	m.Announcements.Add(ctx, 1,
		metric.WithAttributes(attribute.String("level", level)))
}
