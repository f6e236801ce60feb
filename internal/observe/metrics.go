// Package observe provides the observability primitives shared by the
// pipeline: OpenTelemetry metrics, tracing, trace-aware logging, throttled
// error logging and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus via [InitProvider] and [Handler]. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/riftsight/riftsight"

// Metrics holds all OpenTelemetry instruments for the application. All
// fields are safe for concurrent use.
type Metrics struct {
	// --- Capture loop ---

	// FramesCaptured counts captured frames.
	FramesCaptured metric.Int64Counter

	// GateSkips counts frames the change gate found unchanged.
	GateSkips metric.Int64Counter

	// RecognitionDuration tracks per-cycle recognition latency. Attribute:
	//   attribute.String("engine", ...)
	RecognitionDuration metric.Float64Histogram

	// RecognitionErrors counts failed engine calls. Attribute: engine.
	RecognitionErrors metric.Int64Counter

	// Readings counts canonicalised readings. Attribute:
	//   attribute.String("status", "resolved"|"unresolved")
	Readings metric.Int64Counter

	// CandidateSets counts validity-gate outcomes. Attribute:
	//   attribute.String("outcome", "accepted"|"rejected")
	CandidateSets metric.Int64Counter

	// --- Publication ---

	// Publications counts delivered payloads. Attributes: sink, action.
	Publications metric.Int64Counter

	// PublishErrors counts failed deliveries. Attribute: sink.
	PublishErrors metric.Int64Counter

	// --- Lifecycle ---

	// PhasePolls counts lifecycle polls. Attribute: phase.
	PhasePolls metric.Int64Counter

	// PhaseErrors counts failed phase queries.
	PhaseErrors metric.Int64Counter

	// LifecycleResets counts shared-state resets. Attribute: reason.
	LifecycleResets metric.Int64Counter

	// --- Reliability ---

	// LoopErrors counts errors swallowed by worker loops. Attribute: loop.
	LoopErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, to.
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control-plane request latency. Attributes:
	// route (the matched mux pattern), status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries (in seconds) sized for OCR
// calls, which range from a few milliseconds to a couple of seconds.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.FramesCaptured, "riftsight.capture.frames", "Total captured frames."},
		{&met.GateSkips, "riftsight.capture.gate_skips", "Frames skipped because the change gate saw no change."},
		{&met.RecognitionErrors, "riftsight.recognition.errors", "Failed recognition calls by engine."},
		{&met.Readings, "riftsight.canon.readings", "Canonicalised readings by status."},
		{&met.CandidateSets, "riftsight.canon.candidate_sets", "Candidate sets by validity outcome."},
		{&met.Publications, "riftsight.publish.deliveries", "Delivered payloads by sink and action."},
		{&met.PublishErrors, "riftsight.publish.errors", "Failed deliveries by sink."},
		{&met.PhasePolls, "riftsight.lifecycle.polls", "Lifecycle polls by observed phase."},
		{&met.PhaseErrors, "riftsight.lifecycle.poll_errors", "Failed phase queries."},
		{&met.LifecycleResets, "riftsight.lifecycle.resets", "Shared state resets by reason."},
		{&met.LoopErrors, "riftsight.loop.errors", "Errors swallowed by worker loops."},
		{&met.BreakerTransitions, "riftsight.breaker.transitions", "Circuit breaker state changes."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.RecognitionDuration, err = m.Float64Histogram("riftsight.recognition.duration",
		metric.WithDescription("Latency of one recognition cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("riftsight.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call it after [InitProvider].
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRecognition records one engine call.
func (m *Metrics) RecordRecognition(ctx context.Context, engine string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	m.RecognitionDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.RecognitionErrors.Add(ctx, 1, attrs)
	}
}

// RecordReading records one canonicalised reading.
func (m *Metrics) RecordReading(ctx context.Context, resolved bool) {
	status := "unresolved"
	if resolved {
		status = "resolved"
	}
	m.Readings.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCandidateSet records a validity-gate outcome.
func (m *Metrics) RecordCandidateSet(ctx context.Context, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.CandidateSets.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPublish records a delivery attempt to sink.
func (m *Metrics) RecordPublish(ctx context.Context, sink, action string, err error) {
	if err != nil {
		m.PublishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
		return
	}
	m.Publications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("action", action),
	))
}

// RecordPhasePoll records one lifecycle poll.
func (m *Metrics) RecordPhasePoll(ctx context.Context, phase string, err error) {
	if err != nil {
		m.PhaseErrors.Add(ctx, 1)
	}
	m.PhasePolls.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordReset records a shared-state reset.
func (m *Metrics) RecordReset(ctx context.Context, reason string) {
	m.LifecycleResets.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordLoopError records an error swallowed by a worker loop.
func (m *Metrics) RecordLoopError(ctx context.Context, loop string) {
	m.LoopErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("loop", loop)))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("name", name),
		attribute.String("to", to),
	))
}
