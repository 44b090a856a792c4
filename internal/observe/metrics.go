// Package observe provides application-wide observability primitives for
// duplex: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all duplex metrics.
const meterName = "github.com/MrWong99/duplex"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// --- Frame counters ---

	// RenderFrames counts render ticks. Use with attribute:
	//   attribute.String("source", "queue"|"silence")
	RenderFrames metric.Int64Counter

	// CaptureFrames counts completed capture frames. Use with attribute:
	//   attribute.String("outcome", "processed"|"passthrough"|"disabled")
	CaptureFrames metric.Int64Counter

	// ReferenceFrames counts frames pushed to the processor as echo reference.
	// Use with attribute: attribute.String("owner", "render"|"asset")
	ReferenceFrames metric.Int64Counter

	// --- Synchronisation ---

	// GateSkips counts capture frames where echo cancellation was skipped.
	// Use with attribute: attribute.String("reason", ...)
	GateSkips metric.Int64Counter

	// ProcessorFailures counts frames where the processor returned an error.
	ProcessorFailures metric.Int64Counter

	// Escalations counts echo-strength escalations.
	Escalations metric.Int64Counter

	// --- Buffering ---

	// QueueDrops counts frames dropped from or refused by the playback queue.
	// Use with attribute: attribute.String("reason", "full"|"barge_in")
	QueueDrops metric.Int64Counter

	// ConsumerDrops counts processed frames dropped because the consumer
	// channel was full.
	ConsumerDrops metric.Int64Counter

	// --- Voice activity ---

	// VoiceTransitions counts voice-activity state changes. Use with
	// attribute: attribute.String("state", "speaking"|"silent")
	VoiceTransitions metric.Int64Counter

	// BargeIns counts transitions to speaking that interrupted playback.
	BargeIns metric.Int64Counter

	// --- Errors ---

	// DeviceErrors counts fatal device errors. Use with attribute:
	//   attribute.String("direction", "capture"|"render")
	DeviceErrors metric.Int64Counter

	// RenderOverruns counts render ticks whose frame the device could not
	// take in full.
	RenderOverruns metric.Int64Counter

	// --- Latency ---

	// ProcessDuration tracks the time spent inside the processor per frame.
	ProcessDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of running duplex sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets defines histogram bucket boundaries (in seconds) for work
// that must finish well inside one 10 ms frame.
var frameBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.RenderFrames, "duplex.render.frames", "Render ticks by frame source."},
		{&met.CaptureFrames, "duplex.capture.frames", "Completed capture frames by outcome."},
		{&met.ReferenceFrames, "duplex.reference.frames", "Echo reference frames by feed owner."},
		{&met.GateSkips, "duplex.gate.skips", "Capture frames that skipped echo cancellation, by reason."},
		{&met.ProcessorFailures, "duplex.processor.failures", "Frames where the processor failed."},
		{&met.Escalations, "duplex.processor.escalations", "Echo strength escalations."},
		{&met.QueueDrops, "duplex.queue.drops", "Playback frames dropped, by reason."},
		{&met.ConsumerDrops, "duplex.consumer.drops", "Processed frames dropped because the consumer lagged."},
		{&met.VoiceTransitions, "duplex.vad.transitions", "Voice activity transitions by new state."},
		{&met.BargeIns, "duplex.vad.barge_ins", "Speech onsets that interrupted playback."},
		{&met.DeviceErrors, "duplex.device.errors", "Fatal device errors by direction."},
		{&met.RenderOverruns, "duplex.render.overruns", "Render frames cut short because the device buffer was full."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ProcessDuration, err = m.Float64Histogram("duplex.processor.duration",
		metric.WithDescription("Time spent in the processor per capture frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("duplex.active_sessions",
		metric.WithDescription("Number of running duplex sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("duplex.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveQueueDepth registers an asynchronous gauge reporting depth() on
// every collection. Unregister the returned registration when the queue goes
// away.
func (m *Metrics) ObserveQueueDepth(depth func() int) (metric.Registration, error) {
	g, err := m.meter.Int64ObservableGauge("duplex.queue.depth",
		metric.WithDescription("Frames waiting in the playback queue."),
	)
	if err != nil {
		return nil, err
	}
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(g, int64(depth()))
		return nil
	}, g)
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

// RecordRender records one render tick.
func (m *Metrics) RecordRender(ctx context.Context, source string) {
	m.RenderFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordCapture records one completed capture frame.
func (m *Metrics) RecordCapture(ctx context.Context, outcome string) {
	m.CaptureFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReference records one reference frame pushed by owner.
func (m *Metrics) RecordReference(ctx context.Context, owner string) {
	m.ReferenceFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("owner", owner)))
}

// RecordGateSkip records one skipped cancellation attempt.
func (m *Metrics) RecordGateSkip(ctx context.Context, reason string) {
	m.GateSkips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordQueueDrops records n dropped playback frames.
func (m *Metrics) RecordQueueDrops(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.QueueDrops.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordVoiceTransition records a voice-activity state change.
func (m *Metrics) RecordVoiceTransition(ctx context.Context, speaking bool) {
	state := "silent"
	if speaking {
		state = "speaking"
	}
	m.VoiceTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordDeviceError records a fatal device error.
func (m *Metrics) RecordDeviceError(ctx context.Context, direction string) {
	m.DeviceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}
