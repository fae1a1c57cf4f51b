// Package observe provides OpenTelemetry metrics for the detector pipeline.
//
// Instruments are created from a [metric.MeterProvider]. [InitProvider]
// installs an SDK provider backed by a Prometheus exporter so the values can
// be scraped from /metrics. Components that are not handed a [Metrics]
// instance use [Noop]; tests should use [NewMetrics] with a manual reader.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/ColonelBlimp/ultrasonic"

// Metrics holds all metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// FramesAnalyzed counts frames that went through the FFT. Use with attribute:
	//   attribute.Bool("present", ...)
	FramesAnalyzed metric.Int64Counter

	// FramesRejected counts frames that failed analysis and were treated as absent.
	FramesRejected metric.Int64Counter

	// AnalysisDuration tracks per-frame analysis and decision latency.
	AnalysisDuration metric.Float64Histogram

	// SignalTransitions counts stable transitions. Use with attribute:
	//   attribute.String("state", "on"|"off")
	SignalTransitions metric.Int64Counter

	// EventsDropped counts transitions lost because the session queue was full.
	EventsDropped metric.Int64Counter

	// RecordingsStarted counts successful recorder starts.
	RecordingsStarted metric.Int64Counter

	// RecorderErrors counts recorder failures. Use with attribute:
	//   attribute.String("op", "start"|"stop")
	RecorderErrors metric.Int64Counter

	// ActiveRecordings is 1 while a recording is open.
	ActiveRecordings metric.Int64UpDownCounter

	// NotificationsSent counts consent notifications handed to the notifier.
	NotificationsSent metric.Int64Counter
}

// analysisBuckets are histogram boundaries in seconds. A 2048 sample frame at
// 48kHz lasts about 43ms, so everything of interest is well below that.
var analysisBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesAnalyzed, err = m.Int64Counter("ultrasonic.frames.analyzed",
		metric.WithDescription("Frames analyzed, by raw decision."),
	); err != nil {
		return nil, err
	}
	if met.FramesRejected, err = m.Int64Counter("ultrasonic.frames.rejected",
		metric.WithDescription("Frames that failed analysis and were treated as absent."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("ultrasonic.analysis.duration",
		metric.WithDescription("Latency of FFT plus presence decision per frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(analysisBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SignalTransitions, err = m.Int64Counter("ultrasonic.signal.transitions",
		metric.WithDescription("Stable signal transitions by state entered."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("ultrasonic.events.dropped",
		metric.WithDescription("Signal events dropped because the session queue was full."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsStarted, err = m.Int64Counter("ultrasonic.recordings.started",
		metric.WithDescription("Recordings started."),
	); err != nil {
		return nil, err
	}
	if met.RecorderErrors, err = m.Int64Counter("ultrasonic.recorder.errors",
		metric.WithDescription("Recorder failures by operation."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecordings, err = m.Int64UpDownCounter("ultrasonic.recordings.active",
		metric.WithDescription("Recordings currently open."),
	); err != nil {
		return nil, err
	}
	if met.NotificationsSent, err = m.Int64Counter("ultrasonic.notifications.sent",
		metric.WithDescription("Consent notifications handed to the notifier."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Noop returns instruments that record nothing.
func Noop() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

// RecordFrame records one analyzed frame and its latency.
func (m *Metrics) RecordFrame(ctx context.Context, present bool, seconds float64) {
	m.FramesAnalyzed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("present", present)))
	m.AnalysisDuration.Record(ctx, seconds)
}

// RecordTransition records a stable signal transition.
func (m *Metrics) RecordTransition(ctx context.Context, state string) {
	m.SignalTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordRecorderError records a recorder failure for op.
func (m *Metrics) RecordRecorderError(ctx context.Context, op string) {
	m.RecorderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
