package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value for the data point carrying attr.
func sumFor(t *testing.T, m *metricdata.Metrics, attr attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data is %T, want Sum[int64]", m.Name, m.Data)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v.Emit() == attr.Value.Emit() {
			return dp.Value
		}
	}
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestNoop_Records(t *testing.T) {
	m := Noop()
	ctx := context.Background()

	// Must not panic
	m.RecordFrame(ctx, true, 0.001)
	m.RecordTransition(ctx, "on")
	m.RecordRecorderError(ctx, "start")
	m.ActiveRecordings.Add(ctx, 1)
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, true, 0.0004)
	m.RecordFrame(ctx, false, 0.0002)
	m.RecordFrame(ctx, false, 0.0003)

	rm := collect(t, reader)

	frames := findMetric(rm, "ultrasonic.frames.analyzed")
	if frames == nil {
		t.Fatal("ultrasonic.frames.analyzed not found")
	}
	if got := sumFor(t, frames, attribute.Bool("present", true)); got != 1 {
		t.Errorf("present frames = %d, want 1", got)
	}
	if got := sumFor(t, frames, attribute.Bool("present", false)); got != 2 {
		t.Errorf("absent frames = %d, want 2", got)
	}

	hist := findMetric(rm, "ultrasonic.analysis.duration")
	if hist == nil {
		t.Fatal("ultrasonic.analysis.duration not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data is %T, want Histogram[float64]", hist.Data)
	}
	if len(h.DataPoints) != 1 || h.DataPoints[0].Count != 3 {
		t.Errorf("histogram data points = %+v, want one point with count 3", h.DataPoints)
	}
}

func TestRecordTransitionAndErrors(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "on")
	m.RecordTransition(ctx, "off")
	m.RecordTransition(ctx, "on")
	m.RecordRecorderError(ctx, "stop")

	rm := collect(t, reader)

	transitions := findMetric(rm, "ultrasonic.signal.transitions")
	if transitions == nil {
		t.Fatal("ultrasonic.signal.transitions not found")
	}
	if got := sumFor(t, transitions, attribute.String("state", "on")); got != 2 {
		t.Errorf("on transitions = %d, want 2", got)
	}

	errs := findMetric(rm, "ultrasonic.recorder.errors")
	if errs == nil {
		t.Fatal("ultrasonic.recorder.errors not found")
	}
	if got := sumFor(t, errs, attribute.String("op", "stop")); got != 1 {
		t.Errorf("stop errors = %d, want 1", got)
	}
}

func TestActiveRecordingsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, -1)

	rm := collect(t, reader)
	active := findMetric(rm, "ultrasonic.recordings.active")
	if active == nil {
		t.Fatal("ultrasonic.recordings.active not found")
	}
	sum, ok := active.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("unexpected data %+v", active.Data)
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("active recordings = %d, want 1", sum.DataPoints[0].Value)
	}
}
