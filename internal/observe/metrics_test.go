package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"voxwire.stt.duration", m.STTDuration},
		{"voxwire.llm.duration", m.LLMDuration},
		{"voxwire.tts.duration", m.TTSDuration},
		{"voxwire.search.duration", m.SearchDuration},
		{"voxwire.turn.duration", m.TurnDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, StageSTT, 0.2)
	m.RecordStage(ctx, StageLLM, 0.5)
	m.RecordStage(ctx, StageTotal, 1.1)
	m.RecordStage(ctx, "bogus", 9)

	rm := collect(t, reader)
	for _, name := range []string{"voxwire.stt.duration", "voxwire.llm.duration", "voxwire.turn.duration"} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %q is not a histogram", name)
		}
		if got := hist.DataPoints[0].Count; got != 1 {
			t.Errorf("%s sample count = %d, want 1", name, got)
		}
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "stt", "deepgram", false)
	m.RecordProviderRequest(ctx, "stt", "deepgram", true)

	rm := collect(t, reader)

	reqs := findMetric(rm, "voxwire.provider.requests")
	if reqs == nil {
		t.Fatal("voxwire.provider.requests not found")
	}
	sum, ok := reqs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("requests metric is not a sum")
	}
	if len(sum.DataPoints) != 1 {
		t.Fatalf("request data points = %d, want 1", len(sum.DataPoints))
	}
	dp := sum.DataPoints[0]
	if dp.Value != 2 {
		t.Errorf("requests = %d, want 2", dp.Value)
	}
	if v, ok := dp.Attributes.Value(attribute.Key("provider")); !ok || v.AsString() != "deepgram" {
		t.Errorf("provider attribute = %v, want deepgram", v)
	}

	errs := findMetric(rm, "voxwire.provider.errors")
	if errs == nil {
		t.Fatal("voxwire.provider.errors not found")
	}
	if got := errs.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)

	rm := collect(t, reader)
	met := findMetric(rm, "voxwire.cache.lookups")
	if met == nil {
		t.Fatal("voxwire.cache.lookups not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("lookups metric is not a sum")
	}
	byOutcome := map[string]int64{}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key("outcome")); ok {
			byOutcome[v.AsString()] = dp.Value
		}
	}
	if byOutcome["hit"] != 2 || byOutcome["miss"] != 1 {
		t.Errorf("lookups = %v, want hit:2 miss:1", byOutcome)
	}
}

func TestActiveSessionsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 3)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "voxwire.sessions.active")
	if met == nil {
		t.Fatal("voxwire.sessions.active not found")
	}
	if got := met.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 2 {
		t.Errorf("active sessions = %d, want 2", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordStage(ctx, StageSTT, 1)
	m.RecordProviderRequest(ctx, "stt", "deepgram", true)
	m.RecordCacheLookup(ctx, true)
}
