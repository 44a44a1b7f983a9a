package observe

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jonwraymond/reqflow/resilience"
)

func newTestMetrics(t *testing.T) (*metricsImpl, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("newMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

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

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data = %T, want Sum[int64]", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	meta := RequestMeta{Endpoint: "/widgets?page=1"}

	m.RecordRequest(ctx, meta, 120*time.Millisecond, nil)
	m.RecordRequest(ctx, meta, 80*time.Millisecond, &resilience.Error{Class: resilience.ClassServer})

	rm := collect(t, reader)
	if got := sumOf(t, rm, "reqflow.request.total"); got != 2 {
		t.Errorf("reqflow.request.total = %d, want 2", got)
	}
	if got := sumOf(t, rm, "reqflow.request.errors"); got != 1 {
		t.Errorf("reqflow.request.errors = %d, want 1", got)
	}

	errs := findMetric(rm, "reqflow.request.errors").Data.(metricdata.Sum[int64])
	dp := errs.DataPoints[0]
	if v, ok := dp.Attributes.Value(attribute.Key("error.class")); !ok || v.AsString() != "server" {
		t.Errorf("error.class = %v, want server", v.AsString())
	}
	if v, ok := dp.Attributes.Value(attribute.Key("reqflow.path")); !ok || v.AsString() != "/widgets" {
		t.Errorf("reqflow.path = %v, want /widgets", v.AsString())
	}

	hist, ok := findMetric(rm, "reqflow.request.duration_ms").Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("reqflow.request.duration_ms is not a float64 histogram")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("duration count = %d, want 2", got)
	}
}

func TestMetrics_OrchestrationSignals(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	meta := RequestMeta{Endpoint: "/widgets"}

	m.RecordCache(ctx, meta, true)
	m.RecordCache(ctx, meta, true)
	m.RecordCache(ctx, meta, false)
	m.RecordDedupJoin(ctx, meta)
	m.RecordRetry(ctx, meta, &resilience.Error{Class: resilience.ClassTimeout})
	m.RecordRateLimit(ctx, meta)
	m.RecordAdmissionWait(ctx, 500*time.Millisecond)
	m.AddInFlight(ctx, 1)
	m.AddInFlight(ctx, 1)
	m.AddInFlight(ctx, -1)

	rm := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"reqflow.cache.hits", 2},
		{"reqflow.cache.misses", 1},
		{"reqflow.dedup.joins", 1},
		{"reqflow.retry.total", 1},
		{"reqflow.ratelimit.signals", 1},
		{"reqflow.inflight", 1},
	}
	for _, tt := range tests {
		if got := sumOf(t, rm, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}

	wait, ok := findMetric(rm, "reqflow.admission.wait_ms").Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("reqflow.admission.wait_ms is not a float64 histogram")
	}
	if got := wait.DataPoints[0].Sum; got != 500 {
		t.Errorf("admission wait sum = %v, want 500", got)
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	meta := RequestMeta{Endpoint: "/widgets"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRequest(ctx, meta, time.Millisecond, nil)
		}()
	}
	wg.Wait()

	if got := sumOf(t, collect(t, reader), "reqflow.request.total"); got != 50 {
		t.Errorf("reqflow.request.total = %d, want 50", got)
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics()
	ctx := context.Background()
	m.RecordRequest(ctx, RequestMeta{}, time.Second, nil)
	m.RecordCache(ctx, RequestMeta{}, true)
	m.RecordDedupJoin(ctx, RequestMeta{})
	m.RecordRetry(ctx, RequestMeta{}, nil)
	m.RecordRateLimit(ctx, RequestMeta{})
	m.RecordAdmissionWait(ctx, time.Second)
	m.AddInFlight(ctx, 1)
}
