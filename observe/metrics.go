package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/reqflow/resilience"
)

// Metrics records request orchestration metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records a completed request with duration and outcome.
	RecordRequest(ctx context.Context, meta RequestMeta, duration time.Duration, err error)

	// RecordCache records a cache lookup outcome.
	RecordCache(ctx context.Context, meta RequestMeta, hit bool)

	// RecordDedupJoin records a caller joining an in-flight request.
	RecordDedupJoin(ctx context.Context, meta RequestMeta)

	// RecordRetry records a scheduled retry caused by err.
	RecordRetry(ctx context.Context, meta RequestMeta, err error)

	// RecordRateLimit records a rate-limit signal from the server.
	RecordRateLimit(ctx context.Context, meta RequestMeta)

	// RecordAdmissionWait records time spent waiting for an admission slot.
	RecordAdmissionWait(ctx context.Context, wait time.Duration)

	// AddInFlight adjusts the in-flight network request gauge.
	AddInFlight(ctx context.Context, delta int64)
}

type metricsImpl struct {
	meter        metric.Meter
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	dedupJoins   metric.Int64Counter
	retries      metric.Int64Counter
	rateLimits   metric.Int64Counter
	admission    metric.Float64Histogram
	inflight     metric.Int64UpDownCounter
}

// NewMetrics creates request metrics on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	m := &metricsImpl{meter: meter}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.totalCount, "reqflow.request.total", "Total number of orchestrated requests", "{request}"},
		{&m.errorCount, "reqflow.request.errors", "Total number of failed requests", "{error}"},
		{&m.cacheHits, "reqflow.cache.hits", "Requests served from the response cache", "{request}"},
		{&m.cacheMisses, "reqflow.cache.misses", "Cacheable requests that missed the response cache", "{request}"},
		{&m.dedupJoins, "reqflow.dedup.joins", "Callers that joined an in-flight request", "{request}"},
		{&m.retries, "reqflow.retry.total", "Retries scheduled after a retryable failure", "{retry}"},
		{&m.rateLimits, "reqflow.ratelimit.signals", "Rate-limit responses received", "{signal}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	m.durationHist, err = meter.Float64Histogram(
		"reqflow.request.duration_ms",
		metric.WithDescription("Request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.admission, err = meter.Float64Histogram(
		"reqflow.admission.wait_ms",
		metric.WithDescription("Time spent waiting for admission in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.inflight, err = meter.Int64UpDownCounter(
		"reqflow.inflight",
		metric.WithDescription("Network requests currently in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func metaAttrs(meta RequestMeta) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("http.request.method", meta.method()),
		attribute.String("reqflow.path", meta.Path()),
	)
}

func (m *metricsImpl) RecordRequest(ctx context.Context, meta RequestMeta, duration time.Duration, err error) {
	opt := metaAttrs(meta)
	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt, metric.WithAttributes(
			attribute.String("error.class", resilience.ClassOf(err).String()),
		))
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCache(ctx context.Context, meta RequestMeta, hit bool) {
	if hit {
		m.cacheHits.Add(ctx, 1, metaAttrs(meta))
		return
	}
	m.cacheMisses.Add(ctx, 1, metaAttrs(meta))
}

func (m *metricsImpl) RecordDedupJoin(ctx context.Context, meta RequestMeta) {
	m.dedupJoins.Add(ctx, 1, metaAttrs(meta))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, meta RequestMeta, err error) {
	m.retries.Add(ctx, 1, metaAttrs(meta), metric.WithAttributes(
		attribute.String("error.class", resilience.ClassOf(err).String()),
	))
}

func (m *metricsImpl) RecordRateLimit(ctx context.Context, meta RequestMeta) {
	m.rateLimits.Add(ctx, 1, metaAttrs(meta))
}

func (m *metricsImpl) RecordAdmissionWait(ctx context.Context, wait time.Duration) {
	m.admission.Record(ctx, float64(wait.Milliseconds()))
}

func (m *metricsImpl) AddInFlight(ctx context.Context, delta int64) {
	m.inflight.Add(ctx, delta)
}

type noopMetrics struct{}

// NoopMetrics returns a Metrics implementation that records nothing.
func NoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordRequest(context.Context, RequestMeta, time.Duration, error) {}
func (noopMetrics) RecordCache(context.Context, RequestMeta, bool)                   {}
func (noopMetrics) RecordDedupJoin(context.Context, RequestMeta)                     {}
func (noopMetrics) RecordRetry(context.Context, RequestMeta, error)                  {}
func (noopMetrics) RecordRateLimit(context.Context, RequestMeta)                     {}
func (noopMetrics) RecordAdmissionWait(context.Context, time.Duration)               {}
func (noopMetrics) AddInFlight(context.Context, int64)                               {}
