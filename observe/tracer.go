package observe

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/reqflow/resilience"
)

// RequestMeta describes one orchestrated request for telemetry purposes.
type RequestMeta struct {
	Method    string // HTTP method; empty means GET
	Endpoint  string // API endpoint including query (required)
	RequestID string // correlation id shared by all attempts (optional)
}

func (m RequestMeta) method() string {
	if m.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(m.Method)
}

// SpanName returns the span name for the request.
// Format: reqflow.request <METHOD>
func (m RequestMeta) SpanName() string {
	return "reqflow.request " + m.method()
}

// Path returns the endpoint without its query string. Metric attributes use
// the path to keep cardinality bounded.
func (m RequestMeta) Path() string {
	if i := strings.IndexByte(m.Endpoint, '?'); i >= 0 {
		return m.Endpoint[:i]
	}
	return m.Endpoint
}

// Validate checks required fields.
func (m RequestMeta) Validate() error {
	if m.Endpoint == "" {
		return ErrMissingEndpoint
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with request-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts the span covering a whole request.
	StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span)

	// StartAttempt starts a child span for one network attempt.
	StartAttempt(ctx context.Context, meta RequestMeta, attempt int) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NewNoopTracer()
	}
	return &tracerImpl{tracer: t}
}

func requestAttrs(meta RequestMeta) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", meta.method()),
		attribute.String("reqflow.endpoint", meta.Endpoint),
		attribute.Bool("reqflow.error", false),
	}
	if meta.RequestID != "" {
		attrs = append(attrs, attribute.String("reqflow.request_id", meta.RequestID))
	}
	return attrs
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(requestAttrs(meta)...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) StartAttempt(ctx context.Context, meta RequestMeta, attempt int) (context.Context, trace.Span) {
	attrs := append(requestAttrs(meta), attribute.Int("reqflow.attempt", attempt))
	return t.tracer.Start(ctx, "reqflow.attempt "+meta.method(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan ends the span and records the error status and class if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool("reqflow.error", true),
			attribute.String("error.class", resilience.ClassOf(err).String()),
		)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer creates a no-op tracer.
func NewNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) StartAttempt(ctx context.Context, meta RequestMeta, attempt int) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
