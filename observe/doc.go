// Package observe provides observability primitives for orchestrated requests.
//
// It wires OpenTelemetry tracing and metrics, a zap-backed structured Logger,
// and a Middleware that wraps a request with a span, request metrics and a
// completion log line. Finer-grained signals (cache outcome, dedup joins,
// retries, rate-limit signals, admission wait) are recorded through Metrics
// by the client package.
package observe
