// Package health reports the health of a request orchestrator and the API
// server it talks to.
//
// A Checker reports a Status: Healthy, Degraded or Unhealthy. ThrottleChecker
// reflects the rate-limit governor (Degraded while the governor is not in
// normal mode or the resume gate is closed). ServerChecker probes the
// server's health endpoint. PingChecker adapts anything with a
// Ping(ctx) error method, such as a Redis-backed response cache.
//
// Use Aggregator to combine checkers:
//
//	agg := health.NewAggregator()
//	agg.Register("server", health.NewServerChecker(health.ServerCheckerConfig{URL: origin + "/health"}))
//	agg.Register("throttle", health.NewThrottleChecker(client, nil))
//
//	report := agg.Report(ctx)
//	fmt.Println(report.Status)
//
// The HTTP handlers expose the aggregate for liveness and readiness probes:
//
//	health.RegisterHandlers(mux, agg)
package health
