package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/reqflow/clock"
	"github.com/jonwraymond/reqflow/resilience"
)

// StateSource exposes a throttle snapshot. *resilience.Throttle and
// *resilience.Governor implement it.
type StateSource interface {
	State() resilience.ThrottleState
}

// StateFunc adapts a snapshot function to StateSource.
type StateFunc func() resilience.ThrottleState

// State returns f().
func (f StateFunc) State() resilience.ThrottleState { return f() }

// ThrottleChecker reports the rate-limit governor's view of the server.
// It is Healthy in normal mode with the resume gate open and Degraded
// otherwise. Rate limiting never makes the orchestrator Unhealthy.
type ThrottleChecker struct {
	source StateSource
	clock  clock.Clock
}

// NewThrottleChecker creates a checker over source. A nil clock uses the wall
// clock.
func NewThrottleChecker(source StateSource, clk clock.Clock) *ThrottleChecker {
	return &ThrottleChecker{source: source, clock: clock.OrReal(clk)}
}

// Name returns the name of this checker.
func (c *ThrottleChecker) Name() string {
	return "throttle"
}

// Check inspects the current throttle snapshot.
func (c *ThrottleChecker) Check(ctx context.Context) Result {
	now := c.clock.Now()
	s := c.source.State()

	details := map[string]any{
		"mode":            s.Mode.String(),
		"in_flight":       s.InFlight,
		"max_concurrent":  s.MaxConcurrent,
		"min_interval":    s.MinInterval.String(),
		"rate_limit_hits": s.ConsecutiveRateLimitHits,
	}

	var r Result
	switch {
	case s.Gated(now):
		wait := s.ResumeAt.Sub(now).Round(time.Millisecond)
		details["resume_at"] = s.ResumeAt.UTC().Format(time.RFC3339Nano)
		r = Degraded(fmt.Sprintf("rate limited, resuming in %s", wait))
	case s.Mode != resilience.ModeNormal:
		r = Degraded(fmt.Sprintf("governor %s", s.Mode))
	default:
		r = Healthy("admitting normally")
	}
	r.Timestamp = now
	return r.WithDetails(details)
}
