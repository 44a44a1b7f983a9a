// Package resilience classifies request failures and controls when attempts
// may run.
//
// # Components
//
//   - Error and Class: the failure taxonomy. Retry decisions are made on the
//     Class value, never by inspecting error types.
//
//   - RetryPolicy: bounded retries with exponential backoff. Network, timeout
//     and 5xx gateway failures are retried; 502 uses a shorter base delay.
//
//   - Throttle: the admission state shared by one client instance.
//
//   - Governor: reacts to 429 responses by closing a shared gate and
//     tightening limits, then relaxes them as successes arrive.
//
//   - Scheduler: admits attempts by priority, then arrival order, under the throttle limits,
//     waiting on state changes and timers rather than polling.
//
//   - Budget: optional sustained request budget backed by golang.org/x/time/rate.
//
//   - Timeout: per-attempt deadline that classifies expiry as ClassTimeout.
//
// # Usage
//
//	th := resilience.NewThrottle(resilience.Limits{}, nil)
//	gov := resilience.NewGovernor(resilience.GovernorConfig{}, th)
//	sched := resilience.NewScheduler(resilience.SchedulerConfig{}, th)
//	policy := resilience.NewRetryPolicy(resilience.RetryConfig{})
//
//	err := policy.Execute(ctx, func(ctx context.Context, attempt int) error {
//	    release, err := sched.Acquire(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    defer release()
//	    err = call(ctx)
//	    if resilience.ClassOf(err) == resilience.ClassRateLimit {
//	        gov.RecordRateLimit(resilience.Classify(err), attempt)
//	    }
//	    return err
//	})
package resilience
