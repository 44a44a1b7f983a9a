// Package clock abstracts time for components that schedule, expire, or back off.
//
// Production code uses [Real]. Tests use [Manual], a clock that only moves when
// told to, so cache expiry and backoff schedules can be verified without
// sleeping.
//
//	clk := clock.NewManual(time.Unix(0, 0))
//	ch := clk.After(2 * time.Second)
//	clk.Advance(2 * time.Second)
//	<-ch
package clock
