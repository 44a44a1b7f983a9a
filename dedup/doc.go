// Package dedup coalesces identical in-flight requests.
//
// The first caller for a key runs the producer; callers arriving while it is
// in flight join and receive the identical outcome, value or error. The key
// is released as soon as the outcome settles, so the next call after
// settlement runs a fresh producer.
//
// The producer runs detached from any single caller's cancellation: a caller
// that gives up stops waiting, but joiners still receive the shared outcome.
package dedup
