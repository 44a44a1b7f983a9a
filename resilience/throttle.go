package resilience

import (
	"sync"
	"time"

	"github.com/jonwraymond/reqflow/clock"
)

// Mode is the governor's operating mode.
type Mode int

const (
	// ModeNormal applies the normal limits.
	ModeNormal Mode = iota
	// ModeDegraded applies the tightest limits after repeated rate limiting.
	ModeDegraded
	// ModeRecovering applies intermediate limits while rate-limit hits drain.
	ModeRecovering
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDegraded:
		return "degraded"
	case ModeRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Limits bounds admission.
type Limits struct {
	// MaxConcurrent is the number of attempts allowed in flight.
	MaxConcurrent int

	// MinInterval is the minimum spacing between admissions.
	MinInterval time.Duration
}

// ThrottleState is a snapshot of the shared admission state. MaxConcurrent
// bounds admissions, not attempts already running: right after a switch to
// tighter limits InFlight may exceed it until those attempts finish.
type ThrottleState struct {
	Mode                     Mode
	MaxConcurrent            int
	MinInterval              time.Duration
	InFlight                 int
	LastIssuedAt             time.Time
	ResumeAt                 time.Time
	ConsecutiveRateLimitHits int
}

// Gated reports whether the rate-limit gate is closed at now.
func (s ThrottleState) Gated(now time.Time) bool {
	return now.Before(s.ResumeAt)
}

// Throttle owns the admission state shared by a Governor and a Scheduler.
// Every mutation wakes goroutines waiting in Scheduler.Acquire.
type Throttle struct {
	clock clock.Clock

	mu      sync.Mutex
	state   ThrottleState
	changed chan struct{}
}

// NewThrottle creates a throttle starting at the given limits. A nil clock
// uses the wall clock.
func NewThrottle(limits Limits, clk clock.Clock) *Throttle {
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = 2
	}
	if limits.MinInterval < 0 {
		limits.MinInterval = 0
	}
	return &Throttle{
		clock: clock.OrReal(clk),
		state: ThrottleState{
			Mode:          ModeNormal,
			MaxConcurrent: limits.MaxConcurrent,
			MinInterval:   limits.MinInterval,
		},
		changed: make(chan struct{}),
	}
}

// State returns a snapshot of the throttle state.
func (t *Throttle) State() ThrottleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Clock returns the throttle's clock.
func (t *Throttle) Clock() clock.Clock {
	return t.clock
}

// update applies fn under the lock and wakes waiters.
func (t *Throttle) update(fn func(s *ThrottleState, now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.state, t.clock.Now())
	t.broadcastLocked()
}

func (t *Throttle) broadcastLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}
