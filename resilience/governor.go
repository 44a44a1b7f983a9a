package resilience

import (
	"math"
	"time"
)

// GovernorConfig configures adaptive rate-limit handling.
type GovernorConfig struct {
	// Normal are the limits outside rate-limit episodes.
	// Default: 2 concurrent, 500ms interval
	Normal Limits

	// Degraded are the limits after DegradeAfter consecutive hits.
	// Default: 1 concurrent, 1000ms interval
	Degraded Limits

	// Recovering are the limits applied on success after a heavy episode.
	// Default: 1 concurrent, 750ms interval
	Recovering Limits

	// DegradeAfter is the hit count that switches to Degraded.
	// Default: 2
	DegradeAfter int

	// RecoverAbove is the hit count above which a success switches to
	// Recovering instead of staying put.
	// Default: 3
	RecoverAbove int

	// BaseDelay is the base of the computed rate-limit backoff.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the rate-limit backoff, including Retry-After hints.
	// Default: 60s
	MaxDelay time.Duration

	// MaxHitFactor caps the hit count used in the backoff multiplier.
	// Default: 5
	MaxHitFactor int

	// OnModeChange is called, outside the lock, when the mode changes.
	OnModeChange func(from, to Mode)
}

// Governor adapts the shared throttle to rate-limit signals. One gate covers
// every endpoint of a client.
type Governor struct {
	config   GovernorConfig
	throttle *Throttle
}

// NewGovernor creates a governor over t and applies the normal limits.
func NewGovernor(config GovernorConfig, t *Throttle) *Governor {
	config.Normal = defaultLimits(config.Normal, 2, 500*time.Millisecond)
	config.Degraded = defaultLimits(config.Degraded, 1, time.Second)
	config.Recovering = defaultLimits(config.Recovering, 1, 750*time.Millisecond)
	if config.DegradeAfter <= 0 {
		config.DegradeAfter = 2
	}
	if config.RecoverAbove <= 0 {
		config.RecoverAbove = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.MaxHitFactor <= 0 {
		config.MaxHitFactor = 5
	}

	g := &Governor{config: config, throttle: t}
	t.update(func(s *ThrottleState, _ time.Time) {
		g.applyLocked(s, ModeNormal)
	})
	return g
}

func defaultLimits(l Limits, n int, interval time.Duration) Limits {
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = n
	}
	if l.MinInterval <= 0 {
		l.MinInterval = interval
	}
	return l
}

// Backoff returns the computed rate-limit delay for a zero-based attempt with
// hits consecutive signals: base * 2^attempt * (1 + min(hits, max)*0.5).
func (g *Governor) Backoff(attempt, hits int) time.Duration {
	h := min(hits, g.config.MaxHitFactor)
	d := float64(g.config.BaseDelay) * math.Pow(2, float64(attempt)) * (1 + float64(h)*0.5)
	if d > float64(g.config.MaxDelay) || math.IsInf(d, 0) {
		return g.config.MaxDelay
	}
	return time.Duration(d)
}

// RecordRateLimit registers a 429 on the zero-based attempt and closes the
// admission gate. A Retry-After hint on err takes precedence over the
// computed backoff; both are capped at MaxDelay. It returns the delay applied.
func (g *Governor) RecordRateLimit(err *Error, attempt int) time.Duration {
	var (
		delay    time.Duration
		from, to Mode
	)
	g.throttle.update(func(s *ThrottleState, now time.Time) {
		from = s.Mode
		s.ConsecutiveRateLimitHits++
		if s.ConsecutiveRateLimitHits >= g.config.DegradeAfter {
			g.applyLocked(s, ModeDegraded)
		}
		to = s.Mode

		if err != nil && err.HasRetryAfter {
			delay = max(min(err.RetryAfter, g.config.MaxDelay), 0)
		} else {
			delay = g.Backoff(attempt, s.ConsecutiveRateLimitHits)
		}
		if resume := now.Add(delay); resume.After(s.ResumeAt) {
			s.ResumeAt = resume
		}
	})
	g.notify(from, to)
	return delay
}

// RecordSuccess registers a successful response and relaxes limits as the
// rate-limit episode drains.
func (g *Governor) RecordSuccess() {
	var from, to Mode
	g.throttle.update(func(s *ThrottleState, _ time.Time) {
		from = s.Mode
		to = s.Mode
		if s.ConsecutiveRateLimitHits == 0 {
			return
		}
		heavy := s.ConsecutiveRateLimitHits > g.config.RecoverAbove
		s.ConsecutiveRateLimitHits--
		switch {
		case s.ConsecutiveRateLimitHits == 0:
			g.applyLocked(s, ModeNormal)
		case heavy:
			g.applyLocked(s, ModeRecovering)
		}
		to = s.Mode
	})
	g.notify(from, to)
}

// Mode returns the current mode.
func (g *Governor) Mode() Mode {
	return g.throttle.State().Mode
}

// State returns a snapshot of the shared throttle state.
func (g *Governor) State() ThrottleState {
	return g.throttle.State()
}

func (g *Governor) applyLocked(s *ThrottleState, m Mode) {
	var l Limits
	switch m {
	case ModeDegraded:
		l = g.config.Degraded
	case ModeRecovering:
		l = g.config.Recovering
	default:
		l = g.config.Normal
	}
	s.Mode = m
	s.MaxConcurrent = l.MaxConcurrent
	s.MinInterval = l.MinInterval
}

func (g *Governor) notify(from, to Mode) {
	if from != to && g.config.OnModeChange != nil {
		g.config.OnModeChange(from, to)
	}
}
