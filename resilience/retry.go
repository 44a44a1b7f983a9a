package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jonwraymond/reqflow/clock"
)

// RetryConfig configures the retry policy.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 5
	MaxAttempts int

	// InitialDelay is the base delay for network, timeout and server failures.
	// Default: 1s
	InitialDelay time.Duration

	// GatewayDelay is the base delay for 502 responses.
	// Default: 300ms
	GatewayDelay time.Duration

	// MaxDelay caps the delay between attempts.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% random delay.
	// Default: false
	Jitter bool

	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, err *Error, delay time.Duration)

	// Clock drives backoff waits.
	// Default: the wall clock
	Clock clock.Clock
}

// RetryPolicy decides whether and when a failed attempt is repeated.
//
// Rate-limit failures are retried without a local delay: the governor closes
// the shared admission gate, and the next attempt waits there.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.GatewayDelay <= 0 {
		config.GatewayDelay = 300 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	config.Clock = clock.OrReal(config.Clock)

	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether another attempt follows a failure of class c on
// the zero-based attempt.
func (p *RetryPolicy) ShouldRetry(c Class, attempt int) bool {
	return c.Retryable() && attempt+1 < p.config.MaxAttempts
}

// DelayFor returns the wait before the attempt after the zero-based attempt
// that failed with err.
func (p *RetryPolicy) DelayFor(err *Error, attempt int) time.Duration {
	if err == nil || err.Class == ClassRateLimit {
		return 0
	}

	base := p.config.InitialDelay
	if err.StatusCode == http.StatusBadGateway {
		base = p.config.GatewayDelay
	}

	delay := time.Duration(float64(base) * math.Pow(p.config.Multiplier, float64(attempt)))
	if delay > p.config.MaxDelay || delay < 0 {
		delay = p.config.MaxDelay
	}

	if p.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}

// Execute runs op until it succeeds, fails with a non-retryable class, or
// exhausts MaxAttempts. op receives the zero-based attempt index. The
// returned error is the last attempt's classified error with Attempts set,
// or ctx.Err() once the caller's context is done.
func (p *RetryPolicy) Execute(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ce := Classify(err)
		ce.Attempts = attempt + 1

		if !p.ShouldRetry(ce.Class, attempt) {
			return ce
		}

		delay := p.DelayFor(ce, attempt)
		if p.config.OnRetry != nil {
			p.config.OnRetry(attempt, ce, delay)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.config.Clock.After(delay):
			}
		}
	}
}

// Config returns the retry configuration.
func (p *RetryPolicy) Config() RetryConfig {
	return p.config
}
