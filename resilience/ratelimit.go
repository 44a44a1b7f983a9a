package resilience

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/reqflow/clock"
)

// BudgetConfig configures a sustained request budget.
type BudgetConfig struct {
	// Rate is the number of requests allowed per second.
	// Default: 10
	Rate float64

	// Burst is the maximum burst size.
	// Default: 1
	Burst int

	// Clock drives waits.
	// Default: the wall clock
	Clock clock.Clock
}

// Budget is a token bucket for APIs that publish a sustained quota on top of
// their concurrency limits.
type Budget struct {
	config  BudgetConfig
	limiter *rate.Limiter
}

// NewBudget creates a budget.
func NewBudget(config BudgetConfig) *Budget {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	config.Clock = clock.OrReal(config.Clock)

	return &Budget{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (b *Budget) Allow() bool {
	return b.limiter.AllowN(b.config.Clock.Now(), 1)
}

// Wait blocks until a token is available. It fails fast with
// ErrBudgetExceeded when the wait would pass the context deadline.
func (b *Budget) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := b.config.Clock.Now()
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return ErrBudgetExceeded
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && now.Add(delay).After(deadline) {
		r.CancelAt(now)
		return ErrBudgetExceeded
	}

	select {
	case <-ctx.Done():
		r.CancelAt(b.config.Clock.Now())
		return ctx.Err()
	case <-b.config.Clock.After(delay):
		return nil
	}
}

// Tokens returns the number of tokens currently available.
func (b *Budget) Tokens() float64 {
	return b.limiter.TokensAt(b.config.Clock.Now())
}
