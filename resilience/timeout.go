package resilience

import (
	"context"
	"errors"
	"time"
)

// TimeoutConfig configures the per-attempt timeout.
type TimeoutConfig struct {
	// Timeout is the maximum duration for one attempt.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds a single attempt.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{config: config}
}

// Execute runs op with a derived deadline. op must honor its context. When
// the attempt's own deadline fires, the failure is classified as a timeout;
// cancellation of the parent context is returned unchanged.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	return t.ExecuteFor(ctx, t.config.Timeout, op)
}

// ExecuteFor is Execute with an explicit duration; a non-positive d uses the
// configured timeout.
func (t *Timeout) ExecuteFor(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	if d <= 0 {
		d = t.config.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := op(attemptCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &Error{Class: ClassTimeout, Message: "request timed out after " + d.String(), Cause: err}
	}
	return err
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// ExecuteWithTimeout is a convenience function to run an operation with timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	return NewTimeout(TimeoutConfig{Timeout: timeout}).Execute(ctx, op)
}
