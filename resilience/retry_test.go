package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/reqflow/clock"
)

func TestNewRetryPolicy(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{})

	if p.config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", p.config.MaxAttempts)
	}
	if p.config.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", p.config.InitialDelay)
	}
	if p.config.GatewayDelay != 300*time.Millisecond {
		t.Errorf("GatewayDelay = %v, want 300ms", p.config.GatewayDelay)
	}
	if p.config.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", p.config.MaxDelay)
	}
	if p.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", p.config.Multiplier)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{MaxAttempts: 5})

	tests := []struct {
		name    string
		class   Class
		attempt int
		want    bool
	}{
		{"network first", ClassNetwork, 0, true},
		{"server fourth", ClassServer, 3, true},
		{"server last", ClassServer, 4, false},
		{"timeout", ClassTimeout, 1, true},
		{"rate limit", ClassRateLimit, 2, true},
		{"client", ClassClient, 0, false},
		{"parse", ClassParse, 0, false},
		{"auth expired", ClassAuthExpired, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldRetry(tt.class, tt.attempt); got != tt.want {
				t.Errorf("ShouldRetry(%v, %d) = %v, want %v", tt.class, tt.attempt, got, tt.want)
			}
		})
	}
}

// TestRetryPolicy_DelayFor verifies the per-class schedules and that delays
// never decrease with the attempt number.
func TestRetryPolicy_DelayFor(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{})

	server := &Error{Class: ClassServer, StatusCode: 503}
	gateway := &Error{Class: ClassServer, StatusCode: 502}
	network := &Error{Class: ClassNetwork}

	wantServer := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	wantGateway := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 1200 * time.Millisecond, 2400 * time.Millisecond}

	for i := range wantServer {
		if got := p.DelayFor(server, i); got != wantServer[i] {
			t.Errorf("DelayFor(503, %d) = %v, want %v", i, got, wantServer[i])
		}
		if got := p.DelayFor(network, i); got != wantServer[i] {
			t.Errorf("DelayFor(network, %d) = %v, want %v", i, got, wantServer[i])
		}
		if got := p.DelayFor(gateway, i); got != wantGateway[i] {
			t.Errorf("DelayFor(502, %d) = %v, want %v", i, got, wantGateway[i])
		}
	}

	var prev time.Duration
	for i := 0; i < 20; i++ {
		d := p.DelayFor(server, i)
		if d < prev {
			t.Fatalf("DelayFor(%d) = %v < previous %v", i, d, prev)
		}
		if d > 30*time.Second {
			t.Fatalf("DelayFor(%d) = %v exceeds cap", i, d)
		}
		prev = d
	}

	if got := p.DelayFor(&Error{Class: ClassRateLimit}, 3); got != 0 {
		t.Errorf("DelayFor(rate limit) = %v, want 0", got)
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{Jitter: true})
	e := &Error{Class: ClassServer, StatusCode: 500}

	for i := 0; i < 50; i++ {
		d := p.DelayFor(e, 1)
		if d < 2*time.Second || d >= 2500*time.Millisecond {
			t.Fatalf("DelayFor with jitter = %v, want [2s, 2.5s)", d)
		}
	}
}

func TestRetryPolicy_ExecuteSucceedsAfterRetries(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go clk.AutoAdvance(ctx)

	var delays []time.Duration
	p := NewRetryPolicy(RetryConfig{
		Clock: clk,
		OnRetry: func(_ int, _ *Error, d time.Duration) {
			delays = append(delays, d)
		},
	})

	attempts := 0
	err := p.Execute(ctx, func(ctx context.Context, attempt int) error {
		if attempt != attempts {
			t.Errorf("attempt = %d, want %d", attempt, attempts)
		}
		attempts++
		if attempts <= 3 {
			return &Error{Class: ClassServer, StatusCode: 502}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 1200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestRetryPolicy_ExecuteExhausted(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go clk.AutoAdvance(ctx)

	p := NewRetryPolicy(RetryConfig{Clock: clk})

	attempts := 0
	err := p.Execute(ctx, func(ctx context.Context, attempt int) error {
		attempts++
		return &Error{Class: ClassServer, StatusCode: 503, Message: "try later"}
	})

	if attempts != 5 {
		t.Errorf("attempts = %d, want 5", attempts)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Execute() error = %v, want *Error", err)
	}
	if e.Class != ClassServer || e.StatusCode != 503 || e.Attempts != 5 {
		t.Errorf("error = %+v, want server/503 after 5 attempts", e)
	}
	if e.Message != "try later" {
		t.Errorf("Message = %q, want latest server message", e.Message)
	}
}

func TestRetryPolicy_ExecuteNonRetryable(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{})

	attempts := 0
	err := p.Execute(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return &Error{Class: ClassClient, StatusCode: 404}
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, ErrClient) {
		t.Errorf("Execute() error = %v, want ErrClient", err)
	}
}

func TestRetryPolicy_ExecuteContextCancelled(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	p := NewRetryPolicy(RetryConfig{Clock: clk})

	ctx, cancel := context.WithCancel(context.Background())
	registered := clk.Registered()
	go func() {
		<-registered
		cancel()
	}()

	err := p.Execute(ctx, func(ctx context.Context, attempt int) error {
		return &Error{Class: ClassNetwork}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestRetryPolicy_ExecuteCallerDeadline(t *testing.T) {
	var retries int
	p := NewRetryPolicy(RetryConfig{
		Clock:   clock.NewManual(time.Unix(0, 0)),
		OnRetry: func(int, *Error, time.Duration) { retries++ },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Execute(ctx, func(ctx context.Context, attempt int) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want context.DeadlineExceeded", err)
	}
	if retries != 0 {
		t.Errorf("OnRetry calls = %d, want 0", retries)
	}
}
