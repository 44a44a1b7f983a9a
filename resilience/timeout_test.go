package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout(t *testing.T) {
	to := NewTimeout(TimeoutConfig{})
	if to.Config().Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", to.Config().Timeout)
	}
}

func TestTimeout_Success(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
}

func TestTimeout_Expired(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: 10 * time.Millisecond})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() error = %v, want ErrTimeout", err)
	}
	if ClassOf(err) != ClassTimeout {
		t.Errorf("ClassOf() = %v, want timeout", ClassOf(err))
	}
}

func TestTimeout_ParentCancelled(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := to.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("parent cancellation classified as timeout")
	}
}

func TestTimeout_ExecuteForOverride(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Hour})

	err := to.ExecuteFor(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("ExecuteFor() error = %v, want ErrTimeout", err)
	}
}

func TestExecuteWithTimeout(t *testing.T) {
	err := ExecuteWithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return errors.New("boom")
	})
	if err == nil || errors.Is(err, ErrTimeout) {
		t.Errorf("ExecuteWithTimeout() error = %v, want boom", err)
	}
}
