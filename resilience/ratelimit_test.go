package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/reqflow/clock"
)

func TestNewBudget(t *testing.T) {
	b := NewBudget(BudgetConfig{})

	if b.config.Rate != 10 {
		t.Errorf("Rate = %f, want 10", b.config.Rate)
	}
	if b.config.Burst != 1 {
		t.Errorf("Burst = %d, want 1", b.config.Burst)
	}
}

func TestBudget_Allow(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	b := NewBudget(BudgetConfig{Rate: 1, Burst: 2, Clock: clk})

	if !b.Allow() || !b.Allow() {
		t.Fatal("burst not allowed")
	}
	if b.Allow() {
		t.Error("Allow() = true with empty bucket")
	}

	clk.Advance(time.Second)
	if !b.Allow() {
		t.Error("Allow() = false after refill")
	}
}

func TestBudget_Wait(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go clk.AutoAdvance(ctx)

	b := NewBudget(BudgetConfig{Rate: 2, Burst: 1, Clock: clk})
	start := clk.Now()

	if err := b.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if waited := clk.Now().Sub(start); waited < 500*time.Millisecond {
		t.Errorf("waited %v, want >= 500ms", waited)
	}
}

func TestBudget_WaitPastDeadline(t *testing.T) {
	b := NewBudget(BudgetConfig{Rate: 1, Burst: 1})
	_ = b.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := b.Wait(ctx); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Wait() error = %v, want ErrBudgetExceeded", err)
	}
}

func TestBudget_WaitCancelled(t *testing.T) {
	b := NewBudget(BudgetConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want Canceled", err)
	}
}
