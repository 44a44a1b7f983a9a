package resilience

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Priority orders waiters in the admission queue. Higher priorities are
// admitted first; equal priorities keep arrival order.
type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

// String returns the priority name.
func (p Priority) String() string {
	switch {
	case p > PriorityNormal:
		return "high"
	case p < PriorityNormal:
		return "low"
	default:
		return "normal"
	}
}

// ParsePriority parses "high", "normal" or "low". Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityNormal, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// SchedulerConfig configures admission.
type SchedulerConfig struct {
	// PollInterval caps how long a waiter sleeps before re-evaluating.
	// Default: 250ms
	PollInterval time.Duration

	// Budget, when set, is waited on before joining the admission queue.
	Budget *Budget
}

// Scheduler admits attempts under the shared throttle: in-flight count below
// the limit, minimum spacing since the last admission, and the rate-limit
// gate open. Waiters are admitted by priority, then in arrival order.
type Scheduler struct {
	config   SchedulerConfig
	throttle *Throttle

	// guarded by throttle.mu
	queue     *list.List
	admitted  int64
	maxActive int
	waited    time.Duration
}

// NewScheduler creates a scheduler over t.
func NewScheduler(config SchedulerConfig, t *Throttle) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	return &Scheduler{
		config:   config,
		throttle: t,
		queue:    list.New(),
	}
}

// Acquire blocks until an attempt may start and returns its release
// function. Release is idempotent; only the first call frees the slot.
func (s *Scheduler) Acquire(ctx context.Context) (release func(), err error) {
	return s.AcquirePriority(ctx, PriorityNormal)
}

// AcquirePriority is Acquire for a waiter queued at priority p.
func (s *Scheduler) AcquirePriority(ctx context.Context, p Priority) (release func(), err error) {
	if s.config.Budget != nil {
		if err := s.config.Budget.Wait(ctx); err != nil {
			return nil, err
		}
	}

	t := s.throttle
	clk := t.clock
	start := clk.Now()

	t.mu.Lock()
	me := s.enqueueLocked(p)
	t.mu.Unlock()

	for {
		t.mu.Lock()
		now := clk.Now()
		st := &t.state

		var wait time.Duration
		blocked := s.queue.Front() != me || st.InFlight >= st.MaxConcurrent
		if !blocked {
			next := st.LastIssuedAt.Add(st.MinInterval)
			if st.ResumeAt.After(next) {
				next = st.ResumeAt
			}
			wait = next.Sub(now)
		}

		if !blocked && wait <= 0 {
			s.queue.Remove(me)
			st.InFlight++
			st.LastIssuedAt = now
			s.admitted++
			if st.InFlight > s.maxActive {
				s.maxActive = st.InFlight
			}
			s.waited += now.Sub(start)
			t.broadcastLocked()
			t.mu.Unlock()
			return s.releaser(), nil
		}

		changed := t.changed
		t.mu.Unlock()

		var timer <-chan time.Time
		if !blocked {
			timer = clk.After(min(wait, s.config.PollInterval))
		}

		select {
		case <-ctx.Done():
			t.mu.Lock()
			s.queue.Remove(me)
			t.broadcastLocked()
			t.mu.Unlock()
			return nil, ctx.Err()
		case <-changed:
		case <-timer:
		}
	}
}

// enqueueLocked inserts a waiter behind every waiter of equal or higher
// priority.
func (s *Scheduler) enqueueLocked(p Priority) *list.Element {
	for e := s.queue.Back(); e != nil; e = e.Prev() {
		if e.Value.(Priority) >= p {
			return s.queue.InsertAfter(p, e)
		}
	}
	return s.queue.PushFront(p)
}

func (s *Scheduler) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			t := s.throttle
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.state.InFlight > 0 {
				t.state.InFlight--
			}
			t.broadcastLocked()
		})
	}
}

// Execute runs op within one acquire/release pair.
func (s *Scheduler) Execute(ctx context.Context, op func(context.Context) error) error {
	release, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return op(ctx)
}

// Metrics returns current scheduler metrics.
func (s *Scheduler) Metrics() SchedulerMetrics {
	t := s.throttle
	t.mu.Lock()
	defer t.mu.Unlock()

	return SchedulerMetrics{
		InFlight:      t.state.InFlight,
		MaxInFlight:   s.maxActive,
		MaxConcurrent: t.state.MaxConcurrent,
		Waiting:       s.queue.Len(),
		Admitted:      s.admitted,
		TotalWait:     s.waited,
	}
}

// SchedulerMetrics contains admission statistics.
type SchedulerMetrics struct {
	InFlight      int
	MaxInFlight   int
	MaxConcurrent int
	Waiting       int
	Admitted      int64
	TotalWait     time.Duration
}
