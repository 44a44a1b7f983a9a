package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a Clock that only advances when Advance or Set is called.
// It is safe for concurrent use.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	added   chan struct{}
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

var _ Clock = (*Manual)(nil)

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, added: make(chan struct{})}
}

// Now returns the clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After registers a timer that fires when the clock reaches now+d.
func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.waiters = append(m.waiters, &waiter{at: m.now.Add(d), ch: ch})
	close(m.added)
	m.added = make(chan struct{})
	return ch
}

// Advance moves the clock forward by d and fires every timer that is due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	t := m.now.Add(d)
	m.mu.Unlock()
	m.Set(t)
}

// Set moves the clock to t and fires every timer that is due. Moving
// backwards is ignored.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Before(m.now) {
		return
	}
	m.now = t

	kept := m.waiters[:0]
	for _, w := range m.waiters {
		if !w.at.After(t) {
			w.ch <- t
			continue
		}
		kept = append(kept, w)
	}
	m.waiters = kept
}

// Pending reports the number of timers that have not fired yet.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// Next returns the deadline of the earliest pending timer.
func (m *Manual) Next() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.waiters) == 0 {
		return time.Time{}, false
	}
	sort.Slice(m.waiters, func(i, j int) bool {
		return m.waiters[i].at.Before(m.waiters[j].at)
	})
	return m.waiters[0].at, true
}

// AdvanceToNext moves the clock to the earliest pending deadline and returns
// how far it moved. It returns zero when nothing is pending.
func (m *Manual) AdvanceToNext() time.Duration {
	next, ok := m.Next()
	if !ok {
		return 0
	}
	now := m.Now()
	m.Set(next)
	return next.Sub(now)
}

// Registered returns a channel closed the next time a timer is registered.
func (m *Manual) Registered() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.added
}

// AutoAdvance fires pending timers in deadline order as soon as they are
// registered, until ctx ends. Tests run it in a goroutine to let code that
// sleeps on the clock proceed without real waiting.
func (m *Manual) AutoAdvance(ctx context.Context) {
	for {
		reg := m.Registered()
		if m.Pending() > 0 {
			m.AdvanceToNext()
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-reg:
		}
	}
}
