package dedup

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ProduceFunc produces the shared outcome for a key.
type ProduceFunc[T any] func(ctx context.Context) (T, error)

// Deduplicator coalesces concurrent calls by key. The zero value is not
// usable; call New.
type Deduplicator[T any] struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]int
	leaders  int64
	joined   int64
}

// New creates a deduplicator.
func New[T any]() *Deduplicator[T] {
	return &Deduplicator[T]{inflight: make(map[string]int)}
}

// Do returns the outcome of produce for key, running it only if no call for
// key is in flight. shared reports whether the outcome was delivered to more
// than one caller. If ctx ends first, Do returns ctx.Err() without cancelling
// the producer.
func (d *Deduplicator[T]) Do(ctx context.Context, key string, produce ProduceFunc[T]) (v T, shared bool, err error) {
	if err := ctx.Err(); err != nil {
		return v, false, err
	}

	detached := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		d.mu.Lock()
		d.leaders++
		d.mu.Unlock()
		return produce(detached)
	})
	d.enter(key)
	defer d.leave(key)

	select {
	case <-ctx.Done():
		return v, false, ctx.Err()
	case r := <-ch:
		if r.Shared {
			d.mu.Lock()
			d.joined++
			d.mu.Unlock()
		}
		if r.Val != nil {
			v = r.Val.(T)
		}
		return v, r.Shared, r.Err
	}
}

// Forget releases key so the next call starts a fresh producer even while
// the current one is still running.
func (d *Deduplicator[T]) Forget(key string) {
	d.group.Forget(key)
}

// InFlight reports the number of callers currently waiting on key.
func (d *Deduplicator[T]) InFlight(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight[key]
}

// Stats returns deduplication counters.
func (d *Deduplicator[T]) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	waiting := 0
	for _, n := range d.inflight {
		waiting += n
	}
	return Stats{
		Keys:      len(d.inflight),
		Waiting:   waiting,
		Producers: d.leaders,
		Shared:    d.joined,
	}
}

func (d *Deduplicator[T]) enter(key string) {
	d.mu.Lock()
	d.inflight[key]++
	d.mu.Unlock()
}

func (d *Deduplicator[T]) leave(key string) {
	d.mu.Lock()
	if d.inflight[key]--; d.inflight[key] <= 0 {
		delete(d.inflight, key)
	}
	d.mu.Unlock()
}

// Stats contains deduplication statistics.
type Stats struct {
	// Keys is the number of keys with waiting callers.
	Keys int
	// Waiting is the number of callers currently waiting.
	Waiting int
	// Producers counts producer runs.
	Producers int64
	// Shared counts deliveries of an outcome that reached several callers.
	Shared int64
}
