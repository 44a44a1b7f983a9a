package cache

import (
	"context"
)

// FetchFunc produces a fresh response payload.
type FetchFunc func(ctx context.Context) ([]byte, error)

// ReadThrough serves read requests from a Cache and fills it on miss.
type ReadThrough struct {
	cache  Cache
	keyer  Keyer
	policy Policy
}

// NewReadThrough creates a read-through helper. A nil keyer uses the
// DefaultKeyer.
func NewReadThrough(cache Cache, keyer Keyer, policy Policy) *ReadThrough {
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	return &ReadThrough{cache: cache, keyer: keyer, policy: policy}
}

// Outcome describes how Execute produced its result.
type Outcome int

const (
	// Bypassed means the request was not eligible for caching.
	Bypassed Outcome = iota
	// Hit means the payload came from the cache.
	Hit
	// Miss means fetch ran and its result was stored.
	Miss
	// Refreshed means a forced refresh dropped the entry and refetched.
	Refreshed
)

// Key derives the cache key for a request.
func (r *ReadThrough) Key(method, endpoint string) (Key, error) {
	return r.keyer.Key(method, endpoint)
}

// Lookup returns a cached payload for a read request, if any.
func (r *ReadThrough) Lookup(ctx context.Context, method, endpoint string) ([]byte, bool) {
	if r.cache == nil || !Cacheable(method) || Busted(endpoint) {
		return nil, false
	}
	key, err := r.keyer.Key(method, endpoint)
	if err != nil || r.policy.TTLFor(key.Path) <= 0 {
		return nil, false
	}
	e, ok := r.cache.Lookup(ctx, key)
	if !ok {
		return nil, false
	}
	return e.Payload, true
}

// Store records a successful read response under its endpoint TTL.
func (r *ReadThrough) Store(ctx context.Context, method, endpoint string, payload []byte) error {
	if r.cache == nil || !Cacheable(method) {
		return nil
	}
	key, err := r.keyer.Key(method, endpoint)
	if err != nil {
		return nil
	}
	return r.cache.Store(ctx, key, payload, r.policy.TTLFor(key.Path))
}

// Execute serves method/endpoint from the cache or runs fetch. With
// forceRefresh, or when the endpoint carries the bust parameter, the entry is
// dropped and refetched. Errors are never cached.
func (r *ReadThrough) Execute(ctx context.Context, method, endpoint string, forceRefresh bool, fetch FetchFunc) ([]byte, Outcome, error) {
	if r.cache == nil || !Cacheable(method) || !r.policy.ShouldCache() {
		out, err := fetch(ctx)
		return out, Bypassed, err
	}

	key, err := r.keyer.Key(method, endpoint)
	if err != nil {
		out, err := fetch(ctx)
		return out, Bypassed, err
	}
	ttl := r.policy.TTLFor(key.Path)
	if ttl <= 0 {
		out, err := fetch(ctx)
		return out, Bypassed, err
	}

	outcome := Miss
	if forceRefresh || Busted(endpoint) {
		_ = r.cache.Invalidate(ctx, key)
		outcome = Refreshed
	} else if e, ok := r.cache.Lookup(ctx, key); ok {
		return e.Payload, Hit, nil
	}

	out, err := fetch(ctx)
	if err != nil {
		return out, outcome, err
	}
	_ = r.cache.Store(ctx, key, out, ttl)
	return out, outcome, nil
}

// Invalidate drops entries for endpoint. An empty method matches any method.
func (r *ReadThrough) Invalidate(ctx context.Context, method, endpoint string) error {
	if r.cache == nil {
		return ErrNilCache
	}
	key, err := r.keyer.Key(method, endpoint)
	if err != nil {
		return err
	}
	if method == "" {
		key.Method = ""
	}
	return r.cache.Invalidate(ctx, key)
}

// InvalidateAll drops every entry.
func (r *ReadThrough) InvalidateAll(ctx context.Context) error {
	if r.cache == nil {
		return ErrNilCache
	}
	return r.cache.InvalidateAll(ctx)
}

// Cache returns the underlying cache.
func (r *ReadThrough) Cache() Cache {
	return r.cache
}

// Policy returns the TTL policy.
func (r *ReadThrough) Policy() Policy {
	return r.policy
}
