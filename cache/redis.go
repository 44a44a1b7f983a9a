package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/reqflow/clock"
)

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithRedisPrefix sets the key namespace.
// Default: "reqflow:cache"
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisCache) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

// WithRedisClock sets the clock used for StoredAt and ExpiresAt stamps.
func WithRedisClock(c clock.Clock) RedisOption {
	return func(r *RedisCache) { r.clock = clock.OrReal(c) }
}

// RedisCache shares cached responses between client instances through Redis.
//
// Entries live at {prefix}:e:{hash}. Each path has an index set at
// {prefix}:p:{path} naming its entry keys, so path-wide invalidation does not
// need a keyspace scan. Expiry is delegated to Redis.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	clock  clock.Clock
}

type redisEnvelope struct {
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Query     string    `json:"query,omitempty"`
	Payload   []byte    `json:"payload"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(rdb redis.UniversalClient, opts ...RedisOption) *RedisCache {
	r := &RedisCache{
		rdb:    rdb,
		prefix: "reqflow:cache",
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisCache) entryKey(k Key) string      { return r.prefix + ":e:" + k.Hash() }
func (r *RedisCache) pathKey(path string) string { return r.prefix + ":p:" + path }
func (r *RedisCache) pathsKey() string           { return r.prefix + ":paths" }

// Lookup returns the entry for key. Redis failures are reported as misses.
func (r *RedisCache) Lookup(ctx context.Context, key Key) (Entry, bool) {
	if r == nil || r.rdb == nil {
		return Entry{}, false
	}
	raw, err := r.rdb.Get(ctx, r.entryKey(key)).Bytes()
	if err != nil {
		return Entry{}, false
	}
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Entry{}, false
	}
	if !r.clock.Now().Before(env.ExpiresAt) {
		return Entry{}, false
	}
	return Entry{
		Key:       Key{Method: env.Method, Path: env.Path, Query: env.Query},
		Payload:   env.Payload,
		StoredAt:  env.StoredAt,
		ExpiresAt: env.ExpiresAt,
	}, true
}

// Store writes the entry and indexes it under its path.
func (r *RedisCache) Store(ctx context.Context, key Key, payload []byte, ttl time.Duration) error {
	if r == nil || r.rdb == nil {
		return ErrNilCache
	}
	if ttl <= 0 {
		return nil
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	now := r.clock.Now()
	raw, err := json.Marshal(redisEnvelope{
		Method:    key.Method,
		Path:      key.Path,
		Query:     key.Query,
		Payload:   payload,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return err
	}

	ek := r.entryKey(key)
	pk := r.pathKey(key.Path)

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, ek, raw, ttl)
	pipe.SAdd(ctx, pk, ek)
	pipe.SAdd(ctx, r.pathsKey(), key.Path)
	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate removes entries matching key. A key with both method and query
// set removes one entry; otherwise the path's index is walked.
func (r *RedisCache) Invalidate(ctx context.Context, key Key) error {
	if r == nil || r.rdb == nil {
		return ErrNilCache
	}
	pk := r.pathKey(key.Path)

	if key.Method != "" && key.Query != "" {
		ek := r.entryKey(key)
		pipe := r.rdb.TxPipeline()
		pipe.Del(ctx, ek)
		pipe.SRem(ctx, pk, ek)
		_, err := pipe.Exec(ctx)
		return err
	}

	members, err := r.rdb.SMembers(ctx, pk).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	var doomed []string
	if key.Method == "" && key.Query == "" {
		doomed = members
	} else {
		for _, ek := range members {
			e, ok := r.lookupRaw(ctx, ek)
			if !ok || e.Key.Matches(key) {
				doomed = append(doomed, ek)
			}
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, doomed...)
	args := make([]any, len(doomed))
	for i, d := range doomed {
		args[i] = d
	}
	pipe.SRem(ctx, pk, args...)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateAll removes every entry in the namespace.
func (r *RedisCache) InvalidateAll(ctx context.Context) error {
	if r == nil || r.rdb == nil {
		return ErrNilCache
	}
	paths, err := r.rdb.SMembers(ctx, r.pathsKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, p := range paths {
		if err := r.Invalidate(ctx, Key{Path: p}); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(paths)+1)
	for _, p := range paths {
		keys = append(keys, r.pathKey(p))
	}
	keys = append(keys, r.pathsKey())
	return r.rdb.Del(ctx, keys...).Err()
}

// Sweep prunes index entries whose values Redis has already expired.
func (r *RedisCache) Sweep(ctx context.Context) int {
	if r == nil || r.rdb == nil {
		return 0
	}
	paths, err := r.rdb.SMembers(ctx, r.pathsKey()).Result()
	if err != nil {
		return 0
	}
	removed := 0
	for _, p := range paths {
		pk := r.pathKey(p)
		members, err := r.rdb.SMembers(ctx, pk).Result()
		if err != nil {
			continue
		}
		for _, ek := range members {
			n, err := r.rdb.Exists(ctx, ek).Result()
			if err == nil && n == 0 {
				r.rdb.SRem(ctx, pk, ek)
				removed++
			}
		}
	}
	return removed
}

func (r *RedisCache) lookupRaw(ctx context.Context, ek string) (Entry, bool) {
	raw, err := r.rdb.Get(ctx, ek).Bytes()
	if err != nil {
		return Entry{}, false
	}
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Entry{}, false
	}
	return Entry{Key: Key{Method: env.Method, Path: env.Path, Query: env.Query}}, true
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	if r == nil || r.rdb == nil {
		return ErrNilCache
	}
	return r.rdb.Ping(ctx).Err()
}

var _ Cache = (*RedisCache)(nil)
