package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length of a key's string form.
const MaxKeyLength = 2048

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Key identifies a cached response. Request bodies are never part of a key.
type Key struct {
	// Method is the upper-case HTTP method.
	Method string

	// Path is the endpoint path relative to the API prefix.
	Path string

	// Query is the canonical query string, without cache-busting parameters.
	Query string
}

// String returns "METHOD /path?query".
func (k Key) String() string {
	s := k.Method + " " + k.Path
	if k.Query != "" {
		s += "?" + k.Query
	}
	return s
}

// Endpoint returns the path with its canonical query.
func (k Key) Endpoint() string {
	if k.Query == "" {
		return k.Path
	}
	return k.Path + "?" + k.Query
}

// Matches reports whether k falls under pattern. An empty pattern method
// matches any method and an empty pattern query matches every query variant.
func (k Key) Matches(pattern Key) bool {
	if pattern.Method != "" && pattern.Method != k.Method {
		return false
	}
	if pattern.Path != k.Path {
		return false
	}
	return pattern.Query == "" || pattern.Query == k.Query
}

// Entry is a cached response.
type Entry struct {
	Key       Key
	Payload   []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Cache stores read responses.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Lookup never errors; it returns (Entry{}, false) on miss or expiry.
// - Store with a non-positive TTL is a no-op.
// - Invalidate and InvalidateAll are idempotent.
type Cache interface {
	// Lookup returns the live entry for key.
	Lookup(ctx context.Context, key Key) (Entry, bool)

	// Store records payload under key for ttl.
	Store(ctx context.Context, key Key, payload []byte, ttl time.Duration) error

	// Invalidate removes every entry matching key (see Key.Matches).
	Invalidate(ctx context.Context, key Key) error

	// InvalidateAll removes every entry.
	InvalidateAll(ctx context.Context) error

	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) int
}

// Cacheable reports whether responses to method may be cached.
func Cacheable(method string) bool {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead:
		return true
	default:
		return false
	}
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(k Key) error {
	if strings.TrimSpace(k.Path) == "" || !strings.HasPrefix(k.Path, "/") {
		return ErrInvalidKey
	}
	if len(k.String()) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(k.String(), "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
