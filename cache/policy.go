package cache

import (
	"strings"
	"time"
)

// Policy maps endpoints to TTLs.
type Policy struct {
	// DefaultTTL applies to endpoints without a table entry.
	// If zero, unlisted endpoints are not cached.
	DefaultTTL time.Duration

	// TTLs maps an endpoint path, or a path prefix ending at a segment
	// boundary, to its TTL. A non-positive value disables caching.
	TTLs map[string]time.Duration

	// MaxTTL clamps every TTL. If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultPolicy returns the default caching policy.
// DefaultTTL: 30 seconds, no table, no maximum.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: 30 * time.Second}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache returns true if any endpoint can be cached under this policy.
func (p Policy) ShouldCache() bool {
	if p.DefaultTTL > 0 {
		return true
	}
	for _, ttl := range p.TTLs {
		if ttl > 0 {
			return true
		}
	}
	return false
}

// TTLFor returns the TTL for path: an exact table entry, else the longest
// matching prefix entry, else DefaultTTL.
func (p Policy) TTLFor(path string) time.Duration {
	ttl, ok := p.TTLs[path]
	if !ok {
		ttl = p.DefaultTTL
		best := -1
		for prefix, v := range p.TTLs {
			if len(prefix) > best && hasSegmentPrefix(path, prefix) {
				ttl, best = v, len(prefix)
			}
		}
	}
	return p.EffectiveTTL(ttl)
}

// EffectiveTTL clamps ttl to MaxTTL. Non-positive TTLs become zero.
func (p Policy) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

func hasSegmentPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
