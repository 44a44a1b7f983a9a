package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// BustParam is the query parameter callers append to force a fresh fetch.
const BustParam = "_t"

// Keyer derives cache keys from a method and endpoint.
//
// Contract:
// - Determinism: equivalent endpoints must produce equal keys regardless of
// query parameter order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(method, endpoint string) (Key, error)
}

// DefaultKeyer sorts query parameters and drops cache-busting ones.
type DefaultKeyer struct {
	// Ignore lists query parameters excluded from keys.
	// Default: [BustParam]
	Ignore []string
}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{Ignore: []string{BustParam}}
}

// Key parses endpoint into a canonical key.
func (k *DefaultKeyer) Key(method, endpoint string) (Key, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	path, rawQuery, _ := strings.Cut(endpoint, "?")
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	for _, name := range k.Ignore {
		values.Del(name)
	}

	key := Key{Method: method, Path: path, Query: canonicalQuery(values)}
	if err := ValidateKey(key); err != nil {
		return Key{}, err
	}
	return key, nil
}

// canonicalQuery encodes values with sorted keys and sorted repeated values.
func canonicalQuery(values url.Values) string {
	for name := range values {
		slices.Sort(values[name])
	}
	return values.Encode()
}

// Busted reports whether endpoint carries the cache-busting parameter.
func Busted(endpoint string) bool {
	_, rawQuery, ok := strings.Cut(endpoint, "?")
	if !ok {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	return err == nil && values.Has(BustParam)
}

// Hash returns a short stable digest of the key, used by storage backends
// whose key space should not carry raw query strings.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:8])
}

var _ Keyer = (*DefaultKeyer)(nil)
