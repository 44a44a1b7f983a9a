// Package cache stores successful read responses keyed by method and endpoint.
//
// It provides a Cache interface with in-memory and Redis implementations,
// canonical request keys, per-endpoint TTL policies, and a read-through helper
// used by the request orchestrator. Only read methods are cached; failures are
// never stored.
package cache
