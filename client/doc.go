// Package client orchestrates requests to a remote JSON API.
//
// A Client owns one instance of every shared resource: the response cache,
// the in-flight deduplication registry, the throttle state driven by the
// rate-limit governor, the admission scheduler and the credential manager.
// Separate Clients share nothing.
//
// # Request flow
//
// Each call to Request passes through these stages:
//
//  1. Read requests are answered from the cache while their TTL lasts.
//  2. Identical requests already in flight are joined, not repeated.
//  3. Every network attempt waits for admission under the throttle limits.
//  4. A credential is attached, renewing it first when none is usable.
//  5. Failures are classified. Network, timeout, rate-limit and 5xx
//     failures are retried with backoff; a 401 triggers one renewal and one
//     replay; anything else fails at once.
//  6. Successful reads are cached under their endpoint TTL.
//
// Callers see a single terminal outcome. Errors are *resilience.Error values
// and match the class sentinels under errors.Is:
//
//	res, err := c.Request(ctx, "/widgets", client.RequestOptions{})
//	if errors.Is(err, resilience.ErrRateLimited) {
//	    // every attempt was rate limited
//	}
//
// # Decoding
//
// The client does not interpret payloads. Result.Data unwraps a {"data": ...}
// envelope and Decode maps it onto a caller-owned type:
//
//	widgets, err := client.Decode[[]Widget](res)
//
// # Mutations
//
// Mutating requests are never cached. Callers that know which reads a
// mutation affects drop them with Invalidate or InvalidateAll.
package client
