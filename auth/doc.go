// Package auth manages the bearer credential used for outgoing requests.
//
// A TokenManager caches the current credential, renews it through a
// pluggable Renewer when it is absent, expired, or rejected with 401, and
// guarantees that concurrent demands share a single renewal. When renewal
// fails the credential is cleared and the logout hook fires once.
//
// HTTPRenewer is the default renewal collaborator: it POSTs to a refresh
// endpoint with the session cookie jar and reads the new access token from
// the JSON response.
package auth
