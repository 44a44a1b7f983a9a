package auth

import "net/http"

// Transport is an http.RoundTripper that sets the Authorization header from
// the credential attached to the request context with WithCredential.
// Requests without one pass through unchanged.
//
// Usage:
//
//	client := &http.Client{Transport: &auth.Transport{Base: cleanhttp.DefaultPooledTransport()}}
//	req = req.WithContext(auth.WithCredential(req.Context(), cred))
type Transport struct {
	// Base is the underlying transport.
	// Default: http.DefaultTransport
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	c, ok := CredentialFromContext(req.Context())
	if !ok {
		return base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", c.Header())
	return base.RoundTrip(r)
}

var _ http.RoundTripper = (*Transport)(nil)
