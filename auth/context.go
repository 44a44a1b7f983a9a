package auth

import (
	"context"
)

type contextKey int

const credentialKey contextKey = iota

// WithCredential returns a context carrying the credential for one attempt.
func WithCredential(ctx context.Context, c Credential) context.Context {
	return context.WithValue(ctx, credentialKey, c)
}

// CredentialFromContext returns the attempt credential, if any.
func CredentialFromContext(ctx context.Context) (Credential, bool) {
	c, ok := ctx.Value(credentialKey).(Credential)
	return c, ok && c.Token != ""
}
