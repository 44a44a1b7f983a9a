package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Source records where a credential came from.
type Source int

const (
	// SourceCached is a credential served from the manager's cache.
	SourceCached Source = iota
	// SourceRenewed is a credential produced by a renewal.
	SourceRenewed
)

// String returns the source name.
func (s Source) String() string {
	if s == SourceRenewed {
		return "renewed"
	}
	return "cached"
}

// Credential is a bearer token plus the claims read from it.
type Credential struct {
	Token     string
	Source    Source
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ParseCredential builds a credential from token. JWT claims are read
// without signature verification; the server remains the authority. Opaque
// tokens yield a credential with no expiry.
func ParseCredential(token string, source Source) Credential {
	c := Credential{Token: token, Source: source}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return c
	}
	c.Subject = claims.Subject
	if claims.IssuedAt != nil {
		c.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	return c
}

// Usable reports whether the credential can be sent at now, treating tokens
// that expire within skew as already expired.
func (c Credential) Usable(now time.Time, skew time.Duration) bool {
	if c.Token == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Add(skew).Before(c.ExpiresAt)
}

// Header returns the Authorization header value.
func (c Credential) Header() string {
	return "Bearer " + c.Token
}
