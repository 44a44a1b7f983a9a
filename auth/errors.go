package auth

import "errors"

// Sentinel errors for credential management.
var (
	// ErrAuthUnavailable is returned when no credential can be obtained
	// before a request is sent.
	ErrAuthUnavailable = errors.New("auth: credential unavailable")

	// ErrRenewalFailed is returned when the renewal collaborator fails or
	// returns no token.
	ErrRenewalFailed = errors.New("auth: token renewal failed")

	// ErrNoRenewer is returned when a manager has no renewal collaborator.
	ErrNoRenewer = errors.New("auth: no renewer configured")

	// ErrTokenMalformed is returned by a renewer whose response carries no
	// usable token.
	ErrTokenMalformed = errors.New("auth: token malformed")
)
