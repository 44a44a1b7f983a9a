package config

import "errors"

var (
	// ErrMissingOrigin indicates no origin was configured and none could be
	// derived from the host name.
	ErrMissingOrigin = errors.New("config: origin is required")

	// ErrInvalidOrigin indicates the origin is not an absolute http(s) URL.
	ErrInvalidOrigin = errors.New("config: invalid origin")

	// ErrInvalidBackend indicates an unknown cache backend.
	ErrInvalidBackend = errors.New("config: invalid cache backend")

	// ErrMissingEnv indicates a ${VAR} reference to an unset variable.
	ErrMissingEnv = errors.New("config: missing required environment variables")

	// ErrUnknownProvider indicates a secret reference names an unregistered provider.
	ErrUnknownProvider = errors.New("config: secret provider not registered")

	// ErrEmptySecret indicates a provider resolved a reference to an empty value.
	ErrEmptySecret = errors.New("config: secret resolved to empty value")
)
