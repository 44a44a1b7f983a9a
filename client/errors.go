package client

import "errors"

// Sentinel errors for the client.
var (
	// ErrClosed is returned by Request after Close.
	ErrClosed = errors.New("client: closed")

	// ErrInvalidBody is returned when a request body cannot be encoded as JSON.
	ErrInvalidBody = errors.New("client: request body is not valid JSON")
)
