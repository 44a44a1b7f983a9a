package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Class is the failure classification of a request attempt.
type Class int

const (
	// ClassNone marks a successful attempt.
	ClassNone Class = iota
	// ClassNetwork is a transport failure: refused, reset, DNS.
	ClassNetwork
	// ClassTimeout is an attempt that exceeded its deadline.
	ClassTimeout
	// ClassRateLimit is an HTTP 429 response.
	ClassRateLimit
	// ClassServer is an HTTP 500, 502, 503 or 504 response.
	ClassServer
	// ClassAuthExpired is an HTTP 401 that renewal could not recover.
	ClassAuthExpired
	// ClassClient is any other non-2xx response.
	ClassClient
	// ClassParse is a 2xx response whose body is not valid JSON.
	ClassParse
	// ClassAuthUnavailable means no credential could be obtained before sending.
	ClassAuthUnavailable
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNetwork:
		return "network"
	case ClassTimeout:
		return "timeout"
	case ClassRateLimit:
		return "rate_limit"
	case ClassServer:
		return "server"
	case ClassAuthExpired:
		return "auth_expired"
	case ClassClient:
		return "client"
	case ClassParse:
		return "parse"
	case ClassAuthUnavailable:
		return "auth_unavailable"
	default:
		return "unknown"
	}
}

// Retryable reports whether the retry loop may repeat an attempt of this class.
// AuthExpired is recovered by renewal and replay, not by the retry loop.
func (c Class) Retryable() bool {
	switch c {
	case ClassNetwork, ClassTimeout, ClassRateLimit, ClassServer:
		return true
	default:
		return false
	}
}

// Sentinel errors, one per class. An *Error matches the sentinel of its class
// under errors.Is.
var (
	ErrNetwork         = errors.New("resilience: network error")
	ErrTimeout         = errors.New("resilience: operation timed out")
	ErrRateLimited     = errors.New("resilience: rate limited")
	ErrServer          = errors.New("resilience: server error")
	ErrAuthExpired     = errors.New("resilience: authentication expired")
	ErrClient          = errors.New("resilience: client error")
	ErrParse           = errors.New("resilience: malformed response")
	ErrAuthUnavailable = errors.New("resilience: authentication unavailable")

	// ErrBudgetExceeded is returned when a sustained budget wait would outlast
	// the caller's deadline.
	ErrBudgetExceeded = errors.New("resilience: request budget exceeded")

	// ErrInvalidPriority indicates an unknown priority name.
	ErrInvalidPriority = errors.New("resilience: invalid priority")
)

// Sentinel returns the sentinel error for c, or nil for ClassNone.
func (c Class) Sentinel() error {
	switch c {
	case ClassNetwork:
		return ErrNetwork
	case ClassTimeout:
		return ErrTimeout
	case ClassRateLimit:
		return ErrRateLimited
	case ClassServer:
		return ErrServer
	case ClassAuthExpired:
		return ErrAuthExpired
	case ClassClient:
		return ErrClient
	case ClassParse:
		return ErrParse
	case ClassAuthUnavailable:
		return ErrAuthUnavailable
	default:
		return nil
	}
}

// Error is the classified failure of a request.
type Error struct {
	Class      Class
	StatusCode int
	Status     string
	Code       string
	Message    string
	Method     string
	Endpoint   string
	Attempts   int
	Cause      error

	// RetryAfter is the server's Retry-After hint; HasRetryAfter reports
	// whether one was sent.
	RetryAfter    time.Duration
	HasRetryAfter bool
}

// Error formats the failure with the best available message.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = e.Class.String()
	}
	if e.Method != "" || e.Endpoint != "" {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Endpoint, msg)
	}
	return msg
}

// Is matches the sentinel of the error's class.
func (e *Error) Is(target error) bool {
	s := e.Class.Sentinel()
	return s != nil && target == s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ClassOf returns the class of err, ClassNone for nil, and ClassNetwork for
// errors that carry no classification.
func ClassOf(err error) Class {
	if err == nil {
		return ClassNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return Classify(err).Class
}
