package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Classify wraps a transport-level failure. Deadlines and net timeouts become
// ClassTimeout; everything else is ClassNetwork. An already classified error
// is returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ClassTimeout, Message: "request timed out", Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Class: ClassTimeout, Message: "request timed out", Cause: err}
	}
	return &Error{Class: ClassNetwork, Message: err.Error(), Cause: err}
}

// ClassifyStatus maps an HTTP status code to a class.
func ClassifyStatus(code int) Class {
	switch {
	case code >= 200 && code < 300:
		return ClassNone
	case code == http.StatusUnauthorized:
		return ClassAuthExpired
	case code == http.StatusTooManyRequests:
		return ClassRateLimit
	case code == http.StatusInternalServerError,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return ClassServer
	default:
		return ClassClient
	}
}

// maxRetryAfterSeconds is the largest delta-seconds value that fits a
// time.Duration.
const maxRetryAfterSeconds = int64(math.MaxInt64 / int64(time.Second))

// ParseRetryAfter parses a Retry-After header value given either as delta
// seconds (digits only) or as an HTTP-date. It returns false when the value
// is absent or malformed. Dates in the past yield zero; delta-seconds too
// large for a time.Duration saturate instead of overflowing.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if isDigits(value) {
		secs, err := strconv.ParseInt(value, 10, 64)
		if err != nil || secs > maxRetryAfterSeconds {
			secs = maxRetryAfterSeconds
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := t.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ErrorBody extracts the error code and best message from a non-2xx response
// body. It understands {"error":{"code","message"}}, {"error":"..."},
// {"message":"..."} and plain text, and falls back to "HTTP {status}: {text}".
func ErrorBody(status int, body []byte) (code, message string) {
	fallback := fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", fallback
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		if len(trimmed) > 512 {
			trimmed = trimmed[:512]
		}
		return "", trimmed
	}

	switch e := doc["error"].(type) {
	case map[string]any:
		code, _ = e["code"].(string)
		message, _ = e["message"].(string)
		if message == "" {
			message, _ = e["details"].(string)
		}
	case string:
		message = e
	}
	if message == "" {
		message, _ = doc["message"].(string)
	}
	if message == "" {
		message = fallback
	}
	return code, message
}

// StatusError builds the classified error for a non-2xx response.
func StatusError(resp *http.Response, body []byte, now time.Time) *Error {
	code, msg := ErrorBody(resp.StatusCode, body)
	e := &Error{
		Class:      ClassifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Code:       code,
		Message:    msg,
	}
	if e.Class == ClassRateLimit {
		if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), now); ok {
			e.RetryAfter = d
			e.HasRetryAfter = true
		}
	}
	return e
}
