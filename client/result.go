package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

var null = json.RawMessage("null")

// Result is the successful outcome of a request. Callers that joined the
// same in-flight request share Raw and Header; treat them as read-only.
type Result struct {
	// StatusCode is the response status. Cached results report 200.
	StatusCode int

	// Header holds the response headers. It is nil for cached results.
	Header http.Header

	// Raw is the response body, or null for an empty body.
	Raw json.RawMessage

	// Cached reports whether the result came from the response cache.
	Cached bool

	// Shared reports whether the result was delivered to several callers.
	Shared bool

	// RequestID is the X-Request-ID sent with the request.
	RequestID string
}

// Data returns the "data" member of an enveloped response, or the whole body
// when there is no envelope.
func (r *Result) Data() json.RawMessage {
	if r == nil || len(bytes.TrimSpace(r.Raw)) == 0 {
		return null
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(r.Raw, &envelope); err == nil {
		if data, ok := envelope["data"]; ok {
			return data
		}
	}
	return r.Raw
}

// Decode unmarshals Data into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Data(), v); err != nil {
		return fmt.Errorf("client: decode: %w", err)
	}
	return nil
}

// Decode unmarshals the result's Data into a new T.
func Decode[T any](r *Result) (T, error) {
	var v T
	err := r.Decode(&v)
	return v, err
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		if !json.Valid(b) {
			return nil, ErrInvalidBody
		}
		return b, nil
	default:
		out, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}
		return out, nil
	}
}
