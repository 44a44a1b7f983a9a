package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// Renewer obtains a fresh credential.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use, though a
// TokenManager never calls Renew concurrently.
// - Context: Renew must honor cancellation and deadlines.
type Renewer interface {
	Renew(ctx context.Context) (Credential, error)
}

// RenewerFunc adapts a function to Renewer.
type RenewerFunc func(ctx context.Context) (Credential, error)

// Renew calls f.
func (f RenewerFunc) Renew(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// HTTPRenewerConfig configures the HTTP renewal collaborator.
type HTTPRenewerConfig struct {
	// URL is the refresh endpoint, e.g. https://host/api/auth/refresh.
	URL string

	// HTTPClient sends the refresh request. It should carry the session
	// cookie jar.
	// Default: pooled cleanhttp client with an in-memory cookie jar and 10s timeout
	HTTPClient *http.Client
}

// HTTPRenewer renews by POSTing to a refresh endpoint. The response carries
// the token at data.accessToken or accessToken.
type HTTPRenewer struct {
	config HTTPRenewerConfig
}

// NewHTTPRenewer creates an HTTP renewer.
func NewHTTPRenewer(config HTTPRenewerConfig) *HTTPRenewer {
	if config.HTTPClient == nil {
		client := cleanhttp.DefaultPooledClient()
		client.Timeout = 10 * time.Second
		if jar, err := cookiejar.New(nil); err == nil {
			client.Jar = jar
		}
		config.HTTPClient = client
	}
	return &HTTPRenewer{config: config}
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	Data        *struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

// Renew performs the refresh request.
func (r *HTTPRenewer) Renew(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrRenewalFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.config.HTTPClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrRenewalFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrRenewalFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Credential{}, fmt.Errorf("%w: HTTP %d", ErrRenewalFailed, resp.StatusCode)
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	token := out.AccessToken
	if out.Data != nil && out.Data.AccessToken != "" {
		token = out.Data.AccessToken
	}
	if token == "" {
		return Credential{}, fmt.Errorf("%w: response has no access token", ErrTokenMalformed)
	}
	return ParseCredential(token, SourceRenewed), nil
}

// Config returns the renewer configuration.
func (r *HTTPRenewer) Config() HTTPRenewerConfig {
	return r.config
}

var (
	_ Renewer = RenewerFunc(nil)
	_ Renewer = (*HTTPRenewer)(nil)
)
