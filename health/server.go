package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// ServerCheckerConfig configures the API server probe.
type ServerCheckerConfig struct {
	// URL is the health endpoint, typically {origin}/health.
	URL string

	// HTTPClient sends the probe.
	// Default: a pooled cleanhttp client
	HTTPClient *http.Client

	// Timeout bounds a single probe.
	// Default: 5 seconds
	Timeout time.Duration
}

// ServerChecker probes the API server's health endpoint. Any 2xx answer is
// Healthy; other statuses and transport failures are Unhealthy.
type ServerChecker struct {
	config ServerCheckerConfig
}

// NewServerChecker creates a server probe.
func NewServerChecker(config ServerCheckerConfig) *ServerChecker {
	if config.HTTPClient == nil {
		config.HTTPClient = cleanhttp.DefaultPooledClient()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &ServerChecker{config: config}
}

// Name returns the name of this checker.
func (c *ServerChecker) Name() string {
	return "server"
}

// Check sends GET to the configured URL.
func (c *ServerChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return Unhealthy("invalid health URL", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return Unhealthy("server unreachable", err).WithDuration(time.Since(start))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	details := map[string]any{
		"url":         c.config.URL,
		"status_code": resp.StatusCode,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Unhealthy(
			fmt.Sprintf("server returned %d", resp.StatusCode),
			fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		).WithDetails(details).WithDuration(time.Since(start))
	}
	return Healthy("server reachable").WithDetails(details).WithDuration(time.Since(start))
}
