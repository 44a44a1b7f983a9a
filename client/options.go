package client

import (
	"net/http"
	"time"

	"github.com/jonwraymond/reqflow/auth"
	"github.com/jonwraymond/reqflow/cache"
	"github.com/jonwraymond/reqflow/clock"
	"github.com/jonwraymond/reqflow/observe"
	"github.com/jonwraymond/reqflow/resilience"
)

type options struct {
	clock      clock.Clock
	httpClient *http.Client
	renewer    auth.Renewer
	cache      cache.Cache
	middleware *observe.Middleware
	logger     observe.Logger
	onRetry    func(attempt int, err *resilience.Error, delay time.Duration)
	onLogout   func(reason string)
	onMode     func(from, to resilience.Mode)
}

// Option configures a Client.
type Option func(*options)

// WithClock sets the clock that drives TTLs, backoff, admission spacing and
// credential expiry.
// Default: the wall clock
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHTTPClient sets the HTTP client used for API calls. Its transport is
// wrapped to attach credentials; the value passed in is not modified.
// Default: a pooled cleanhttp client
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithRenewer sets the credential renewal collaborator.
// Default: an auth.HTTPRenewer posting to the configured renew URL
func WithRenewer(r auth.Renewer) Option {
	return func(o *options) { o.renewer = r }
}

// WithCache sets the response cache, overriding the configured backend.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithMiddleware sets the observability middleware wrapping each request.
// Default: observe.NopMiddleware, or one built around WithLogger
func WithMiddleware(mw *observe.Middleware) Option {
	return func(o *options) { o.middleware = mw }
}

// WithLogger sets the logger. It is ignored when WithMiddleware is given;
// the middleware's logger is used instead.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOnRetry registers a callback invoked before each retry backoff.
func WithOnRetry(fn func(attempt int, err *resilience.Error, delay time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// WithOnLogout registers the forced-logout callback. It receives the reason
// once per failed renewal.
func WithOnLogout(fn func(reason string)) Option {
	return func(o *options) { o.onLogout = fn }
}

// WithOnModeChange registers a callback for governor mode transitions.
func WithOnModeChange(fn func(from, to resilience.Mode)) Option {
	return func(o *options) { o.onMode = fn }
}

// RequestOptions describes one request.
type RequestOptions struct {
	// Method is the HTTP method.
	// Default: GET
	Method string

	// Body is encoded as JSON. []byte and json.RawMessage are sent as is.
	Body any

	// Headers are added to the request. Authorization and X-Request-ID are
	// always set by the client.
	Headers map[string]string

	// Timeout bounds each network attempt.
	// Default: the configured timeout
	Timeout time.Duration

	// ForceRefresh drops a cached read and fetches it again.
	ForceRefresh bool

	// Priority orders this request's attempts in the admission queue.
	// Callers joining an in-flight request share the leader's priority.
	// Default: resilience.PriorityNormal
	Priority resilience.Priority
}

func (o RequestOptions) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return o.Method
}
