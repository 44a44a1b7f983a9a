package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/reqflow/auth"
	"github.com/jonwraymond/reqflow/cache"
	"github.com/jonwraymond/reqflow/clock"
	"github.com/jonwraymond/reqflow/config"
	"github.com/jonwraymond/reqflow/dedup"
	"github.com/jonwraymond/reqflow/health"
	"github.com/jonwraymond/reqflow/observe"
	"github.com/jonwraymond/reqflow/resilience"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 10 << 20

// Client orchestrates requests to one API origin.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use.
//   - Context: Request honors cancellation while waiting. A cancelled caller
//     stops waiting, but a network call it leads keeps running for callers
//     that joined it.
//   - Errors: Request returns a *resilience.Error for every classified
//     failure, ErrClosed after Close, or the caller's context error.
type Client struct {
	cfg   config.Config
	clock clock.Clock
	http  *http.Client

	reads     *cache.ReadThrough
	inflight  *dedup.Deduplicator[*Result]
	throttle  *resilience.Throttle
	governor  *resilience.Governor
	scheduler *resilience.Scheduler
	retry     resilience.RetryConfig
	timeout   *resilience.Timeout
	tokens    *auth.TokenManager

	mw      *observe.Middleware
	log     observe.Logger
	onRetry func(attempt int, err *resilience.Error, delay time.Duration)

	rdb    redis.UniversalClient
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a client for cfg. Zero fields fall back to each component's
// defaults; start from config.Default to get the documented defaults.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	mw := o.middleware
	if mw == nil {
		mw = observe.NewMiddleware(nil, nil, o.logger)
	}

	clk := clock.OrReal(o.clock)
	c := &Client{
		cfg:      cfg,
		clock:    clk,
		http:     newHTTPClient(o.httpClient),
		inflight: dedup.New[*Result](),
		mw:       mw,
		log:      mw.Logger(),
		onRetry:  o.onRetry,
		done:     make(chan struct{}),
	}

	store := o.cache
	if store == nil {
		store = c.newCache(cfg.Cache)
	}
	c.reads = cache.NewReadThrough(store, cache.NewDefaultKeyer(), cache.Policy{
		DefaultTTL: cfg.Cache.DefaultTTL,
		TTLs:       cfg.Cache.TTLs,
	})

	c.throttle = resilience.NewThrottle(limits(cfg.Throttle.Normal), clk)
	c.governor = resilience.NewGovernor(resilience.GovernorConfig{
		Normal:     limits(cfg.Throttle.Normal),
		Degraded:   limits(cfg.Throttle.Degraded),
		Recovering: limits(cfg.Throttle.Recovering),
		BaseDelay:  cfg.Throttle.BaseDelay,
		MaxDelay:   cfg.Throttle.MaxDelay,
		OnModeChange: func(from, to resilience.Mode) {
			c.modeChanged(from, to)
			if o.onMode != nil {
				o.onMode(from, to)
			}
		},
	}, c.throttle)

	var budget *resilience.Budget
	if cfg.Throttle.RequestsPerSecond > 0 {
		budget = resilience.NewBudget(resilience.BudgetConfig{
			Rate:  cfg.Throttle.RequestsPerSecond,
			Burst: cfg.Throttle.Burst,
			Clock: clk,
		})
	}
	c.scheduler = resilience.NewScheduler(resilience.SchedulerConfig{Budget: budget}, c.throttle)

	c.retry = resilience.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		GatewayDelay: cfg.Retry.GatewayDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.Jitter > 0,
		Clock:        clk,
	}
	c.timeout = resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.Timeout})

	renewer := o.renewer
	if renewer == nil {
		renewer = auth.NewHTTPRenewer(auth.HTTPRenewerConfig{URL: cfg.RenewURL()})
	}
	c.tokens = auth.NewTokenManager(auth.ManagerConfig{
		Renewer:      renewer,
		Token:        cfg.Auth.Token,
		RenewTimeout: cfg.Auth.RenewTimeout,
		ExpirySkew:   cfg.Auth.ExpirySkew,
		Clock:        clk,
		OnRenew: func(cred auth.Credential) {
			c.log.Info(context.Background(), "credential renewed",
				observe.F("subject", cred.Subject),
				observe.F("expires_at", cred.ExpiresAt))
		},
		OnLogout: func(reason string) {
			c.log.Error(context.Background(), "forced logout", observe.F("reason", reason))
			if o.onLogout != nil {
				o.onLogout(reason)
			}
		},
	})

	if cfg.Cache.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweep(cfg.Cache.SweepInterval)
	}
	return c, nil
}

func newHTTPClient(hc *http.Client) *http.Client {
	out := cleanhttp.DefaultPooledClient()
	if hc != nil {
		cp := *hc
		out = &cp
	}
	base := out.Transport
	if base == nil {
		base = cleanhttp.DefaultPooledTransport()
	}
	out.Transport = &auth.Transport{Base: base}
	return out
}

func (c *Client) newCache(cfg config.CacheConfig) cache.Cache {
	if cfg.Backend == "redis" {
		c.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewRedisCache(c.rdb,
			cache.WithRedisPrefix(cfg.Redis.Prefix),
			cache.WithRedisClock(c.clock))
	}
	return cache.NewMemoryCache(
		cache.WithClock(c.clock),
		cache.WithSweepInterval(cfg.SweepInterval))
}

func limits(l config.LimitsConfig) resilience.Limits {
	return resilience.Limits{MaxConcurrent: l.MaxConcurrent, MinInterval: l.MinInterval}
}

// Request performs a request to endpoint, a path relative to the API prefix
// that may carry a query string.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (*Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	meta := observe.RequestMeta{
		Method:    strings.ToUpper(opts.method()),
		Endpoint:  endpoint,
		RequestID: uuid.NewString(),
	}
	exec := c.mw.Wrap(func(ctx context.Context, meta observe.RequestMeta) (any, error) {
		return c.execute(ctx, meta, opts)
	})

	out, err := exec(ctx, meta)
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (c *Client) execute(ctx context.Context, meta observe.RequestMeta, opts RequestOptions) (*Result, error) {
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, &resilience.Error{
			Class:    resilience.ClassClient,
			Method:   meta.Method,
			Endpoint: meta.Endpoint,
			Message:  err.Error(),
			Cause:    err,
		}
	}
	if body != nil {
		return c.send(ctx, meta, opts, body)
	}

	var fetched *Result
	payload, outcome, err := c.reads.Execute(ctx, meta.Method, meta.Endpoint, opts.ForceRefresh,
		func(ctx context.Context) ([]byte, error) {
			res, err := c.join(ctx, meta, opts)
			if err != nil {
				return nil, err
			}
			fetched = res
			return res.Raw, nil
		})

	switch outcome {
	case cache.Hit:
		c.mw.Metrics().RecordCache(ctx, meta, true)
		c.log.WithRequest(meta).Debug(ctx, "cache hit")
		return &Result{
			StatusCode: http.StatusOK,
			Raw:        payload,
			Cached:     true,
			RequestID:  meta.RequestID,
		}, nil
	case cache.Miss, cache.Refreshed:
		c.mw.Metrics().RecordCache(ctx, meta, false)
	}
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

// join runs the request, or awaits the identical one already in flight.
func (c *Client) join(ctx context.Context, meta observe.RequestMeta, opts RequestOptions) (*Result, error) {
	key := meta.Method + " " + meta.Endpoint
	res, shared, err := c.inflight.Do(ctx, key, func(ctx context.Context) (*Result, error) {
		return c.send(ctx, meta, opts, nil)
	})
	if shared {
		c.mw.Metrics().RecordDedupJoin(ctx, meta)
		c.log.WithRequest(meta).Debug(ctx, "joined in-flight request", observe.F("key", key))
	}
	if err != nil {
		return nil, err
	}
	out := *res
	out.Shared = shared
	return &out, nil
}

// send runs the retry loop for one logical request.
func (c *Client) send(ctx context.Context, meta observe.RequestMeta, opts RequestOptions, body []byte) (*Result, error) {
	rc := c.retry
	rc.OnRetry = func(attempt int, err *resilience.Error, delay time.Duration) {
		c.mw.Metrics().RecordRetry(ctx, meta, err)
		c.log.WithRequest(meta).Warn(ctx, "retry scheduled",
			observe.F("attempt", attempt+1),
			observe.F("error.class", err.Class.String()),
			observe.F("status", err.StatusCode),
			observe.F("delay_ms", delay.Milliseconds()))
		if c.onRetry != nil {
			c.onRetry(attempt, err, delay)
		}
	}

	var res *Result
	err := resilience.NewRetryPolicy(rc).Execute(ctx, func(ctx context.Context, attempt int) error {
		r, err := c.attempt(ctx, meta, opts, body, attempt)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		var e *resilience.Error
		if errors.As(err, &e) {
			e.Method, e.Endpoint = meta.Method, meta.Endpoint
		}
		return nil, err
	}
	return res, nil
}

func (c *Client) attempt(ctx context.Context, meta observe.RequestMeta, opts RequestOptions, body []byte, attempt int) (*Result, error) {
	ctx, span := c.mw.Tracer().StartAttempt(ctx, meta, attempt)
	res, err := c.admitted(ctx, meta, opts, body, attempt)
	c.mw.Tracer().EndSpan(span, err)
	return res, err
}

// admitted performs one attempt inside a single acquire/release pair.
func (c *Client) admitted(ctx context.Context, meta observe.RequestMeta, opts RequestOptions, body []byte, attempt int) (*Result, error) {
	start := c.clock.Now()
	release, err := c.scheduler.AcquirePriority(ctx, opts.Priority)
	if err != nil {
		if errors.Is(err, resilience.ErrBudgetExceeded) {
			return nil, &resilience.Error{Class: resilience.ClassTimeout, Message: "request budget exhausted before deadline", Cause: err}
		}
		return nil, err
	}
	defer release()

	m := c.mw.Metrics()
	m.RecordAdmissionWait(ctx, c.clock.Now().Sub(start))
	m.AddInFlight(ctx, 1)
	defer m.AddInFlight(ctx, -1)

	cred, err := c.tokens.Credential(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &resilience.Error{Class: resilience.ClassAuthUnavailable, Message: "no credential available", Cause: err}
	}

	resp, raw, err := c.roundTrip(ctx, meta, opts, body, cred)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		resp, raw, err = c.replay(ctx, meta, opts, body, cred)
	}
	if err != nil {
		return nil, err
	}
	return c.handle(ctx, meta, resp, raw, attempt)
}

// replay renews a rejected credential and repeats the call once.
func (c *Client) replay(ctx context.Context, meta observe.RequestMeta, opts RequestOptions, body []byte, stale auth.Credential) (*http.Response, []byte, error) {
	fresh, err := c.tokens.Renew(ctx, stale.Token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &resilience.Error{
			Class:      resilience.ClassAuthExpired,
			StatusCode: http.StatusUnauthorized,
			Status:     http.StatusText(http.StatusUnauthorized),
			Message:    "session expired",
			Cause:      err,
		}
	}

	c.log.WithRequest(meta).Debug(ctx, "replaying with renewed credential")
	resp, raw, err := c.roundTrip(ctx, meta, opts, body, fresh)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Logout(auth.ReasonExpired)
	}
	return resp, raw, err
}

// roundTrip sends one HTTP request under the per-attempt timeout and reads
// the whole body.
func (c *Client) roundTrip(ctx context.Context, meta observe.RequestMeta, opts RequestOptions, body []byte, cred auth.Credential) (*http.Response, []byte, error) {
	var (
		resp *http.Response
		raw  []byte
	)
	err := c.timeout.ExecuteFor(ctx, opts.Timeout, func(ctx context.Context) error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(auth.WithCredential(ctx, cred), meta.Method, c.cfg.URL(meta.Endpoint), rd)
		if err != nil {
			return &resilience.Error{Class: resilience.ClassClient, Message: err.Error(), Cause: err}
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("X-Request-ID", meta.RequestID)

		r, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = r.Body.Close() }()

		b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		resp, raw = r, b
		return nil
	})
	return resp, raw, err
}

// handle turns a response into a result or a classified error and feeds the
// governor.
func (c *Client) handle(ctx context.Context, meta observe.RequestMeta, resp *http.Response, raw []byte, attempt int) (*Result, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.governor.RecordSuccess()

		switch {
		case resp.StatusCode == http.StatusNoContent && len(bytes.TrimSpace(raw)) == 0:
			raw = null
		case !json.Valid(raw):
			return nil, &resilience.Error{
				Class:      resilience.ClassParse,
				StatusCode: resp.StatusCode,
				Status:     http.StatusText(resp.StatusCode),
				Message:    "response body is not valid JSON",
			}
		}
		return &Result{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Raw:        raw,
			RequestID:  meta.RequestID,
		}, nil
	}

	e := resilience.StatusError(resp, raw, c.clock.Now())
	if e.Class == resilience.ClassRateLimit {
		delay := c.governor.RecordRateLimit(e, attempt)
		c.mw.Metrics().RecordRateLimit(ctx, meta)
		c.log.WithRequest(meta).Warn(ctx, "rate limited",
			observe.F("attempt", attempt+1),
			observe.F("delay_ms", delay.Milliseconds()),
			observe.F("retry_after", e.HasRetryAfter),
			observe.F("mode", c.governor.Mode().String()))
	}
	return nil, e
}

func (c *Client) modeChanged(from, to resilience.Mode) {
	fields := []observe.Field{
		observe.F("from", from.String()),
		observe.F("to", to.String()),
	}
	if to == resilience.ModeNormal {
		c.log.Info(context.Background(), "governor mode changed", fields...)
		return
	}
	c.log.Warn(context.Background(), "governor mode changed", fields...)
}

func (c *Client) sweep(every time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n := c.reads.Cache().Sweep(context.Background()); n > 0 {
				c.log.Debug(context.Background(), "cache swept", observe.F("removed", n))
			}
		}
	}
}

// Invalidate drops cached reads of endpoint. An empty method matches every
// method, and an endpoint without a query matches every query variant.
func (c *Client) Invalidate(ctx context.Context, endpoint, method string) error {
	return c.reads.Invalidate(ctx, method, endpoint)
}

// InvalidateAll drops every cached read.
func (c *Client) InvalidateAll(ctx context.Context) error {
	return c.reads.InvalidateAll(ctx)
}

// SetToken installs a credential, e.g. after login.
func (c *Client) SetToken(token string) {
	c.tokens.Set(token)
}

// Throttle returns a snapshot of the shared admission state.
func (c *Client) Throttle() resilience.ThrottleState {
	return c.throttle.State()
}

// Config returns the client's configuration.
func (c *Client) Config() config.Config {
	return c.cfg
}

// Stats contains client statistics.
type Stats struct {
	// Cache is populated for caches that keep counters.
	Cache     cache.Stats
	Dedup     dedup.Stats
	Scheduler resilience.SchedulerMetrics
	Throttle  resilience.ThrottleState
	Auth      auth.ManagerStats
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Dedup:     c.inflight.Stats(),
		Scheduler: c.scheduler.Metrics(),
		Throttle:  c.throttle.State(),
		Auth:      c.tokens.Stats(),
	}
	if cs, ok := c.reads.Cache().(interface{ Stats() cache.Stats }); ok {
		s.Cache = cs.Stats()
	}
	return s
}

// RegisterHealth registers the client's checkers on agg: the server probe,
// the throttle state and, when the cache can be pinged, the cache backend.
func (c *Client) RegisterHealth(agg *health.Aggregator) {
	server := health.NewServerChecker(health.ServerCheckerConfig{
		URL:        c.cfg.HealthURL(),
		HTTPClient: c.http,
	})
	agg.Register(server.Name(), server)

	throttle := health.NewThrottleChecker(c.throttle, c.clock)
	agg.Register(throttle.Name(), throttle)

	if p, ok := c.reads.Cache().(health.Pinger); ok {
		agg.Register("cache", health.NewPingChecker("cache", p))
	}
}

// Close stops background sweeping and releases the cache backend. Requests
// started afterwards fail with ErrClosed. Close is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	c.wg.Wait()
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
