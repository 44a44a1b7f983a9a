package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jonwraymond/reqflow/observe"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REQFLOW"

// keyDelimiter separates nested viper keys. TTL table keys are endpoint paths
// that may contain dots, so the default "." is not usable.
const keyDelimiter = "::"

// Config is the complete reqflow configuration.
type Config struct {
	// Origin is the scheme and host of the API server, e.g. https://app.example.com.
	// Default: $REQFLOW_ORIGIN, then http://<hostname>
	Origin string `mapstructure:"origin"`

	// APIPrefix is joined between the origin and every endpoint.
	// Default: /api
	APIPrefix string `mapstructure:"api_prefix"`

	// Timeout bounds a single network attempt.
	// Default: 30s
	Timeout time.Duration `mapstructure:"timeout"`

	Retry    RetryConfig    `mapstructure:"retry"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Observe  observe.Config `mapstructure:"observe"`
}

// RetryConfig configures retry of transient failures.
type RetryConfig struct {
	// MaxAttempts counts every attempt including the first.
	// Default: 5
	MaxAttempts int `mapstructure:"max_attempts"`

	// InitialDelay is the first backoff delay.
	// Default: 1s
	InitialDelay time.Duration `mapstructure:"initial_delay"`

	// GatewayDelay is the first backoff delay after a 502.
	// Default: 300ms
	GatewayDelay time.Duration `mapstructure:"gateway_delay"`

	// MaxDelay caps a single backoff delay.
	// Default: 30s
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// Multiplier grows the delay per attempt.
	// Default: 2
	Multiplier float64 `mapstructure:"multiplier"`

	// Jitter randomizes delays by up to this fraction.
	// Default: 0
	Jitter float64 `mapstructure:"jitter"`
}

// LimitsConfig bounds admission in one governor mode.
type LimitsConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MinInterval   time.Duration `mapstructure:"min_interval"`
}

// ThrottleConfig configures the rate-limit governor and admission.
type ThrottleConfig struct {
	// Default: 2 concurrent, 500ms apart
	Normal LimitsConfig `mapstructure:"normal"`

	// Default: 1 concurrent, 1s apart
	Degraded LimitsConfig `mapstructure:"degraded"`

	// Default: 1 concurrent, 750ms apart
	Recovering LimitsConfig `mapstructure:"recovering"`

	// BaseDelay is the rate-limit backoff base.
	// Default: 1s
	BaseDelay time.Duration `mapstructure:"base_delay"`

	// MaxDelay caps a rate-limit pause.
	// Default: 60s
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// RequestsPerSecond enables a sustained request budget when positive.
	// Default: 0 (disabled)
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	// Burst is the budget's bucket size.
	// Default: 1
	Burst int `mapstructure:"burst"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// DefaultTTL applies to endpoints without a TTL table entry.
	// Default: 30s
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// TTLs maps endpoint paths (exact or segment prefix) to a TTL. A
	// non-positive TTL disables caching for that path.
	TTLs map[string]time.Duration `mapstructure:"ttls"`

	// SweepInterval is how often expired memory entries are purged.
	// Default: 1m
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// Backend selects the store: memory or redis.
	// Default: memory
	Backend string `mapstructure:"backend"`

	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the shared cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Default: reqflow:cache
	Prefix string `mapstructure:"prefix"`
}

// AuthConfig configures the credential manager.
type AuthConfig struct {
	// RenewPath is appended to origin+APIPrefix to form the renewal URL.
	// Default: /auth/refresh
	RenewPath string `mapstructure:"renew_path"`

	// RenewTimeout bounds a single renewal.
	// Default: 10s
	RenewTimeout time.Duration `mapstructure:"renew_timeout"`

	// ExpirySkew renews a JWT credential this long before it expires.
	// Default: 30s
	ExpirySkew time.Duration `mapstructure:"expiry_skew"`

	// Token is an optional bootstrap bearer token.
	Token string `mapstructure:"token"`
}

func setDefaults(v *viper.Viper) {
	k := func(parts ...string) string { return strings.Join(parts, keyDelimiter) }

	v.SetDefault("origin", "")
	v.SetDefault("api_prefix", "/api")
	v.SetDefault("timeout", "30s")

	v.SetDefault(k("retry", "max_attempts"), 5)
	v.SetDefault(k("retry", "initial_delay"), "1s")
	v.SetDefault(k("retry", "gateway_delay"), "300ms")
	v.SetDefault(k("retry", "max_delay"), "30s")
	v.SetDefault(k("retry", "multiplier"), 2.0)
	v.SetDefault(k("retry", "jitter"), 0.0)

	v.SetDefault(k("throttle", "normal", "max_concurrent"), 2)
	v.SetDefault(k("throttle", "normal", "min_interval"), "500ms")
	v.SetDefault(k("throttle", "degraded", "max_concurrent"), 1)
	v.SetDefault(k("throttle", "degraded", "min_interval"), "1s")
	v.SetDefault(k("throttle", "recovering", "max_concurrent"), 1)
	v.SetDefault(k("throttle", "recovering", "min_interval"), "750ms")
	v.SetDefault(k("throttle", "base_delay"), "1s")
	v.SetDefault(k("throttle", "max_delay"), "60s")
	v.SetDefault(k("throttle", "requests_per_second"), 0.0)
	v.SetDefault(k("throttle", "burst"), 1)

	v.SetDefault(k("cache", "default_ttl"), "30s")
	v.SetDefault(k("cache", "ttls"), map[string]any{})
	v.SetDefault(k("cache", "sweep_interval"), "1m")
	v.SetDefault(k("cache", "backend"), "memory")
	v.SetDefault(k("cache", "redis", "addr"), "")
	v.SetDefault(k("cache", "redis", "password"), "")
	v.SetDefault(k("cache", "redis", "db"), 0)
	v.SetDefault(k("cache", "redis", "prefix"), "reqflow:cache")

	v.SetDefault(k("auth", "renew_path"), "/auth/refresh")
	v.SetDefault(k("auth", "renew_timeout"), "10s")
	v.SetDefault(k("auth", "expiry_skew"), "30s")
	v.SetDefault(k("auth", "token"), "")

	v.SetDefault(k("observe", "service_name"), "reqflow")
	v.SetDefault(k("observe", "version"), "")
	v.SetDefault(k("observe", "tracing", "enabled"), false)
	v.SetDefault(k("observe", "tracing", "exporter"), "none")
	v.SetDefault(k("observe", "tracing", "sample_pct"), 1.0)
	v.SetDefault(k("observe", "metrics", "enabled"), false)
	v.SetDefault(k("observe", "metrics", "exporter"), "none")
	v.SetDefault(k("observe", "logging", "enabled"), true)
	v.SetDefault(k("observe", "logging", "level"), "info")
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)
	return v
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() Config {
	cfg, err := decode(newViper().AllSettings())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return *cfg
}

type loadOptions struct {
	resolver *SecretResolver
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithSecretProviders registers additional secret providers.
func WithSecretProviders(providers ...SecretProvider) LoadOption {
	return func(o *loadOptions) {
		for _, p := range providers {
			o.resolver.Register(p)
		}
	}
}

// Load reads defaults, the optional file at path, and REQFLOW_* environment
// overrides, then expands ${VAR} references and resolves secret references
// in credential fields. The origin is resolved but not otherwise required.
func Load(ctx context.Context, path string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{resolver: NewSecretResolver()}
	for _, opt := range opts {
		opt(&o)
	}

	v := newViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	settings, err := expandTree("", v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("config: expand: %w", err)
	}

	cfg, err := decode(settings.(map[string]any))
	if err != nil {
		return nil, err
	}

	if cfg.Auth.Token, err = o.resolver.Resolve(ctx, cfg.Auth.Token); err != nil {
		return nil, fmt.Errorf("config: auth.token: %w", err)
	}
	if cfg.Cache.Redis.Password, err = o.resolver.Resolve(ctx, cfg.Cache.Redis.Password); err != nil {
		return nil, fmt.Errorf("config: cache.redis.password: %w", err)
	}

	if cfg.Origin, err = ResolveOrigin(cfg.Origin); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("config: create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// ResolveOrigin returns origin when set, else $REQFLOW_ORIGIN, else
// http://<hostname>. Trailing slashes are removed.
func ResolveOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = strings.TrimSpace(os.Getenv(EnvPrefix + "_ORIGIN"))
	}
	if origin == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			return "", ErrMissingOrigin
		}
		origin = "http://" + host
	}
	return strings.TrimRight(origin, "/"), nil
}

// Validate checks the fields the client cannot default.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return ErrMissingOrigin
	}
	u, err := url.Parse(c.Origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, c.Origin)
	}
	switch c.Cache.Backend {
	case "", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("%w: redis backend requires cache.redis.addr", ErrInvalidBackend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Cache.Backend)
	}
	if c.Observe.ServiceName != "" {
		if err := c.Observe.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BaseURL returns origin joined with the API prefix.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.Origin, "/") + "/" + strings.Trim(c.APIPrefix, "/")
}

// URL returns the absolute URL for an API endpoint.
func (c *Config) URL(endpoint string) string {
	base := strings.TrimRight(c.BaseURL(), "/")
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

// RenewURL returns the credential renewal URL.
func (c *Config) RenewURL() string {
	return c.URL(c.Auth.RenewPath)
}

// HealthURL returns the server health probe URL, {origin}/health.
func (c *Config) HealthURL() string {
	return strings.TrimRight(c.Origin, "/") + "/health"
}
