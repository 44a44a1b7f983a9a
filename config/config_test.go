package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"APIPrefix", cfg.APIPrefix, "/api"},
		{"Timeout", cfg.Timeout, 30 * time.Second},
		{"Retry.MaxAttempts", cfg.Retry.MaxAttempts, 5},
		{"Retry.InitialDelay", cfg.Retry.InitialDelay, time.Second},
		{"Retry.GatewayDelay", cfg.Retry.GatewayDelay, 300 * time.Millisecond},
		{"Retry.MaxDelay", cfg.Retry.MaxDelay, 30 * time.Second},
		{"Retry.Multiplier", cfg.Retry.Multiplier, 2.0},
		{"Throttle.Normal", cfg.Throttle.Normal, LimitsConfig{MaxConcurrent: 2, MinInterval: 500 * time.Millisecond}},
		{"Throttle.Degraded", cfg.Throttle.Degraded, LimitsConfig{MaxConcurrent: 1, MinInterval: time.Second}},
		{"Throttle.Recovering", cfg.Throttle.Recovering, LimitsConfig{MaxConcurrent: 1, MinInterval: 750 * time.Millisecond}},
		{"Throttle.MaxDelay", cfg.Throttle.MaxDelay, 60 * time.Second},
		{"Cache.DefaultTTL", cfg.Cache.DefaultTTL, 30 * time.Second},
		{"Cache.Backend", cfg.Cache.Backend, "memory"},
		{"Cache.Redis.Prefix", cfg.Cache.Redis.Prefix, "reqflow:cache"},
		{"Auth.RenewPath", cfg.Auth.RenewPath, "/auth/refresh"},
		{"Auth.RenewTimeout", cfg.Auth.RenewTimeout, 10 * time.Second},
		{"Auth.ExpirySkew", cfg.Auth.ExpirySkew, 30 * time.Second},
		{"Observe.ServiceName", cfg.Observe.ServiceName, "reqflow"},
		{"Observe.Logging.Level", cfg.Observe.Logging.Level, "info"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "reqflow.yaml", `
origin: https://app.example.com/
timeout: 5s
retry:
  max_attempts: 3
cache:
  default_ttl: 10s
  ttls:
    /widgets: 60s
    /v1.2/reports: 2m
    /live: 0s
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Origin != "https://app.example.com" {
		t.Errorf("Origin = %q, want trailing slash trimmed", cfg.Origin)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialDelay != time.Second {
		t.Errorf("Retry.InitialDelay = %v, want default 1s", cfg.Retry.InitialDelay)
	}
	want := map[string]time.Duration{
		"/widgets":      60 * time.Second,
		"/v1.2/reports": 2 * time.Minute,
		"/live":         0,
	}
	for k, v := range want {
		got, ok := cfg.Cache.TTLs[k]
		if !ok || got != v {
			t.Errorf("TTLs[%q] = %v (present %v), want %v", k, got, ok, v)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REQFLOW_ORIGIN", "https://env.example.com")
	t.Setenv("REQFLOW_TIMEOUT", "45s")
	t.Setenv("REQFLOW_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("REQFLOW_THROTTLE_NORMAL_MAX_CONCURRENT", "4")
	t.Setenv("REQFLOW_CACHE_BACKEND", "redis")
	t.Setenv("REQFLOW_CACHE_REDIS_ADDR", "localhost:6379")

	path := writeFile(t, "reqflow.yaml", "origin: https://file.example.com\ntimeout: 5s\n")
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Origin != "https://env.example.com" {
		t.Errorf("Origin = %q, want env override", cfg.Origin)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("Retry.MaxAttempts = %d, want 7", cfg.Retry.MaxAttempts)
	}
	if cfg.Throttle.Normal.MaxConcurrent != 4 {
		t.Errorf("Throttle.Normal.MaxConcurrent = %d, want 4", cfg.Throttle.Normal.MaxConcurrent)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("API_HOST", "api.example.com")
	path := writeFile(t, "reqflow.yaml", "origin: https://${API_HOST}\n")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Origin != "https://api.example.com" {
		t.Errorf("Origin = %q, want expanded host", cfg.Origin)
	}
}

func TestLoad_MissingEnv(t *testing.T) {
	path := writeFile(t, "reqflow.yaml", "auth:\n  token: ${REQFLOW_TEST_UNSET_TOKEN}\n")

	_, err := Load(context.Background(), path)
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("Load() error = %v, want ErrMissingEnv", err)
	}
	if !strings.Contains(err.Error(), "auth.token") || !strings.Contains(err.Error(), "REQFLOW_TEST_UNSET_TOKEN") {
		t.Errorf("error = %v, want key and variable named", err)
	}
}

func TestLoad_SecretRef(t *testing.T) {
	secretPath := writeFile(t, "token", "eyJ.token.sig\n")
	t.Setenv("REQFLOW_TEST_REDIS_PASSWORD", "hunter2")
	path := writeFile(t, "reqflow.yaml", `
origin: https://app.example.com
auth:
  token: secretref:file:`+secretPath+`
cache:
  redis:
    password: secretref:env:REQFLOW_TEST_REDIS_PASSWORD
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Token != "eyJ.token.sig" {
		t.Errorf("Auth.Token = %q, want file contents", cfg.Auth.Token)
	}
	if cfg.Cache.Redis.Password != "hunter2" {
		t.Errorf("Cache.Redis.Password = %q, want env value", cfg.Cache.Redis.Password)
	}
}

func TestLoad_BadFile(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}
}

func TestResolveOrigin(t *testing.T) {
	t.Setenv("REQFLOW_ORIGIN", "")
	if got, err := ResolveOrigin("https://a.example.com/"); err != nil || got != "https://a.example.com" {
		t.Errorf("ResolveOrigin(explicit) = %q, %v", got, err)
	}

	t.Setenv("REQFLOW_ORIGIN", "https://env.example.com")
	if got, _ := ResolveOrigin(""); got != "https://env.example.com" {
		t.Errorf("ResolveOrigin(env) = %q, want env origin", got)
	}

	t.Setenv("REQFLOW_ORIGIN", "")
	host, err := os.Hostname()
	if err != nil {
		t.Skipf("no hostname: %v", err)
	}
	if got, _ := ResolveOrigin(""); got != "http://"+host {
		t.Errorf("ResolveOrigin(hostname) = %q, want http://%s", got, host)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"missing origin", func(c *Config) { c.Origin = "" }, ErrMissingOrigin},
		{"relative origin", func(c *Config) { c.Origin = "app.example.com" }, ErrInvalidOrigin},
		{"ftp origin", func(c *Config) { c.Origin = "ftp://app.example.com" }, ErrInvalidOrigin},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, ErrInvalidBackend},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, ErrInvalidBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Origin = "https://app.example.com"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestURLs(t *testing.T) {
	cfg := Default()
	cfg.Origin = "https://app.example.com"

	tests := []struct {
		got, want string
	}{
		{cfg.URL("/widgets?page=2"), "https://app.example.com/api/widgets?page=2"},
		{cfg.URL("widgets"), "https://app.example.com/api/widgets"},
		{cfg.RenewURL(), "https://app.example.com/api/auth/refresh"},
		{cfg.HealthURL(), "https://app.example.com/health"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	cfg.APIPrefix = ""
	if got := cfg.URL("/widgets"); got != "https://app.example.com/widgets" {
		t.Errorf("URL without prefix = %q", got)
	}
}
