package observe

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name: "valid",
			cfg: Config{
				ServiceName: "reqflow",
				Version:     "1.0.0",
				Tracing:     TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 1.0},
				Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
				Logging:     LoggingConfig{Enabled: true, Level: "info"},
			},
		},
		{
			name:    "missing service name",
			cfg:     Config{Version: "1.0.0"},
			wantErr: ErrMissingServiceName,
		},
		{
			name:    "unknown tracing exporter",
			cfg:     Config{ServiceName: "reqflow", Tracing: TracingConfig{Enabled: true, Exporter: "unknown"}},
			wantErr: ErrInvalidTracingExporter,
		},
		{
			name:    "unknown metrics exporter",
			cfg:     Config{ServiceName: "reqflow", Metrics: MetricsConfig{Enabled: true, Exporter: "badvalue"}},
			wantErr: ErrInvalidMetricsExporter,
		},
		{
			name:    "sample pct above range",
			cfg:     Config{ServiceName: "reqflow", Tracing: TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 1.5}},
			wantErr: ErrInvalidSamplePct,
		},
		{
			name:    "sample pct negative",
			cfg:     Config{ServiceName: "reqflow", Tracing: TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: -0.1}},
			wantErr: ErrInvalidSamplePct,
		},
		{
			name:    "unknown log level",
			cfg:     Config{ServiceName: "reqflow", Logging: LoggingConfig{Enabled: true, Level: "verbose"}},
			wantErr: ErrInvalidLogLevel,
		},
		{
			name: "disabled subsystems skip validation",
			cfg: Config{
				ServiceName: "reqflow",
				Tracing:     TracingConfig{Exporter: "unknown"},
				Logging:     LoggingConfig{Level: "verbose"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewObserver_DisabledNoop(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "reqflow"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	if obs.Tracer() == nil || obs.Meter() == nil || obs.Logger() == nil {
		t.Fatal("expected non-nil tracer, meter and logger")
	}
	if _, ok := obs.Logger().(*noopLogger); !ok {
		t.Errorf("Logger() = %T, want *noopLogger when logging disabled", obs.Logger())
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewObserver_Enabled(t *testing.T) {
	cfg := Config{
		ServiceName: "reqflow",
		Version:     "test",
		Tracing:     TracingConfig{Enabled: true, Exporter: "none", SamplePct: 0.5},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "none"},
		Logging:     LoggingConfig{Enabled: true, Level: "error"},
	}

	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	if _, ok := obs.Logger().(*zapLogger); !ok {
		t.Errorf("Logger() = %T, want *zapLogger", obs.Logger())
	}

	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("MiddlewareFromObserver() error = %v", err)
	}
	_, err = mw.Wrap(func(ctx context.Context, meta RequestMeta) (any, error) {
		return nil, nil
	})(context.Background(), RequestMeta{Endpoint: "/widgets"})
	if err != nil {
		t.Errorf("wrapped call error = %v", err)
	}

	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewObserver_InvalidConfig(t *testing.T) {
	if _, err := NewObserver(context.Background(), Config{}); !errors.Is(err, ErrMissingServiceName) {
		t.Errorf("NewObserver() error = %v, want ErrMissingServiceName", err)
	}
}

func TestMiddlewareFromObserver_Nil(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Errorf("MiddlewareFromObserver(nil) error = %v, want ErrNilObserver", err)
	}
}

func TestObserver_ShutdownTwice(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "reqflow",
		Tracing:     TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "none"},
		Attributes:  map[string]string{"reqflow.origin": "https://api.example.com"},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := obs.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() #%d error = %v", i+1, err)
		}
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{pct: 1, want: "AlwaysOnSampler"},
		{pct: 0, want: "AlwaysOffSampler"},
		{pct: 0.25, want: "ParentBased"},
	}
	for _, tt := range tests {
		got := sampler(tt.pct).Description()
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("sampler(%v) = %q, want prefix %q", tt.pct, got, tt.want)
		}
	}
}
