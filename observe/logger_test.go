package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	zapobserver "go.uber.org/zap/zaptest/observer"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_IncludesRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).WithRequest(RequestMeta{
		Method:    "post",
		Endpoint:  "/widgets?page=2",
		RequestID: "req-1",
	})

	logger.Info(context.Background(), "request completed", F("duration_ms", 12))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := lines[0]
	checks := map[string]any{
		"msg":         "request completed",
		"level":       "info",
		"http.method": "POST",
		"endpoint":    "/widgets?page=2",
		"request_id":  "req-1",
		"duration_ms": float64(12),
	}
	for k, want := range checks {
		if got := entry[k]; got != want {
			t.Errorf("entry[%q] = %v, want %v", k, got, want)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("entry missing timestamp")
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	logger.Debug(context.Background(), "renewed",
		F("token", "eyJhbGciOi"),
		F("Authorization", "Bearer abc"),
		F("accessToken", "xyz"),
		F("subject", "user-1"),
	)

	entry := decodeLines(t, &buf)[0]
	for _, k := range []string{"token", "Authorization", "accessToken"} {
		if entry[k] != "[REDACTED]" {
			t.Errorf("entry[%q] = %v, want [REDACTED]", k, entry[k])
		}
	}
	if entry["subject"] != "user-1" {
		t.Errorf("entry[subject] = %v, want user-1", entry["subject"])
	}
}

func TestLogger_ErrorValue(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).Error(context.Background(), "request failed", F("error", errors.New("boom")))

	entry := decodeLines(t, &buf)[0]
	if entry["error"] != "boom" {
		t.Errorf("entry[error] = %v, want boom", entry["error"])
	}
	if entry["level"] != "error" {
		t.Errorf("entry[level] = %v, want error", entry["level"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"debug", 4},
		{"info", 3},
		{"warn", 2},
		{"error", 1},
		{"", 3},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)
			ctx := context.Background()
			logger.Debug(ctx, "d")
			logger.Info(ctx, "i")
			logger.Warn(ctx, "w")
			logger.Error(ctx, "e")

			if got := len(decodeLines(t, &buf)); got != tt.want {
				t.Errorf("lines = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLogger_TraceID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).Info(ctx, "in span")

	entry := decodeLines(t, &buf)[0]
	if got, want := entry["trace_id"], span.SpanContext().TraceID().String(); got != want {
		t.Errorf("trace_id = %v, want %v", got, want)
	}
}

func TestNewZapLogger(t *testing.T) {
	core, logs := zapobserver.New(zapcore.WarnLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Info(context.Background(), "dropped")
	logger.Warn(context.Background(), "kept", F("password", "hunter2"))

	if logs.Len() != 1 {
		t.Fatalf("logs = %d, want 1", logs.Len())
	}
	got := logs.All()[0].ContextMap()["password"]
	if got != "[REDACTED]" {
		t.Errorf("password = %v, want [REDACTED]", got)
	}

	if _, ok := NewZapLogger(nil).(*noopLogger); !ok {
		t.Error("NewZapLogger(nil) should return the noop logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
