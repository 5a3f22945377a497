// pkg/telemetry/otel_test.go
package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		expectsErr bool
	}{
		{"missing serviceName", Config{Endpoint: "host:1234", ServiceVersion: "v1"}, true},
		{"missing version", Config{Endpoint: "host:1234", ServiceName: "svc"}, true},
		{"empty attribute key", Config{ServiceName: "svc", ServiceVersion: "v1", Attributes: map[string]string{"": "x"}}, true},
		{"all set", Config{Endpoint: "host:1234", ServiceName: "svc", ServiceVersion: "v1"}, false},
		{"no endpoint", Config{ServiceName: "svc", ServiceVersion: "v1"}, false},
	}
	for _, tc := range tests {
		err := validateConfig(tc.cfg)
		if tc.expectsErr && err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
		if !tc.expectsErr && err != nil {
			t.Errorf("%s: expected no error, got %v", tc.name, err)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Endpoint: "e", ServiceName: "s", ServiceVersion: "v", SamplerRatio: 7}
	applyDefaults(&cfg)
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected default Timeout=5s, got %v", cfg.Timeout)
	}
	if cfg.ReconnectPeriod != 5*time.Second {
		t.Errorf("expected default ReconnectPeriod=5s, got %v", cfg.ReconnectPeriod)
	}
	if cfg.SamplerRatio != 1.0 {
		t.Errorf("expected SamplerRatio clamped to 1.0, got %v", cfg.SamplerRatio)
	}
	if cfg.InstanceID == "" {
		t.Error("expected generated InstanceID")
	}

	fixed := Config{InstanceID: "collector-1"}
	applyDefaults(&fixed)
	if fixed.InstanceID != "collector-1" {
		t.Errorf("InstanceID overwritten: %q", fixed.InstanceID)
	}
}

func TestResourceAttrs(t *testing.T) {
	cfg := Config{
		ServiceName:    "ib-collector",
		ServiceVersion: "v1",
		InstanceID:     "i-1",
		Attributes:     map[string]string{"z.last": "1", string(GatewayAddrKey): "127.0.0.1:4002"},
	}
	got := resourceAttrs(cfg)
	want := []attribute.KeyValue{
		semconv.ServiceNameKey.String("ib-collector"),
		semconv.ServiceVersionKey.String("v1"),
		semconv.ServiceInstanceIDKey.String("i-1"),
		GatewayAddrKey.String("127.0.0.1:4002"),
		attribute.String("z.last", "1"),
	}
	if len(got) != len(want) {
		t.Fatalf("attrs = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("attr[%d] = %v; want %v", i, got[i], want[i])
		}
	}
}

func TestSessionAttrs(t *testing.T) {
	if got := SessionAttrs("gw:4002", 3, 0); len(got) != 2 {
		t.Errorf("unnegotiated session attrs = %v", got)
	}
	got := SessionAttrs("gw:4002", 3, 176)
	if len(got) != 3 || got[2] != ServerVersionKey.Int(176) {
		t.Errorf("session attrs = %v", got)
	}
}

func TestSpanAttrsDoesNotAlias(t *testing.T) {
	session := make([]attribute.KeyValue, 1, 4)
	session[0] = ClientIDKey.Int(1)
	a := SpanAttrs(session, RequestIDKey.Int64(5))
	b := SpanAttrs(session, OrderIDKey.Int64(9))
	if a[1] != RequestIDKey.Int64(5) || b[1] != OrderIDKey.Int64(9) {
		t.Errorf("a = %v, b = %v", a, b)
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{ServiceName: "s", ServiceVersion: "v"}, logger.NewNop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInitTracer_Success(t *testing.T) {
	svcCfg := Config{
		Endpoint:       "localhost:4317",
		ServiceName:    "testsvc",
		ServiceVersion: "v0.1",
		Insecure:       true,
	}
	shutdown, err := InitTracer(context.Background(), svcCfg, logger.NewNop())
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
