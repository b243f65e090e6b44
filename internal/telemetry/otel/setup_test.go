package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Settings{Endpoint: endpoint, ServiceName: "test-service"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Errorf("providers = %+v, want all set", providers)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("no-op shutdown: %v", err)
		}
	}
}

func TestNewProviders_InvalidURL(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(context.Background(), Settings{Endpoint: endpoint, ServiceName: "test-service"}); err == nil {
			t.Errorf("NewProviders(%q) should return error", endpoint)
		}
	}
}

func TestNewProviders_EndpointWithoutScheme(t *testing.T) {
	// Exporters connect lazily, so construction succeeds without a collector.
	ctx := context.Background()
	providers, err := NewProviders(ctx, Settings{Endpoint: "localhost:4317/v1/traces", Insecure: true, ServiceName: "test-service"})
	if err != nil {
		t.Skipf("exporter construction failed in this environment: %v", err)
	}
	if providers.LoggerProvider == nil {
		t.Error("LoggerProvider should be set")
	}
	_ = providers.Shutdown(ctx)
}

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		raw      string
		target   string
		insecure bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://collector:4317", "collector:4317", true},
		{"https://collector:4317/v1/traces", "collector:4317", false},
		{"  otel:4317  ", "otel:4317", true},
	}
	for _, tc := range testCases {
		target, insecure, err := parseEndpoint(tc.raw)
		if err != nil {
			t.Fatalf("parseEndpoint(%q): %v", tc.raw, err)
		}
		if target != tc.target || insecure != tc.insecure {
			t.Errorf("parseEndpoint(%q) = (%q, %v), want (%q, %v)", tc.raw, target, insecure, tc.target, tc.insecure)
		}
	}
}

func TestNewResource(t *testing.T) {
	res := newResource("pkm-auth", "production")
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["service.name"] != "pkm-auth" {
		t.Errorf("service.name = %q", got["service.name"])
	}
	if got["deployment.environment.name"] != "production" {
		t.Errorf("deployment.environment.name = %q", got["deployment.environment.name"])
	}

	for _, kv := range newResource("pkm-auth", "").Attributes() {
		if kv.Key == "deployment.environment.name" {
			t.Error("empty environment should not be recorded")
		}
	}
}

func TestSetGlobal(t *testing.T) {
	oldTP := otel.GetTracerProvider()
	oldMP := otel.GetMeterProvider()
	oldProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(oldTP)
		otel.SetMeterProvider(oldMP)
		otel.SetTextMapPropagator(oldProp)
	})

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	(&Providers{TracerProvider: tp}).SetGlobal()

	if otel.GetTracerProvider() != tp {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() != oldMP {
		t.Error("MeterProvider should not change when nil")
	}
	fields := otel.GetTextMapPropagator().Fields()
	var hasTraceparent bool
	for _, f := range fields {
		if f == "traceparent" {
			hasTraceparent = true
		}
	}
	if !hasTraceparent {
		t.Errorf("propagator fields = %v, want traceparent", fields)
	}
}
