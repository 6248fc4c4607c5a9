package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/irfndi/optionscope/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestNormalizeOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hostport string
		urlPath  string
		insecure bool
		resolved string
		wantErr  bool
	}{
		{"default localhost", "http://localhost:4318", "localhost:4318", "/v1/traces", true, "http://localhost:4318/v1/traces", false},
		{"trailing slash base", "http://collector:4318/", "collector:4318", "/v1/traces", true, "http://collector:4318/v1/traces", false},
		{"already traces path", "http://collector:4318/v1/traces", "collector:4318", "/v1/traces", true, "http://collector:4318/v1/traces", false},
		{"custom base path", "https://otlp.example.com:4318/otlp", "otlp.example.com:4318", "/otlp/v1/traces", false, "https://otlp.example.com:4318/otlp/v1/traces", false},
		{"bare host port", "collector:4318", "collector:4318", "/v1/traces", true, "http://collector:4318/v1/traces", false},
		{"unsupported scheme", "grpc://collector:4317", "", "", false, "", true},
		{"empty", "  ", "", "", false, "", true},
		{"unparseable", "invalid-url://[invalid", "", "", false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp, path, insecure, resolved, err := normalizeOTLPEndpoint(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hostport, hp)
			assert.Equal(t, tt.urlPath, path)
			assert.Equal(t, tt.insecure, insecure)
			assert.Equal(t, tt.resolved, resolved)
		})
	}
}

func TestEndpointHostPort(t *testing.T) {
	assert.Equal(t, "collector:4318", EndpointHostPort("https://collector:4318/otlp"))
	assert.Equal(t, "localhost:4318", EndpointHostPort("localhost:4318"))
	assert.Equal(t, "ftp://x", EndpointHostPort("ftp://x"))
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.NotNil(t, config)
	assert.True(t, config.Enabled)
	assert.Equal(t, ExporterOTLP, config.Exporter)
	assert.Equal(t, "http://localhost:4318", config.OTLPEndpoint)
	assert.Equal(t, ServiceName, config.ServiceName)
	assert.Equal(t, ServiceVersion, config.ServiceVersion)
	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 1.0, config.SampleRate)
	assert.Equal(t, 5*time.Second, config.BatchTimeout)
	assert.Equal(t, 512, config.MaxExportBatch)
	assert.Equal(t, 2048, config.MaxQueueSize)
}

func TestFromConfig(t *testing.T) {
	tc := FromConfig(config.TelemetryConfig{
		Enabled:        true,
		OTLPEndpoint:   "collector:4318",
		ServiceName:    "optionscope-api",
		ServiceVersion: "2.1.0",
		Exporter:       "stdout",
	}, "production")

	assert.True(t, tc.Enabled)
	assert.Equal(t, "collector:4318", tc.OTLPEndpoint)
	assert.Equal(t, "optionscope-api", tc.ServiceName)
	assert.Equal(t, "2.1.0", tc.ServiceVersion)
	assert.Equal(t, ExporterStdout, tc.Exporter)
	assert.Equal(t, "production", tc.Environment)
	assert.Equal(t, 512, tc.MaxExportBatch)

	empty := FromConfig(config.TelemetryConfig{}, "")
	assert.False(t, empty.Enabled)
	assert.Equal(t, ServiceName, empty.ServiceName)
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()
	tracer := GetTracer("test")

	newCtx, span := StartSpan(ctx, tracer, "test-span")
	assert.NotNil(t, newCtx)
	assert.NotNil(t, span)

	SetSpanAttributes(span, attribute.String("test-key", "test-value"), attribute.Int64("test-int", 42))
	RecordError(span, nil)
	RecordError(span, assert.AnError)
	SetSpanStatus(span, codes.Ok, "success")
	span.End()

	assert.NotNil(t, GetHTTPTracer())
}

func TestInitTelemetryWithProviderDisabled(t *testing.T) {
	restoreGlobals(t)

	provider, err := InitTelemetryWithProvider(context.Background(), &TelemetryConfig{Enabled: false}, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.NoError(t, provider.Shutdown(context.Background()))
	assert.NotNil(t, provider.logger)

	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}

func TestInitTelemetryWithProviderInvalidEndpoint(t *testing.T) {
	restoreGlobals(t)

	provider, err := InitTelemetryWithProvider(context.Background(), &TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "invalid-url://[invalid",
	}, nil)
	assert.Error(t, err)
	assert.Nil(t, provider)
	assert.Contains(t, err.Error(), "invalid OTLPEndpoint")
}

func TestInitTelemetryWithProviderUnknownExporter(t *testing.T) {
	restoreGlobals(t)

	_, err := InitTelemetryWithProvider(context.Background(), &TelemetryConfig{Enabled: true, Exporter: "zipkin"}, nil)
	assert.ErrorContains(t, err, "unknown trace exporter")
}

func TestInitTelemetryWithProviderStdout(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer

	config := DefaultConfig()
	config.Exporter = ExporterStdout
	config.Writer = &buf
	config.ServiceName = "optionscope-test"

	provider, err := InitTelemetryWithProvider(context.Background(), config, slog.Default())
	require.NoError(t, err)

	_, span := GetTracer("test").Start(context.Background(), "pricing.fetch_contracts")
	span.End()
	require.NoError(t, provider.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "pricing.fetch_contracts")
	assert.Contains(t, buf.String(), "optionscope-test")
}

func TestInitTelemetryAndShutdown(t *testing.T) {
	restoreGlobals(t)

	require.NoError(t, InitTelemetry(TelemetryConfig{
		Enabled:        true,
		OTLPEndpoint:   "http://localhost:4318",
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	}))
	assert.NoError(t, Shutdown())
	assert.NoError(t, Shutdown())
}
