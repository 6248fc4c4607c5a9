package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/irfndi/optionscope/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Service information
	ServiceName    = "optionscope"
	ServiceVersion = "1.0.0"

	tracesPath = "/v1/traces"
)

// Exporter kinds.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// TelemetryConfig holds configuration for tracing
type TelemetryConfig struct {
	Enabled        bool
	Exporter       string
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRate     float64
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int

	// Writer receives spans when Exporter is stdout. Defaults to os.Stdout.
	Writer io.Writer
}

// DefaultConfig returns default telemetry configuration
func DefaultConfig() *TelemetryConfig {
	return &TelemetryConfig{
		Enabled:        true,
		Exporter:       ExporterOTLP,
		OTLPEndpoint:   "http://localhost:4318",
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    "development",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MaxExportBatch: 512,
		MaxQueueSize:   2048,
	}
}

// FromConfig maps the application configuration onto DefaultConfig.
func FromConfig(cfg config.TelemetryConfig, environment string) TelemetryConfig {
	tc := *DefaultConfig()
	tc.Enabled = cfg.Enabled
	tc.Environment = environment
	if cfg.Exporter != "" {
		tc.Exporter = cfg.Exporter
	}
	if cfg.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ServiceName != "" {
		tc.ServiceName = cfg.ServiceName
	}
	if cfg.ServiceVersion != "" {
		tc.ServiceVersion = cfg.ServiceVersion
	}
	return tc
}

// Provider holds the telemetry provider
type Provider struct {
	Shutdown       func(context.Context) error
	TracerProvider trace.TracerProvider
	logger         *slog.Logger
}

var (
	globalMu       sync.Mutex
	globalProvider *Provider
)

// InitTelemetry installs a global tracer provider built from config.
func InitTelemetry(config TelemetryConfig) error {
	provider, err := InitTelemetryWithProvider(context.Background(), &config, slog.Default())
	if err != nil {
		return err
	}
	globalMu.Lock()
	globalProvider = provider
	globalMu.Unlock()
	return nil
}

// Shutdown flushes and stops the global provider, if any.
func Shutdown() error {
	globalMu.Lock()
	provider := globalProvider
	globalProvider = nil
	globalMu.Unlock()
	if provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return provider.Shutdown(ctx)
}

// InitTelemetryWithProvider builds a tracer provider, registers it and the
// W3C propagators globally, and returns it. A disabled config yields a no-op
// provider.
func InitTelemetryWithProvider(ctx context.Context, config *TelemetryConfig, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if config == nil || !config.Enabled {
		return &Provider{
			Shutdown:       func(context.Context) error { return nil },
			TracerProvider: otel.GetTracerProvider(),
			logger:         logger,
		}, nil
	}

	exporter, err := newExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	rate := config.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if config.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(config.BatchTimeout))
	}
	if config.MaxExportBatch > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(config.MaxExportBatch))
	}
	if config.MaxQueueSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxQueueSize(config.MaxQueueSize))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(tp)

	logger.Info("Telemetry initialized",
		"exporter", config.Exporter,
		"service", config.ServiceName,
		"sample_rate", rate,
	)

	return &Provider{
		Shutdown:       tp.Shutdown,
		TracerProvider: tp,
		logger:         logger,
	}, nil
}

func newExporter(ctx context.Context, config *TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case ExporterStdout:
		w := config.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	case "", ExporterOTLP:
		hostport, path, insecure, _, err := normalizeOTLPEndpoint(config.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid OTLPEndpoint %q: %w", config.OTLPEndpoint, err)
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(hostport),
			otlptracehttp.WithURLPath(path),
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", config.Exporter)
	}
}

// normalizeOTLPEndpoint splits an OTLP/HTTP endpoint into the pieces the
// exporter takes. A bare host:port is treated as plain http.
func normalizeOTLPEndpoint(raw string) (hostport, urlPath string, insecure bool, resolved string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false, "", errors.New("endpoint is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false, "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false, "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", false, "", errors.New("missing host")
	}

	urlPath = strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(urlPath, tracesPath) {
		urlPath += tracesPath
	}
	resolved = u.Scheme + "://" + u.Host + urlPath
	return u.Host, urlPath, u.Scheme == "http", resolved, nil
}

// EndpointHostPort returns the host:port part of an OTLP endpoint, which is
// what the log exporter expects.
func EndpointHostPort(raw string) string {
	hostport, _, _, _, err := normalizeOTLPEndpoint(raw)
	if err != nil {
		return raw
	}
	return hostport
}

// GetTracer returns a named tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// GetHTTPTracer returns the tracer used for inbound HTTP requests.
func GetHTTPTracer() trace.Tracer {
	return GetTracer("github.com/irfndi/optionscope/http")
}

// StartSpan starts a span on tracer.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, opts...)
}

// SetSpanAttributes sets attributes on span.
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanStatus sets the span status.
func SetSpanStatus(span trace.Span, code codes.Code, description string) {
	span.SetStatus(code, description)
}
