package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/irfndi/optionscope/internal/config"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/services"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 16 << 20
	userAgent        = "optionscope/1.0"
	tracerName       = "github.com/irfndi/optionscope/internal/pricing"
)

var (
	_ interfaces.PricingService       = (*Client)(nil)
	_ interfaces.PricingHealthChecker = (*Client)(nil)
)

// Client talks to the remote pricing service. It keeps no domain state and
// never caches responses.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *services.CircuitBreaker
	retry      services.RetryPolicy
	logger     *logrus.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the component logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit caps outgoing requests per second. A non-positive rps disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker replaces the breaker built from configuration.
func WithCircuitBreaker(cb *services.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithRetryPolicy replaces the retry policy built from configuration.
func WithRetryPolicy(p services.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithClock sets the clock used to decide which contracts have expired.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a pricing service client.
//
// Parameters:
//
//	cfg: Pricing service configuration.
//	opts: Optional overrides.
//
// Returns:
//
//	*Client: Initialized client.
func NewClient(cfg config.PricingConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.ServiceURL, "/"),
		retry: services.RetryPolicy{
			MaxRetries:    cfg.MaxRetries,
			InitialDelay:  cfg.RetryBackoff,
			MaxDelay:      8 * cfg.RetryBackoff,
			BackoffFactor: 2,
			JitterEnabled: true,
		},
		logger: logrus.StandardLogger(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	WithRateLimit(cfg.RateLimit, cfg.Burst)(c)

	for _, opt := range opts {
		opt(c)
	}

	if c.breaker == nil {
		c.breaker = services.NewCircuitBreaker("pricing-service", services.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerTimeout,
			IsFailure:        countsAgainstBreaker,
		}, c.logger)
	}

	c.logger.WithField("base_url", c.baseURL).Debug("Pricing client initialized")
	return c
}

// BaseURL returns the service URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *services.CircuitBreaker {
	return c.breaker
}

// FetchContracts retrieves the option chain for ticker.
//
// Parameters:
//
//	ctx: Context.
//	ticker: Underlying symbol, uppercased before sending.
//
// Returns:
//
//	[]models.OptionContract: Contracts in service order; empty when the ticker has none.
//	error: *NetworkError or *DecodeError.
func (c *Client) FetchContracts(ctx context.Context, ticker string) ([]models.OptionContract, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, ErrEmptyTicker
	}

	params := url.Values{}
	params.Set("ticker", ticker)

	body, err := c.get(ctx, opFetchContracts, "/options", params)
	if err != nil {
		return nil, err
	}

	contracts, dropped, err := decodeContracts(body, models.DateOf(c.now()))
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		c.logger.WithFields(logrus.Fields{
			"ticker":  ticker,
			"dropped": dropped,
		}).Warn("Dropped expired contracts from option chain")
	}
	return contracts, nil
}

// FetchHeatmap retrieves the P/L heatmap of one contract.
//
// Parameters:
//
//	ctx: Context.
//	ticker: Ticker the contract was retrieved for.
//	contract: Selected contract; strike, premium, type and expiry are all sent.
//	model: Pricing model.
//
// Returns:
//
//	*models.HeatmapResult: Validated grid and metrics.
//	error: *NetworkError, *DecodeError or *ShapeMismatchError.
func (c *Client) FetchHeatmap(ctx context.Context, ticker string, contract models.OptionContract, model models.PricingModel) (*models.HeatmapResult, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, ErrEmptyTicker
	}
	if !model.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownModel, model)
	}

	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("strike", contract.Strike.String())
	params.Set("premium", contract.Premium.String())
	params.Set("type", string(contract.Type))
	params.Set("expiry", contract.Expiry.String())
	params.Set("model", string(model))

	body, err := c.get(ctx, opFetchHeatmap, "/heatmap", params)
	if err != nil {
		return nil, err
	}
	return decodeHeatmap(body)
}

// Ping checks that the service answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return &NetworkError{Op: "ping", URL: c.baseURL, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "ping", URL: c.baseURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusInternalServerError {
		return &NetworkError{Op: "ping", URL: c.baseURL, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// get issues a GET through the limiter, breaker and retry policy and returns the raw body.
func (c *Client) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	ctx, span := c.tracer.Start(ctx, "pricing."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", http.MethodGet),
			attribute.String("http.url", fullURL),
			attribute.String("pricing.operation", op),
		),
	)
	defer span.End()

	var body []byte
	err := services.ExecuteWithRetry(ctx, c.logger, op, c.retry, isRetryable, func(ctx context.Context) error {
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var reqErr error
			body, reqErr = c.makeRequest(ctx, op, fullURL)
			return reqErr
		})
		if errors.Is(err, services.ErrCircuitOpen) {
			return &NetworkError{Op: op, URL: fullURL, Err: err}
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return body, nil
}

func (c *Client) makeRequest(ctx context.Context, op, fullURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Op: op, URL: fullURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: fullURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: fullURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, URL: fullURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.WithFields(logrus.Fields{
		"operation":   op,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Pricing service request")

	if resp.StatusCode >= http.StatusBadRequest {
		msg := http.StatusText(resp.StatusCode)
		var errResp ErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Message() != "" {
			msg = errResp.Message()
		}
		if resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, &DecodeError{Op: op, Reason: "request parameters rejected: " + msg, StatusCode: resp.StatusCode}
		}
		return nil, &NetworkError{Op: op, URL: fullURL, StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}
