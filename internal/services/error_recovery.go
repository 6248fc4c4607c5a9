package services

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryPolicy is used for idempotent reads against the pricing service.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    2,
		InitialDelay:  250 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	delay := p.InitialDelay
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	for i := 1; i < retry; i++ {
		delay = time.Duration(float64(delay) * factor)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.JitterEnabled && delay > 0 {
		// up to 25% either way
		jitter := time.Duration((rand.Float64() - 0.5) * 0.5 * float64(delay))
		delay += jitter
	}
	return delay
}

// ExecuteWithRetry runs op until it succeeds, returns a non-retryable error,
// exhausts the policy or ctx ends. The last error is returned.
func ExecuteWithRetry(
	ctx context.Context,
	logger *logrus.Logger,
	operationName string,
	policy RetryPolicy,
	retryable func(error) bool,
	op func(context.Context) error,
) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.Delay(attempt)
			logger.WithFields(logrus.Fields{
				"operation": operationName,
				"attempt":   attempt + 1,
				"delay_ms":  delay.Milliseconds(),
				"error":     lastErr.Error(),
			}).Warn("Retrying operation")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.WithFields(logrus.Fields{
					"operation": operationName,
					"attempts":  attempt + 1,
					"duration":  time.Since(start),
				}).Info("Operation recovered after retry")
			}
			return nil
		}
		if ctx.Err() != nil || (retryable != nil && !retryable(lastErr)) {
			return lastErr
		}
	}
	return lastErr
}
