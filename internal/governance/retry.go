package governance

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// RetryConfig defines retry behaviour for node execution.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int
	// Delay is the base delay before the first retry.
	Delay time.Duration
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay increases. 1.0 keeps the
	// delay fixed, which is the executor default.
	Multiplier float64
	// Jitter adds randomness of up to 25% to prevent thundering herd.
	Jitter bool
}

// DefaultRetryConfig returns the executor defaults: no retries, and a fixed
// 100ms delay should retries be enabled.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 0,
		Delay:      100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 1.0,
	}
}

// RetryPolicy determines how long to wait between node attempts.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy with the given configuration.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.Delay <= 0 {
		config.Delay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 1.0
	}
	return &RetryPolicy{config: config}
}

// Config returns a copy of the current retry configuration.
func (rp *RetryPolicy) Config() RetryConfig {
	return rp.config
}

// Attempts returns the total attempt budget: the configured retries plus the
// initial attempt.
func (rp *RetryPolicy) Attempts() int {
	if rp.config.MaxRetries < 0 {
		return 1
	}
	return rp.config.MaxRetries + 1
}

// CalculateBackoff returns the delay before the next retry attempt.
func (rp *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := time.Duration(float64(rp.config.Delay) * math.Pow(rp.config.Multiplier, float64(attempt)))

	if backoff > rp.config.MaxDelay {
		backoff = rp.config.MaxDelay
	}

	if rp.config.Jitter && backoff > 0 {
		// #nosec G404 - Non-cryptographic random is acceptable for jitter
		jitter := time.Duration(rand.Int63n(int64(backoff/4) + 1))
		backoff += jitter
	}

	return backoff
}

// Wait sleeps for the attempt's backoff, aborting early when the context is
// done or the cooperative cancellation channel fires.
func (rp *RetryPolicy) Wait(ctx context.Context, cancelled <-chan struct{}, attempt int) error {
	timer := time.NewTimer(rp.CalculateBackoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-cancelled:
		return context.Canceled
	case <-timer.C:
		return nil
	}
}
