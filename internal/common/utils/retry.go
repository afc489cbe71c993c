package utils

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// BackoffStrategy selects how the delay between retry attempts grows
type BackoffStrategy string

const (
	// BackoffFixed keeps the delay constant between attempts
	BackoffFixed BackoffStrategy = "fixed"
	// BackoffLinear grows the delay by the initial delay each attempt
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential multiplies the delay by Factor each attempt
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryConfig controls retry behavior: attempt count, delay growth, jitter,
// and which errors are worth retrying
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps delay growth
	MaxDelay time.Duration

	// Strategy selects fixed, linear, or exponential delay growth
	Strategy BackoffStrategy

	// Factor is the multiplier for exponential backoff
	Factor float64

	// JitterFactor adds randomness to delays (0.0-1.0)
	JitterFactor float64

	// RetryableErrors decides which errors trigger a retry.
	// Nil means all errors are retryable.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns a retry configuration suitable for network
// operations: 3 attempts, exponential backoff from 1s capped at 30s, 10% jitter
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Strategy:     BackoffExponential,
		Factor:       2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay computes the delay to wait after the given 1-based attempt number
func (c RetryConfig) NextDelay(attempt int) time.Duration {
	var delay time.Duration

	switch c.Strategy {
	case BackoffLinear:
		delay = c.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		factor := c.Factor
		if factor <= 1 {
			factor = 2.0
		}
		delay = c.InitialDelay
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * factor)
			if c.MaxDelay > 0 && delay > c.MaxDelay {
				break
			}
		}
	default: // BackoffFixed and unset
		delay = c.InitialDelay
	}

	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	if c.JitterFactor > 0 {
		jitter := time.Duration(float64(delay) * c.JitterFactor * rand.Float64())
		delay += jitter
	}

	return delay
}

// RetryWithBackoff executes fn up to MaxAttempts times, sleeping between
// attempts according to the configured backoff strategy.
//
// Returns nil as soon as fn succeeds, the original error when it is deemed
// non-retryable, a wrapped ctx error when cancelled mid-wait, and a
// "max retries exceeded" error once all attempts fail.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err

			if config.RetryableErrors != nil && !config.RetryableErrors(err) {
				return err
			}
			if attempt == config.MaxAttempts {
				break
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(config.NextDelay(attempt)):
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Retry executes fn with a fixed delay between attempts
func Retry(attempts int, delay time.Duration, fn func() error) error {
	config := RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: delay,
		MaxDelay:     delay,
		Strategy:     BackoffFixed,
	}
	return RetryWithBackoff(context.Background(), config, fn)
}
