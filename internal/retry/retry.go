// Package retry provides exponential backoff retry logic for external API calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
)

// SleepFunc suspends the caller for d or until ctx is done. Injected in tests
// so retry and polling schedules can be exercised without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a real timer.
func Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64 // growth factor per attempt; 0 means 2
	Jitter      bool
	Sleep       SleepFunc // nil means real sleep
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}
}

// Delay returns the backoff delay for a zero-based attempt number.
func (c Config) Delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult <= 0 {
		mult = 2
	}
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(mult, float64(attempt)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// SleepFor waits out the backoff delay for a zero-based attempt number.
func (c Config) SleepFor(ctx context.Context, attempt int) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, c.Delay(attempt))
	}
	return Sleep(ctx, c.Delay(attempt))
}

// Do executes fn with exponential backoff. Only retries if the error is retryable.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !ferrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		if err := cfg.SleepFor(ctx, attempt); err != nil {
			return err
		}
	}
	return lastErr
}
