package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxJitter spreads retries from workers that started together, so a
	// broker restart is not greeted by a synchronized reconnect wave.
	MaxJitter time.Duration
}

// DefaultConfig suits connection establishment at process start.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxJitter:    500 * time.Millisecond,
	}
}

// Do runs fn with exponential backoff until it succeeds, attempts run out, or
// the context is cancelled. Only the last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.MaxJitter(cfg.MaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
