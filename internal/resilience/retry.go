// Package resilience provides execute-with-retry with exponential backoff
// and the error classification that decides which failures are retried.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultMultiplier = 2.0
)

// Options tunes ExecuteWithRetry. Jitter and Sleep are hooks; a nil Jitter
// keeps the delay formula exact.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// Jitter returns extra delay to add on top of the computed backoff.
	Jitter func(delay time.Duration) time.Duration
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *zap.Logger
}

// DefaultOptions returns the standard policy with full jitter of up to a
// quarter of each delay.
func DefaultOptions() Options {
	return Options{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Multiplier: DefaultMultiplier,
		Jitter:     ProportionalJitter(0.25),
	}
}

// ProportionalJitter returns a jitter function adding a random duration in
// [0, fraction*delay).
func ProportionalJitter(fraction float64) func(time.Duration) time.Duration {
	return func(delay time.Duration) time.Duration {
		span := int64(float64(delay) * fraction)
		if span <= 0 {
			return 0
		}
		return time.Duration(rand.Int63n(span))
	}
}

func (o Options) withDefaults() Options {
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Multiplier < 1 {
		o.Multiplier = DefaultMultiplier
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Delay returns the wait before retry number attempt (0-indexed):
// min(base * multiplier^attempt, maxDelay) plus jitter.
func (o Options) Delay(attempt int) time.Duration {
	o = o.withDefaults()
	d := float64(o.BaseDelay) * math.Pow(o.Multiplier, float64(attempt))
	if d > float64(o.MaxDelay) {
		d = float64(o.MaxDelay)
	}
	delay := time.Duration(d)
	if o.Jitter != nil {
		delay += o.Jitter(delay)
	}
	return delay
}

// ExecuteWithRetry runs op until it succeeds, fails with a non-retryable
// error, or MaxRetries retries have been spent. Non-retryable errors are
// returned as-is; exhausted retries return the classified *apperr.NetworkError.
func ExecuteWithRetry[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var zero T
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		classified := Classify(err)
		if !classified.Retryable {
			return zero, err
		}
		if attempt >= opts.MaxRetries {
			opts.Logger.Warn("retries exhausted",
				zap.Int("attempts", attempt+1),
				zap.String("type", string(classified.Type)),
				zap.Error(err),
			)
			return zero, classified
		}

		delay := opts.Delay(attempt)
		opts.Logger.Debug("retrying operation",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := opts.Sleep(ctx, delay); err != nil {
			return zero, classified
		}
	}
}

// Execute is ExecuteWithRetry for operations without a result.
func Execute(ctx context.Context, op func(context.Context) error, opts Options) error {
	_, err := ExecuteWithRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
