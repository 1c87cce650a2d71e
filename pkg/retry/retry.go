package retry

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"golang.org/x/time/rate"
)

const (
	defaultMaxTries = 10
	defaultInterval = 1 * time.Second
)

// Options controls the behavior of Do.
type Options struct {
	maxTries    int
	interval    time.Duration
	isRetryable func(error) bool
}

// Option configures Options.
type Option func(*Options)

// WithMaxTries limits the total number of attempts, including the first one.
func WithMaxTries(n int) Option {
	return func(o *Options) {
		o.maxTries = n
	}
}

// WithInterval sets the fixed pause between two attempts.
func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		o.interval = d
	}
}

// WithIsRetryable classifies errors from fn. A non-retryable error aborts the
// loop right away. The default treats every error as retryable.
func WithIsRetryable(fn func(error) bool) Option {
	return func(o *Options) {
		o.isRetryable = fn
	}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, an error is
// classified non-retryable, or ctx is done. It returns nil on success and the
// last error from fn otherwise.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	o := Options{
		maxTries:    defaultMaxTries,
		interval:    defaultInterval,
		isRetryable: func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(&o)
	}

	rl := rate.NewLimiter(rate.Every(o.interval), 1)
	// drain the initial burst so every retry waits a full interval
	rl.Allow()

	var lastErr error
	for i := 0; i < o.maxTries; i++ {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !o.isRetryable(lastErr) {
			return errors.Trace(lastErr)
		}
		if i == o.maxTries-1 {
			break
		}
		if err := rl.Wait(ctx); err != nil {
			// the rate limiter only fails when ctx is done or timing out
			return errors.Trace(lastErr)
		}
	}
	return errors.Trace(lastErr)
}
