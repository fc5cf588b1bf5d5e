// Package retry runs operations under exponential backoff.
// Used around broker publishes, chat writes and event handlers.
//
// An operation marks what may be retried: Retryable errors are retried,
// Permanent errors stop at once, anything else is final unless RetryIf
// accepts it.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryableError marks a transient failure.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so that it is retried. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Permanent wraps err so that no further attempt is made. Do returns the
// unwrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *backoff.PermanentError
	return errors.As(err, &pe)
}

// Config holds retry configuration.
type Config struct {
	// MaxAttempts counts the first call too. Default: 3
	MaxAttempts int
	// InitialDelay before the second attempt. Default: 100ms
	InitialDelay time.Duration
	// MaxDelay caps a single wait. Default: 30s
	MaxDelay time.Duration
	// Multiplier grows the delay after each attempt. Default: 2.0
	Multiplier float64
	// JitterFactor randomizes each delay by ±factor. Default: 0.1
	JitterFactor float64
	// MaxElapsed bounds the whole call; zero means no bound.
	MaxElapsed time.Duration

	// RetryIf overrides the Retryable marker check.
	RetryIf func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Option configures a Retrier.
type Option func(*Config)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the delay before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1.0 {
			c.Multiplier = m
		}
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1.0 {
			c.JitterFactor = j
		}
	}
}

// WithMaxElapsed bounds the total time spent in Do.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Config) { c.MaxElapsed = d }
}

// WithRetryIf sets a custom retry predicate.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

// WithOnRetry sets a callback called before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier is safe for concurrent use; every Do gets its own backoff state.
type Retrier struct {
	config Config
}

// New creates a Retrier.
func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Do calls operation until it succeeds, returns a final error, runs out of
// attempts or ctx is done. The returned error has the Retryable and
// Permanent markers stripped.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := operation(ctx)
		if err == nil || IsPermanent(err) || r.shouldRetry(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, r.options(&attempt)...)

	// backoff keeps the marker when the last allowed attempt fails.
	switch e := err.(type) {
	case *RetryableError:
		return e.Err
	case *backoff.PermanentError:
		return e.Err
	}
	return err
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	return IsRetryable(err)
}

func (r *Retrier) options(attempt *int) []backoff.RetryOption {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     r.config.InitialDelay,
			RandomizationFactor: r.config.JitterFactor,
			Multiplier:          r.config.Multiplier,
			MaxInterval:         r.config.MaxDelay,
		}),
		backoff.WithMaxTries(uint(r.config.MaxAttempts)),
		backoff.WithMaxElapsedTime(r.config.MaxElapsed),
	}
	if r.config.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, delay time.Duration) {
			r.config.OnRetry(*attempt, err, delay)
		}))
	}
	return opts
}

// Do is a shortcut for New(opts...).Do(ctx, operation).
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, operation)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// BrokerRetrier is used for AMQP publishes; a dropped channel is reopened
// between attempts.
func BrokerRetrier() *Retrier {
	return New(
		WithMaxAttempts(4),
		WithInitialDelay(200*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithJitter(0.2),
	)
}

// ChatRetrier is used for chat conversation writes.
func ChatRetrier() *Retrier {
	return New(
		WithMaxAttempts(5),
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(1.5),
	)
}

// HandlerRetrier is used for in-process event handlers.
// attempts <= 0 keeps the default of 3.
func HandlerRetrier(attempts int) *Retrier {
	return New(
		WithMaxAttempts(attempts),
		WithInitialDelay(250*time.Millisecond),
		WithMaxDelay(2*time.Second),
	)
}

// DatabaseRetrier is used while the Postgres pool comes up.
func DatabaseRetrier() *Retrier {
	return New(
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.05),
	)
}
