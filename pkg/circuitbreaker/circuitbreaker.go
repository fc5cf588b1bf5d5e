// Package circuitbreaker guards calls to the broker, chat store and document
// store so that an outage fails fast instead of piling up timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// State of a breaker.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

var (
	// ErrCircuitOpen is returned without calling fn while the breaker is open.
	ErrCircuitOpen = gobreaker.ErrOpenState
	// ErrTooManyRequests is returned when the half-open request quota is used up.
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// Counts of the current generation.
type Counts = gobreaker.Counts

// Config holds circuit breaker configuration.
type Config struct {
	Name string

	// FailureThreshold consecutive failures open the breaker. Default: 5
	FailureThreshold uint32
	// HalfOpenRequests pass while half-open; that many successes in a row
	// close the breaker again. Default: 1
	HalfOpenRequests uint32
	// Timeout is how long the breaker stays open. Default: 30s
	Timeout time.Duration

	OnStateChange func(name string, from, to State)
	// IsFailure decides which errors count against the breaker.
	// Default: every error except context cancellation.
	IsFailure func(error) bool
}

// DefaultConfig returns defaults for name.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		HalfOpenRequests: 1,
		Timeout:          30 * time.Second,
		IsFailure:        defaultIsFailure,
	}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Option configures a breaker.
type Option func(*Config)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n uint32) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithHalfOpenRequests sets how many calls pass while half-open.
func WithHalfOpenRequests(n uint32) Option {
	return func(c *Config) {
		if n > 0 {
			c.HalfOpenRequests = n
		}
	}
}

// WithTimeout sets how long the breaker stays open.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithOnStateChange sets the transition callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithIsFailure sets the failure predicate.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) {
		if fn != nil {
			c.IsFailure = fn
		}
	}
}

// CircuitBreaker wraps gobreaker with a context-aware Execute.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a breaker.
func New(name string, opts ...Option) *CircuitBreaker {
	config := DefaultConfig(name)
	for _, opt := range opts {
		opt(&config)
	}

	isFailure := config.IsFailure
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenRequests,
		Timeout:     config.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: config.OnStateChange,
		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},
	})}
}

// Execute runs fn unless the breaker is open. A done ctx is returned as is
// and does not touch the counters.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// State returns the current state.
func (b *CircuitBreaker) State() State { return b.cb.State() }

// Counts returns the counters of the current generation.
func (b *CircuitBreaker) Counts() Counts { return b.cb.Counts() }

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string { return b.cb.Name() }

// IsOpen reports whether calls are being rejected.
func (b *CircuitBreaker) IsOpen() bool { return b.cb.State() == StateOpen }

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// BrokerBreaker guards AMQP publishes. Broker restarts are quick.
func BrokerBreaker(opts ...Option) *CircuitBreaker {
	return New("broker", append([]Option{
		WithFailureThreshold(3),
		WithTimeout(30 * time.Second),
	}, opts...)...)
}

// ChatBreaker guards chat conversation writes.
func ChatBreaker(opts ...Option) *CircuitBreaker {
	return New("chat", append([]Option{
		WithFailureThreshold(5),
		WithHalfOpenRequests(2),
		WithTimeout(30 * time.Second),
	}, opts...)...)
}

// StorageBreaker guards the document store; S3 outages tend to last.
func StorageBreaker(opts ...Option) *CircuitBreaker {
	return New("storage", append([]Option{
		WithFailureThreshold(3),
		WithTimeout(60 * time.Second),
	}, opts...)...)
}
