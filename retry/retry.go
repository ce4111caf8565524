// Package retry re-runs units of work that fail with transient connection
// errors, backing off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/syssam/dbx"
	dsql "github.com/syssam/dbx/dialect/sql"
)

// Policy bounds the retries of one unit of work.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Delay is the wait before the first retry.
	Delay time.Duration
	// Backoff multiplies the delay after every retry. Values below 1 keep
	// the delay constant.
	Backoff float64
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy retries three times, waiting 1s, 1.5s and 2.25s.
var DefaultPolicy = Policy{MaxRetries: 3, Delay: time.Second, Backoff: 1.5}

type options struct {
	revalidate func(context.Context) error
	classify   func(error) bool
	log        *slog.Logger
}

// Option configures Do and Wrap.
type Option func(*options)

// WithRevalidate runs fn before every retry, typically to ping or
// re-acquire the connection. An error from fn counts as the failure of
// that attempt.
func WithRevalidate(fn func(context.Context) error) Option {
	return func(o *options) {
		o.revalidate = fn
	}
}

// WithClassifier replaces the transient error predicate.
func WithClassifier(fn func(error) bool) Option {
	return func(o *options) {
		o.classify = fn
	}
}

// WithLogger sets the logger that records failed attempts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Do calls fn until it succeeds, fails with a non-transient error, or has
// been attempted p.MaxRetries+1 times. Non-transient errors are returned
// unchanged. When the budget is spent, the last failure is returned
// wrapped in a *dbx.TransientConnectionError.
func Do(ctx context.Context, p Policy, fn func(context.Context) error, opts ...Option) error {
	o := options{classify: dsql.IsTransient, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	var (
		attempts int
		last     error
	)
	op := func() error {
		attempts++
		if attempts > 1 && o.revalidate != nil {
			if err := o.revalidate(ctx); err != nil {
				return o.check(err, &last)
			}
		}
		return o.check(fn(ctx), &last)
	}
	notify := func(err error, wait time.Duration) {
		o.log.WarnContext(ctx, "retry: transient failure",
			"attempt", attempts, "max_attempts", max(p.MaxRetries, 0)+1, "delay", wait, "error", err)
	}
	err := backoff.RetryNotify(op, p.backOff(ctx), notify)
	switch {
	case err == nil:
		return nil
	case last != nil && errors.Is(err, last):
		o.log.ErrorContext(ctx, "retry: attempts exhausted", "attempts", attempts, "error", err)
		return dbx.NewTransientConnectionError(attempts, err)
	default:
		return err
	}
}

// check records transient failures and marks the rest permanent.
func (o *options) check(err error, last *error) error {
	if err == nil {
		return nil
	}
	if !o.classify(err) {
		return backoff.Permanent(err)
	}
	*last = err
	return err
}

// Wrap returns fn guarded by Do.
func Wrap(p Policy, fn func(context.Context) error, opts ...Option) func(context.Context) error {
	return func(ctx context.Context) error {
		return Do(ctx, p, fn, opts...)
	}
}

// Value is Do for units of work that produce a value.
func Value[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	var v T
	err := Do(ctx, p, func(ctx context.Context) error {
		var err error
		v, err = fn(ctx)
		return err
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(p.Delay, 0)
	b.Multiplier = max(p.Backoff, 1)
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0))), ctx)
}
