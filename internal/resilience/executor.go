// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	retry "github.com/sethvargo/go-retry"
)

// Executor runs remote operations with retries. It holds no mutable state
// and is safe for concurrent use.
type Executor struct {
	opts    Options
	metrics *Metrics
}

// New creates an Executor. metrics may be nil.
func New(opts Options, metrics *Metrics) *Executor {
	return &Executor{opts: opts.withDefaults(), metrics: metrics}
}

// Options returns the effective settings.
func (e *Executor) Options() Options {
	return e.opts
}

// With returns a copy of the executor with modified options, sharing the
// same metrics. Used for calls that need a different budget (probes).
func (e *Executor) With(modify func(*Options)) *Executor {
	opts := e.opts
	modify(&opts)
	return &Executor{opts: opts.withDefaults(), metrics: e.metrics}
}

// Run executes op until it succeeds, fails with a non-retriable error or
// runs out of attempts. The last error is returned on exhaustion.
func (e *Executor) Run(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Run for operations that produce a value. The returned error is the
// error half of the (value, error) envelope from the final attempt.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	o := e.opts
	start := time.Now()

	var (
		result  T
		attempt int
		lastErr error
		delay   time.Duration
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= o.MaxAttempts {
			return 0, true
		}
		delay = o.nextDelay(delay)
		e.metrics.retry()
		slog.Debug("retrying remote call",
			"attempt", attempt,
			"delay", delay.String(),
			"error", lastErr,
		)
		if o.OnRetry != nil {
			o.OnRetry(attempt, delay, lastErr)
		}
		return delay, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		v, err := runAttempt(ctx, o.Timeout, op)
		if err == nil {
			e.metrics.attempt("success")
			result = v
			return nil
		}
		lastErr = err

		// The caller gave up; nothing left to retry for.
		if ctx.Err() != nil {
			e.metrics.attempt("permanent")
			return err
		}
		if !IsRetriable(err) {
			e.metrics.attempt("permanent")
			return err
		}
		e.metrics.attempt("retriable")
		return retry.RetryableError(err)
	})

	e.metrics.observe(time.Since(start).Seconds())
	if err != nil && attempt >= o.MaxAttempts && o.MaxAttempts > 1 {
		slog.Warn("remote call failed after retries",
			"attempts", attempt,
			"elapsed", time.Since(start).String(),
			"error", err,
		)
	}
	return result, err
}

// outcome carries one attempt's result across the goroutine boundary.
type outcome[T any] struct {
	value T
	err   error
}

// runAttempt races op against the attempt timeout. On timeout the attempt
// context is cancelled so a context-aware call aborts; a call that ignores
// its context is abandoned and its late result discarded.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		v, err := op(actx)
		done <- outcome[T]{value: v, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return zero, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, out.err)
		}
		return out.value, out.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}
