// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package resilience wraps calls to the remote data service with a
// per-attempt timeout, exponential backoff and retry-eligibility
// classification. It performs no side effects of its own: whether an
// operation is safe to repeat is the caller's decision.
package resilience

import "time"

// Default retry settings.
const (
	DefaultMaxAttempts   = 4
	DefaultInitialDelay  = 500 * time.Millisecond
	DefaultMaxDelay      = 8 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultTimeout       = 15 * time.Second
)

// RetryFunc is notified before every backoff sleep with the attempt that
// just failed, the delay about to be waited and the failure.
type RetryFunc func(attempt int, delay time.Duration, err error)

// Options configures an Executor. Zero fields fall back to the defaults.
type Options struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Timeout       time.Duration
	OnRetry       RetryFunc
}

// DefaultOptions returns the stock retry settings.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:   DefaultMaxAttempts,
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		BackoffFactor: DefaultBackoffFactor,
		Timeout:       DefaultTimeout,
	}
}

// withDefaults fills unset or nonsensical fields.
func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = o.InitialDelay
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = DefaultBackoffFactor
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// nextDelay returns the wait before the next attempt: InitialDelay first,
// then min(last*BackoffFactor, MaxDelay).
func (o Options) nextDelay(last time.Duration) time.Duration {
	if last <= 0 {
		return min(o.InitialDelay, o.MaxDelay)
	}
	next := time.Duration(float64(last) * o.BackoffFactor)
	if next > o.MaxDelay || next <= 0 {
		return o.MaxDelay
	}
	return next
}
