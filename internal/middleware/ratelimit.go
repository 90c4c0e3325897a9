// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sweepInterval is how often idle clients are forgotten.
const sweepInterval = 5 * time.Minute

// RateLimiter throttles requests per client with a sliding window log:
// a client may make limit requests in any window-long span.
type RateLimiter struct {
	limit      int
	window     time.Duration
	trustProxy bool
	rejected   prometheus.Counter
	now        func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// TrustProxyHeaders keys clients by X-Forwarded-For or X-Real-IP. Only
// enable it behind a proxy that overwrites those headers, otherwise any
// client can pick its own key.
func TrustProxyHeaders() LimiterOption {
	return func(rl *RateLimiter) { rl.trustProxy = true }
}

// WithRejectMetric counts rejected requests in reg, labelled with the
// limiter's name so several limiters can share one registry.
func WithRejectMetric(reg prometheus.Registerer, name string) LimiterOption {
	return func(rl *RateLimiter) {
		rl.rejected = promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "agora_http_rate_limited_total",
			Help:        "Requests rejected by a rate limiter.",
			ConstLabels: prometheus.Labels{"limiter": name},
		})
	}
}

// NewRateLimiter allows limit requests per window and client. A
// background goroutine forgets idle clients until Stop is called.
func NewRateLimiter(limit int, window time.Duration, opts ...LimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string][]time.Time),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.sweep()
			case <-rl.stop:
				return
			}
		}
	}()

	return rl
}

// Stop ends the sweeper. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// allow records a request from key. When the client is over the limit
// it reports how long until the oldest request leaves the window.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	log := rl.clients[key]
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	log = log[i:]

	if len(log) >= rl.limit {
		rl.clients[key] = log
		return false, log[0].Sub(cutoff)
	}
	rl.clients[key] = append(log, now)
	return true, 0
}

// sweep forgets clients with no request inside the window.
func (rl *RateLimiter) sweep() {
	cutoff := rl.now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, log := range rl.clients {
		if len(log) == 0 || !log[len(log)-1].After(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.allow(rl.clientKey(r))
		if !ok {
			if rl.rejected != nil {
				rl.rejected.Inc()
			}
			secs := max(1, int(math.Ceil(wait.Seconds())))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			jsonError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller, honouring proxy headers only when
// configured to.
func (rl *RateLimiter) clientKey(r *http.Request) string {
	if rl.trustProxy {
		if ip := forwardedIP(r); ip != "" {
			return ip
		}
	}
	return remoteIP(r)
}

// clientIP is the best-effort caller address used in logs.
func clientIP(r *http.Request) string {
	if ip := forwardedIP(r); ip != "" {
		return ip
	}
	return remoteIP(r)
}

func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
