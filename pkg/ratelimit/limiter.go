// Package ratelimit implements client-side request throttling for the npm
// registry. The registry publishes no quota headers, so the limiter is a
// proactive token bucket keeping request rates polite.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limiting.
var (
	throttleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_ratelimit_waits_total",
		Help: "Total number of requests delayed by the client-side rate limiter",
	})

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_ratelimit_wait_seconds",
		Help:    "Time spent waiting on the client-side rate limiter",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultConfig returns a conservative default for the public npm registry.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10.0,
		BurstSize:         5,
	}
}

// Limiter gates request admission with a token bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a new limiter.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10.0
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 5
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Wait blocks until a request may be admitted or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		throttleWaitsTotal.Inc()
		throttleWaitSeconds.Observe(waited.Seconds())
	}
	return nil
}

// Allow reports whether a request may be admitted immediately.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
