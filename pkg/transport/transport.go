// Package transport executes single HTTP requests against the npm registry
// with bounded retry, exponential backoff, and cooperative cancellation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pkgscout/npm-discovery/pkg/ratelimit"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_requests_total",
		Help: "Total registry requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_request_duration_seconds",
		Help:    "Registry request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_errors_total",
		Help: "Total registry errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Config holds the transport configuration.
type Config struct {
	// MaxAttempts is the total number of attempts (initial request plus retries).
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Timeout is the per-request timeout, independent of the caller's context.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Limiter optionally gates request admission (client-side politeness).
	Limiter *ratelimit.Limiter
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           30 * time.Second,
		UserAgent:         "npm-discovery/0.1.0",
	}
}

// Transport executes single HTTP requests with retry and backoff. It holds no
// mutable state after construction and is safe for concurrent use. Create one
// instance per application session and pass it to each component explicitly.
type Transport struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new Transport.
func New(cfg Config) *Transport {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * time.Second
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Transport{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "transport").Logger(),
	}
}

// Do executes the request with retry and backoff.
//
// Outcomes:
//   - 2xx: the response is returned; the caller owns the body.
//   - 4xx: a *StatusError is returned immediately, never retried.
//   - 5xx: retried with backoff; on exhaustion the error wraps ErrRetryExhausted.
//   - no response (DNS, timeout, refused): retried like 5xx; on exhaustion the
//     error wraps ErrUnreachable.
//   - context cancelled: the error wraps ErrCancelled; checked before every
//     attempt and before every backoff delay.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	req.Header.Set("User-Agent", t.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	backoff := t.config.InitialBackoff
	var lastErr error
	var lastClass ErrorClass

	for attempt := 1; attempt <= t.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		if t.config.Limiter != nil {
			if err := t.config.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
			}
		}

		resp, err := t.httpClient.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			lastErr = err
			lastClass = ErrorClassNetwork
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			t.logger.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Msg("Request failed without response")

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			lastClass = ErrorClassServer
			errorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
			requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
			t.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Msg("Registry server error")

		case resp.StatusCode >= 400:
			resp.Body.Close()
			errorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
			requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
			t.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Msg("Registry client error")
			return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

		default:
			requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
			if attempt > 1 {
				t.logger.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		if !shouldRetry(lastClass) || attempt >= t.config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(lastClass)).Inc()

		// ±20% jitter to avoid synchronized retries.
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(jitter.Seconds())

		t.logger.Debug().
			Str("endpoint", endpoint).
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * t.config.BackoffMultiplier)
		if backoff > t.config.MaxBackoff {
			backoff = t.config.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	t.logger.Warn().
		Str("endpoint", endpoint).
		Str("error_class", string(lastClass)).
		Int("max_attempts", t.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	if lastClass == ErrorClassNetwork {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, t.config.MaxAttempts, lastErr)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, t.config.MaxAttempts, lastErr)
}

// Get performs a GET request against url with the transport's retry policy.
func (t *Transport) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return t.Do(req)
}

// IsCancelled reports whether err represents a cooperative stop rather than a
// failure. Both transport-level and raw context errors are recognized.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *Transport) SetHTTPClient(client *http.Client) {
	t.httpClient = client
}
