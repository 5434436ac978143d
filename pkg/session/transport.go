package session

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport retries.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bugbug_transport_retries_total",
		Help: "Total number of transport retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bugbug_transport_retry_backoff_seconds",
		Help:    "Backoff duration before transport retries by error class",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bugbug_transport_retry_exhausted_total",
		Help: "Total number of requests that used every transport retry by error class",
	}, []string{"error_class"})
)

// errRateLimited marks attempts the rate limiter refused to start.
var errRateLimited = errors.New("rate limiter")

// Transport is an http.RoundTripper that adds the API key header and
// retries transient failures.
//
// Retry-listed statuses that are still failing after the last retry are
// returned as a normal response so the caller can inspect them. Network
// errors that outlive the retries are wrapped in ErrRetryExhausted.
type Transport struct {
	base      http.RoundTripper
	config    Config
	retryable map[int]bool
	logger    zerolog.Logger
}

// NewTransport creates a retrying transport.
func NewTransport(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = 2.0
	}

	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}

	retryable := make(map[int]bool, len(cfg.RetryStatusCodes))
	for _, code := range cfg.RetryStatusCodes {
		retryable[code] = true
	}

	return &Transport{
		base:      base,
		config:    cfg,
		retryable: retryable,
		logger:    componentLogger(cfg.Logger),
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	policy := t.newBackOff()
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	for attempt := 1; ; attempt++ {
		resp, err := t.attempt(req, attempt)
		if err != nil && (ctx.Err() != nil || errors.Is(err, errRateLimited)) {
			return nil, err
		}

		class := Classify(resp, err)
		if !t.shouldRetry(resp, err) || !replayable {
			return resp, err
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			retryExhaustedTotal.WithLabelValues(string(class)).Inc()
			t.logger.Warn().
				Str("url", req.URL.String()).
				Str("error_class", string(class)).
				Int("attempts", attempt).
				Msg("Retry attempts exhausted")
			if err != nil {
				return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, attempt, err)
			}
			return resp, nil
		}

		if resp != nil {
			drain(resp)
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		logEvent := t.logger.Warn().
			Str("url", req.URL.String()).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait)
		if err != nil {
			logEvent = logEvent.Err(err)
		} else {
			logEvent = logEvent.Int("status", resp.StatusCode)
		}
		logEvent.Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}

// attempt performs a single request on a fresh copy of req.
func (t *Transport) attempt(req *http.Request, n int) (*http.Response, error) {
	ctx := req.Context()
	if t.config.RateLimiter != nil {
		if err := t.config.RateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", errRateLimited, err)
		}
	}

	out := req.Clone(ctx)
	if n > 1 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set(APIKeyHeader, t.config.APIKey)

	return t.base.RoundTrip(out)
}

func (t *Transport) shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return t.retryable[resp.StatusCode]
}

func (t *Transport) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = t.config.InitialBackoff
	exp.MaxInterval = t.config.MaxBackoff
	exp.Multiplier = t.config.BackoffMultiplier
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0

	policy := backoff.WithMaxRetries(exp, uint64(t.config.Retries))
	policy.Reset()
	return policy
}

// drain discards a response that is about to be retried so the connection
// can be reused.
func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
