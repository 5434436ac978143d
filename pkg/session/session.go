// Package session provides the shared HTTP client used to talk to bugbug.
//
// The client sends the bugbug API key on every request and retries
// connection errors and transient 5xx responses with exponential backoff.
// Callers only ever see the final outcome of a request.
package session

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// APIKeyHeader carries the client identifier expected by bugbug.
const APIKeyHeader = "X-API-KEY"

// DefaultAPIKey identifies this client to bugbug.
const DefaultAPIKey = "gecko-taskgraph"

// Config holds the session configuration.
type Config struct {
	// APIKey is sent in the X-API-KEY header.
	APIKey string

	// Retries is the number of retries after the first attempt.
	Retries int

	// RetryStatusCodes are the statuses retried like network errors.
	RetryStatusCodes []int

	// Backoff between attempts grows from InitialBackoff by BackoffMultiplier
	// up to MaxBackoff.
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Timeout bounds a whole request, retries and backoff included (0 = none).
	Timeout time.Duration

	// RateLimiter, if set, is waited on before every attempt.
	RateLimiter *rate.Limiter

	// Base is the underlying transport (default: http.DefaultTransport).
	Base http.RoundTripper

	// Logger defaults to the global logger tagged with component=bugbug-session.
	Logger *zerolog.Logger
}

// DefaultConfig returns the configuration of the shared session.
func DefaultConfig() Config {
	return Config{
		APIKey:            DefaultAPIKey,
		Retries:           5,
		RetryStatusCodes:  []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           30 * time.Second,
	}
}

// Validate checks the configuration for values the transport cannot use.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0 (got %d)", c.Retries)
	}
	if c.Retries > 0 && c.InitialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be > 0 when retrying")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max backoff (%v) must be >= initial backoff (%v)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffMultiplier != 0 && c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1 (got %v)", c.BackoffMultiplier)
	}
	return nil
}

// New creates an HTTP client configured from cfg.
func New(cfg Config) (*http.Client, error) {
	t, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: t,
		Timeout:   cfg.Timeout,
	}, nil
}

var (
	defaultOnce   sync.Once
	defaultClient *http.Client
)

// Default returns the process-wide session. It is built on first use and
// shared by every caller afterwards; concurrent first calls build it once.
func Default() *http.Client {
	defaultOnce.Do(func() {
		c, err := New(DefaultConfig())
		if err != nil {
			panic(fmt.Sprintf("session: invalid default config: %v", err))
		}
		defaultClient = c
	})
	return defaultClient
}

func componentLogger(l *zerolog.Logger) zerolog.Logger {
	if l != nil {
		return *l
	}
	return log.With().Str("component", "bugbug-session").Logger()
}
