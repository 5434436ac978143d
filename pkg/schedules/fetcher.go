// Package schedules queries bugbug for the test groups to run on a push.
//
// bugbug answers 202 while it is still computing a push. Fetch polls at a
// fixed interval until the result is ready or the polling budget is spent,
// rewrites group names for the scheduler, and memoizes the result per
// branch and revision.
package schedules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bugbug-client/pkg/cache"
	"github.com/Sternrassler/bugbug-client/pkg/groups"
	"github.com/Sternrassler/bugbug-client/pkg/perfherder"
	"github.com/Sternrassler/bugbug-client/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the public bugbug service.
const DefaultBaseURL = "https://bugbug.herokuapp.com"

// Names of the values reported to Perfherder after every poll sequence.
const (
	MetricTime    = "bugbug_push_schedules_time"
	MetricRetries = "bugbug_push_schedules_retries"
)

// Emitter receives timing data of every poll sequence.
type Emitter interface {
	Emit(perfherder.Measurements) error
}

// Config holds the fetcher configuration.
type Config struct {
	// BaseURL of the bugbug service.
	BaseURL string

	// RetryTimeout is the polling budget; RetryInterval the wait between
	// polls. Together they fix the number of polls (480s / 10s = 48).
	RetryTimeout  time.Duration
	RetryInterval time.Duration

	// HTTPClient defaults to the shared session (session.Default).
	HTTPClient *http.Client

	// Cache defaults to a new process-lifetime memory store.
	Cache cache.Store

	// Emitter defaults to perfherder.New().
	Emitter Emitter

	// Translations defaults to groups.DefaultTable.
	Translations groups.Table

	// Logger defaults to the global logger tagged with component=bugbug-schedules.
	Logger *zerolog.Logger

	// Sleep waits between polls (default: a timer that honors ctx).
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		RetryTimeout:  8 * time.Minute,
		RetryInterval: 10 * time.Second,
	}
}

// Fetcher fetches and memoizes push schedules.
type Fetcher struct {
	baseURL     string
	interval    time.Duration
	maxAttempts int
	httpClient  *http.Client
	cache       cache.Store
	emitter     Emitter
	table       groups.Table
	sleep       func(ctx context.Context, d time.Duration) error
	logger      zerolog.Logger
	inflight    singleflight.Group
}

// New creates a fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.RetryInterval <= 0 {
		return nil, fmt.Errorf("retry_interval must be > 0 (got %v)", cfg.RetryInterval)
	}
	if cfg.RetryTimeout < cfg.RetryInterval {
		return nil, fmt.Errorf("retry_timeout (%v) must be >= retry_interval (%v)", cfg.RetryTimeout, cfg.RetryInterval)
	}

	f := &Fetcher{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		interval:    cfg.RetryInterval,
		maxAttempts: int(cfg.RetryTimeout / cfg.RetryInterval),
		httpClient:  cfg.HTTPClient,
		cache:       cfg.Cache,
		emitter:     cfg.Emitter,
		table:       cfg.Translations,
		sleep:       cfg.Sleep,
	}
	if f.cache == nil {
		f.cache = cache.NewMemoryStore()
	}
	if f.emitter == nil {
		f.emitter = perfherder.New()
	}
	if f.table == nil {
		f.table = groups.DefaultTable
	}
	if f.sleep == nil {
		f.sleep = sleepContext
	}
	if cfg.Logger != nil {
		f.logger = *cfg.Logger
	} else {
		f.logger = log.With().Str("component", "bugbug-schedules").Logger()
	}

	return f, nil
}

// MaxAttempts returns the number of polls made before giving up.
func (f *Fetcher) MaxAttempts() int {
	return f.maxAttempts
}

// URL returns the bugbug URL of a query.
func (f *Fetcher) URL(q Query) string {
	return f.baseURL + q.Path()
}

// Fetch returns the schedules of a push.
//
// A successful result is memoized: later calls with the same branch and
// revision return it without network traffic. Failures are not memoized,
// so the next call polls again. Concurrent calls for the same push share
// a single poll sequence. The shared sequence ignores the cancellation of
// any one caller and stays bounded by the attempt budget; each caller
// stops waiting when its own context is done.
func (f *Fetcher) Fetch(ctx context.Context, branch, revision string) (*Result, error) {
	q := Query{Branch: branch, Revision: revision}

	if res, ok := f.lookup(ctx, q); ok {
		memoLookups.WithLabelValues("hit").Inc()
		return res, nil
	}

	pollCtx := context.WithoutCancel(ctx)
	ch := f.inflight.DoChan(q.Key().String(), func() (interface{}, error) {
		if res, ok := f.lookup(pollCtx, q); ok {
			memoLookups.WithLabelValues("hit").Inc()
			return res, nil
		}
		memoLookups.WithLabelValues("miss").Inc()

		res, err := f.poll(pollCtx, q)
		if err != nil {
			return nil, err
		}
		f.remember(pollCtx, q, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch schedules for %s/%s: %w", branch, revision, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := r.Val.(*Result)
		if r.Shared {
			res = res.Clone()
		}
		return res, nil
	}
}

// Forget drops the memoized result of a push so the next Fetch polls again.
func (f *Fetcher) Forget(ctx context.Context, branch, revision string) error {
	q := Query{Branch: branch, Revision: revision}
	if err := f.cache.Delete(ctx, q.Key()); err != nil {
		return fmt.Errorf("forget %s: %w", q.Key(), err)
	}
	return nil
}

// lookup returns the memoized result of q. Store errors count as misses.
func (f *Fetcher) lookup(ctx context.Context, q Query) (*Result, bool) {
	entry, err := f.cache.Get(ctx, q.Key())
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			f.logger.Warn().Err(err).Str("key", q.Key().String()).Msg("Cache get error")
		}
		return nil, false
	}

	var res Result
	if err := json.Unmarshal(entry.Data, &res); err != nil {
		f.logger.Warn().Err(err).Str("key", q.Key().String()).Msg("Discarding undecodable cache entry")
		return nil, false
	}

	f.logger.Debug().
		Str("branch", q.Branch).
		Str("revision", q.Revision).
		Dur("age", entry.Age()).
		Msg("Schedules served from memo")
	return &res, true
}

func (f *Fetcher) remember(ctx context.Context, q Query, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		f.logger.Warn().Err(err).Str("key", q.Key().String()).Msg("Failed to encode result for cache")
		return
	}
	if err := f.cache.Set(ctx, q.Key(), cache.NewEntry(data)); err != nil {
		f.logger.Warn().Err(err).Str("key", q.Key().String()).Msg("Failed to cache result")
	}
}

// pollState is the state of a poll sequence.
type pollState int

const (
	statePolling pollState = iota
	stateSucceeded
	stateFailed
	stateTimedOut
)

// poll queries bugbug until the schedules are ready, an error occurs or the
// attempt budget is spent.
func (f *Fetcher) poll(ctx context.Context, q Query) (*Result, error) {
	target := f.URL(q)
	client := f.client()
	start := time.Now()

	var (
		body    []byte
		err     error
		pending int
		state   = statePolling
	)

	for state == statePolling {
		var status int
		body, status, err = f.get(ctx, client, target)

		switch {
		case err != nil:
			state = stateFailed
		case status == http.StatusAccepted:
			pending++
			f.logger.Debug().
				Str("url", target).
				Int("attempt", pending).
				Int("max_attempts", f.maxAttempts).
				Msg("Schedules not ready yet")
			if err = f.sleep(ctx, f.interval); err != nil {
				state = stateFailed
			} else if pending >= f.maxAttempts {
				state = stateTimedOut
			}
		default:
			state = stateSucceeded
		}
	}

	elapsed := time.Since(start)
	f.report(target, state, elapsed, pending)

	switch state {
	case stateFailed:
		f.logger.Error().Err(err).Str("url", target).Int("attempts", pending).Msg("Schedules fetch failed")
		return nil, fmt.Errorf("fetch schedules for %s/%s: %w", q.Branch, q.Revision, err)
	case stateTimedOut:
		f.logger.Error().Str("url", target).Dur("duration", elapsed).Msg("Timed out waiting for schedules")
		return nil, &TimeoutError{URL: target, Attempts: pending, Elapsed: elapsed}
	}

	var res Result
	if err := res.UnmarshalJSON(body); err != nil {
		return nil, fmt.Errorf("decode schedules from '%s': %w", target, err)
	}
	res.Groups = groups.TranslateKeys(f.table, res.Groups)

	f.logger.Info().
		Str("branch", q.Branch).
		Str("revision", q.Revision).
		Int("groups", len(res.Groups)).
		Int("retries", pending).
		Dur("duration", elapsed).
		Msg("Schedules fetched")
	return &res, nil
}

// get performs one poll. Error statuses are returned as *StatusError.
func (f *Fetcher) get(ctx context.Context, client *http.Client, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, 0, err
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, &StatusError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			ErrorClass: session.Classify(resp, nil),
		}
	}
	if resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// report records the timing of a poll sequence. Emission failures are
// logged and never change the fetch outcome.
func (f *Fetcher) report(target string, state pollState, elapsed time.Duration, pending int) {
	outcome := outcomeSucceeded
	switch state {
	case stateFailed:
		outcome = outcomeFailed
	case stateTimedOut:
		outcome = outcomeTimedOut
	}
	fetchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	pollAttempts.Observe(float64(pending))

	err := f.emitter.Emit(perfherder.Measurements{
		MetricTime:    elapsed.Seconds(),
		MetricRetries: float64(pending),
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("url", target).Msg("Failed to emit perfherder data")
	}
}

func (f *Fetcher) client() *http.Client {
	if f.httpClient != nil {
		return f.httpClient
	}
	return session.Default()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
