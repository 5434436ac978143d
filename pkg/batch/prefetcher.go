package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/bugbug-client/pkg/schedules"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds prefetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches.
	// Each fetch may poll bugbug for minutes, so keep it small.
	MaxConcurrency int

	// Timeout per push (0 = bounded only by the fetcher's polling budget).
	Timeout time.Duration

	// Logger defaults to the global logger tagged with component=bugbug-batch.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default prefetcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        10 * time.Minute,
	}
}

// ScheduleFetcher is implemented by *schedules.Fetcher.
type ScheduleFetcher interface {
	Fetch(ctx context.Context, branch, revision string) (*schedules.Result, error)
}

// QueryError records the failure of one push.
type QueryError struct {
	Query schedules.Query
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Query.Branch, e.Query.Revision, e.Err)
}

// Unwrap returns the underlying fetch error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Prefetcher fetches many pushes through one ScheduleFetcher.
type Prefetcher struct {
	fetcher ScheduleFetcher
	config  Config
	logger  zerolog.Logger
}

// NewPrefetcher creates a prefetcher.
func NewPrefetcher(fetcher ScheduleFetcher, config Config) *Prefetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}

	logger := log.With().Str("component", "bugbug-batch").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Prefetcher{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// FetchAll fetches every query and returns the successful results keyed by
// query. If any push fails, the results of the others are still returned
// together with a joined error of *QueryError values.
func (p *Prefetcher) FetchAll(ctx context.Context, queries []schedules.Query) (map[schedules.Query]*schedules.Result, error) {
	start := time.Now()
	unique := dedupe(queries)

	p.logger.Info().
		Int("queries", len(unique)).
		Int("max_concurrency", p.config.MaxConcurrency).
		Msg("Starting schedules prefetch")

	var (
		mu      sync.Mutex
		results = make(map[schedules.Query]*schedules.Result, len(unique))
		errs    []error
	)

	var g errgroup.Group
	g.SetLimit(p.config.MaxConcurrency)

	for _, q := range unique {
		if ctx.Err() != nil {
			mu.Lock()
			errs = append(errs, &QueryError{Query: q, Err: ctx.Err()})
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			res, err := p.fetchOne(ctx, q)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn().
					Err(err).
					Str("branch", q.Branch).
					Str("revision", q.Revision).
					Msg("Push prefetch failed")
				errs = append(errs, &QueryError{Query: q, Err: err})
				return nil
			}
			results[q] = res
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		p.logger.Warn().
			Int("fetched", len(results)).
			Int("failed", len(errs)).
			Dur("duration", time.Since(start)).
			Msg("Prefetch finished with errors - returning partial results")
		return results, fmt.Errorf("prefetch (partial data: %d/%d pushes): %w",
			len(results), len(unique), errors.Join(errs...))
	}

	p.logger.Info().
		Int("fetched", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Prefetch complete")
	return results, nil
}

func (p *Prefetcher) fetchOne(ctx context.Context, q schedules.Query) (*schedules.Result, error) {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}
	return p.fetcher.Fetch(ctx, q.Branch, q.Revision)
}

// dedupe drops repeated queries, keeping the first occurrence.
func dedupe(queries []schedules.Query) []schedules.Query {
	seen := make(map[schedules.Query]struct{}, len(queries))
	out := make([]schedules.Query, 0, len(queries))
	for _, q := range queries {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
