package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/bugbug-client/internal/testutil"
	"github.com/Sternrassler/bugbug-client/pkg/schedules"
	"github.com/rs/zerolog"
)

var errBoom = errors.New("boom")

// fakeFetcher answers from a map and tracks concurrency.
type fakeFetcher struct {
	delay   time.Duration
	fail    map[string]error
	mu      sync.Mutex
	calls   map[schedules.Query]int
	active  int32
	maxSeen int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		fail:  make(map[string]error),
		calls: make(map[schedules.Query]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, branch, revision string) (*schedules.Result, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[schedules.Query{Branch: branch, Revision: revision}]++
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err, ok := f.fail[revision]; ok {
		return nil, err
	}
	var res schedules.Result
	if err := res.UnmarshalJSON([]byte(`{"groups": {"` + revision + `": 0.9}}`)); err != nil {
		return nil, err
	}
	return &res, nil
}

func quietConfig(maxConcurrency int) Config {
	nop := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.MaxConcurrency = maxConcurrency
	cfg.Logger = &nop
	return cfg
}

func queries(revs ...string) []schedules.Query {
	out := make([]schedules.Query, 0, len(revs))
	for _, rev := range revs {
		out = append(out, schedules.Query{Branch: "autoland", Revision: rev})
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.MaxConcurrency)
	}
	if cfg.Timeout != 10*time.Minute {
		t.Errorf("Timeout = %v, want 10m", cfg.Timeout)
	}

	p := NewPrefetcher(newFakeFetcher(), Config{})
	if p.config.MaxConcurrency != 4 {
		t.Errorf("zero MaxConcurrency not defaulted: %d", p.config.MaxConcurrency)
	}
}

func TestFetchAll_Success(t *testing.T) {
	fake := newFakeFetcher()
	p := NewPrefetcher(fake, quietConfig(2))

	results, err := p.FetchAll(context.Background(), queries("a", "b", "c"))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for _, q := range queries("a", "b", "c") {
		res, ok := results[q]
		if !ok {
			t.Errorf("missing result for %v", q)
			continue
		}
		if _, ok := res.Groups[q.Revision]; !ok {
			t.Errorf("result for %v = %v", q, res.Groups)
		}
	}
}

func TestFetchAll_Empty(t *testing.T) {
	p := NewPrefetcher(newFakeFetcher(), quietConfig(2))

	results, err := p.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestFetchAll_Deduplicates(t *testing.T) {
	fake := newFakeFetcher()
	p := NewPrefetcher(fake, quietConfig(4))

	results, err := p.FetchAll(context.Background(), queries("a", "b", "a", "a"))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
	if n := fake.calls[schedules.Query{Branch: "autoland", Revision: "a"}]; n != 1 {
		t.Errorf("fetches of a = %d, want 1", n)
	}
}

func TestFetchAll_RespectsConcurrencyLimit(t *testing.T) {
	fake := newFakeFetcher()
	fake.delay = 20 * time.Millisecond
	p := NewPrefetcher(fake, quietConfig(3))

	if _, err := p.FetchAll(context.Background(), queries("a", "b", "c", "d", "e", "f", "g", "h")); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if got := atomic.LoadInt32(&fake.maxSeen); got > 3 {
		t.Errorf("max concurrent fetches = %d, want <= 3", got)
	}
}

func TestFetchAll_PartialResults(t *testing.T) {
	fake := newFakeFetcher()
	fake.fail["b"] = errBoom
	p := NewPrefetcher(fake, quietConfig(2))

	results, err := p.FetchAll(context.Background(), queries("a", "b", "c"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("error = %v, want to wrap errBoom", err)
	}

	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("error %v does not contain *QueryError", err)
	}
	if qerr.Query.Revision != "b" {
		t.Errorf("QueryError.Query = %v, want revision b", qerr.Query)
	}

	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2 partial results", len(results))
	}
	if _, ok := results[schedules.Query{Branch: "autoland", Revision: "b"}]; ok {
		t.Error("failed query must not have a result")
	}
}

func TestFetchAll_PerQueryTimeout(t *testing.T) {
	fake := newFakeFetcher()
	fake.delay = time.Second
	cfg := quietConfig(2)
	cfg.Timeout = 10 * time.Millisecond
	p := NewPrefetcher(fake, cfg)

	_, err := p.FetchAll(context.Background(), queries("a"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestFetchAll_CancelledContext(t *testing.T) {
	fake := newFakeFetcher()
	p := NewPrefetcher(fake, quietConfig(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.FetchAll(ctx, queries("a", "b"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
	if len(fake.calls) != 0 {
		t.Errorf("fetcher called %d times after cancellation", len(fake.calls))
	}
}

func TestFetchAll_WarmsFetcherMemo(t *testing.T) {
	mock := testutil.NewMockBugbug()
	defer mock.Close()
	mock.ScriptSchedules("autoland", "a", 1, `{"groups": {"x": 0.9}}`)
	mock.ScriptSchedules("autoland", "b", 0, `{"groups": {"y": 0.8}}`)

	nop := zerolog.Nop()
	cfg := schedules.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.HTTPClient = mock.Client()
	cfg.Logger = &nop
	cfg.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	fetcher, err := schedules.New(cfg)
	if err != nil {
		t.Fatalf("schedules.New() error = %v", err)
	}

	p := NewPrefetcher(fetcher, quietConfig(2))
	if _, err := p.FetchAll(context.Background(), queries("a", "b")); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	requests := mock.RequestCount()
	if requests != 3 {
		t.Errorf("requests = %d, want 3", requests)
	}

	if _, err := fetcher.Fetch(context.Background(), "autoland", "a"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if mock.RequestCount() != requests {
		t.Error("Fetch after prefetch should be served from the memo")
	}
}
