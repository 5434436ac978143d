// Package batch prefetches the schedules of many pushes in parallel.
//
// A Prefetcher runs a bounded number of schedules.Fetcher calls at a time.
// Every successful result lands in the fetcher's memo, so later Fetch calls
// for the same pushes are answered without network traffic.
//
// Example usage:
//
//	p := batch.NewPrefetcher(fetcher, batch.DefaultConfig())
//	results, err := p.FetchAll(ctx, []schedules.Query{
//		{Branch: "autoland", Revision: "abc123"},
//		{Branch: "try", Revision: "def456"},
//	})
//
// The prefetcher:
//   - Deduplicates queries
//   - Runs at most MaxConcurrency fetches at once
//   - Keeps going when a push fails and returns partial results
//   - Joins every failure into the returned error
package batch
