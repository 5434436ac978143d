package main

import (
	"fmt"
	"sort"

	"github.com/Sternrassler/bugbug-client/pkg/batch"
	"github.com/Sternrassler/bugbug-client/pkg/schedules"
	"github.com/spf13/cobra"
)

func newPrefetchCmd(opts *rootOptions) *cobra.Command {
	var branch string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "prefetch <revision>...",
		Short: "Fetch the schedules of several pushes of one branch in parallel",
		Long:  "Fetch the schedules of several pushes in parallel. With redis.addr set, the results are shared with every other bugbug client using the same Redis.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			queries := make([]schedules.Query, 0, len(args))
			for _, rev := range args {
				queries = append(queries, schedules.Query{Branch: branch, Revision: rev})
			}

			cfg := batch.DefaultConfig()
			cfg.MaxConcurrency = concurrency
			cfg.Timeout = a.cfg.RetryTimeout + a.cfg.HTTPTimeout
			results, fetchErr := batch.NewPrefetcher(a.fetcher, cfg).FetchAll(cmd.Context(), queries)

			revs := make([]string, 0, len(results))
			for q := range results {
				revs = append(revs, q.Revision)
			}
			sort.Strings(revs)

			out := cmd.OutOrStdout()
			for _, rev := range revs {
				res := results[schedules.Query{Branch: branch, Revision: rev}]
				if _, err := fmt.Fprintf(out, "%s\t%d groups\n", rev, len(res.Groups)); err != nil {
					return err
				}
			}
			return fetchErr
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "autoland", "Branch of the pushes")
	cmd.Flags().IntVar(&concurrency, "concurrency", batch.DefaultConfig().MaxConcurrency, "Maximum parallel fetches")

	return cmd
}
