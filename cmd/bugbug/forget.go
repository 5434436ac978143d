package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newForgetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <branch> <revision>",
		Short: "Drop the memoized schedules of a push",
		Long:  "Drop the memoized schedules of a push so the next fetch polls bugbug again. Only useful with redis.addr set; the in-process memo does not outlive a command.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.fetcher.Forget(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "forgot %s/%s\n", args[0], args[1])
			return err
		},
	}
}
