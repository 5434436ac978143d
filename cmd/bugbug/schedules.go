package main

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Sternrassler/bugbug-client/pkg/schedules"
	"github.com/spf13/cobra"
)

func newSchedulesCmd(opts *rootOptions) *cobra.Command {
	var minConfidence string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schedules <branch> <revision>",
		Short: "Fetch the test groups bugbug schedules for a push",
		Long:  "Fetch the schedules of a push. bugbug answers 202 while it computes them; the command keeps polling until the result is ready or retry_timeout is spent.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold := math.Inf(-1)
			if minConfidence != "" {
				var err error
				if threshold, err = schedules.ParseConfidence(minConfidence); err != nil {
					return err
				}
			}

			a, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.fetcher.Fetch(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if asJSON {
				return renderJSON(cmd, res)
			}
			return renderGroups(cmd, res, threshold)
		},
	}

	cmd.Flags().StringVar(&minConfidence, "min-confidence", "", "Only list groups at or above this confidence: low, medium, high")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full bugbug response as JSON")

	return cmd
}

func renderJSON(cmd *cobra.Command, res *schedules.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func renderGroups(cmd *cobra.Command, res *schedules.Result, threshold float64) error {
	out := cmd.OutOrStdout()
	if !res.HasGroups() {
		_, err := fmt.Fprintln(out, "no groups in response")
		return err
	}
	for _, name := range res.GroupsAbove(threshold) {
		confidence, _ := res.Confidence(name)
		if _, err := fmt.Fprintf(out, "%.2f\t%s\n", confidence, name); err != nil {
			return err
		}
	}
	return nil
}
