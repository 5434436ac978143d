package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "bugbug",
		Short:         "Query bugbug for the test groups to schedule on a push",
		Long:          "bugbug fetches push schedules from the bugbug service, waiting while bugbug computes them, and can serve them through a memoizing HTTP proxy.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: ./bugbug.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, disabled (overrides log.level)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSchedulesCmd(opts),
		newPrefetchCmd(opts),
		newForgetCmd(opts),
		newServeCmd(opts),
	)

	return rootCmd
}

// wire loads configuration and builds the application for a command.
func (o *rootOptions) wire(cmd *cobra.Command) (*app, error) {
	v := viper.New()
	if o.logLevel != "" {
		v.Set("log.level", o.logLevel)
	}
	return wireApp(cmd.Context(), v, o.configPath, cmd.ErrOrStderr())
}
