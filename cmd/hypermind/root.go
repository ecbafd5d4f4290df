package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var memory bool
	ctx := &commandContext{memory: &memory}

	rootCmd := &cobra.Command{
		Use:           "hypermind",
		Short:         "Durable study pipelines: API, worker and run inspection",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVar(&memory, "memory", false, "Use an in-memory sqlite database and object store")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newWorkerCommand(ctx))
	rootCmd.AddCommand(newPublishCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newPipelinesCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))

	return rootCmd
}
