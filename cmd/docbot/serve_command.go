package main

import (
	"github.com/spf13/cobra"

	"docbot/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel, Development: development})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a background task worker against the shared task database",
		Long: "Run a background task worker. Workers claim converter operations enqueued by\n" +
			"the daemon; start as many as the host can sustain. Without a live worker the\n" +
			"daemon runs every operation inline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.RunWorker(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel}, concurrency)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel operations (defaults to tasks.workers)")
	return cmd
}
