// Package cli wires the cmd/resque Cobra binary: one process image that can
// run as a worker, a cron/delayed-job scheduler, a dead-worker pruner, or a
// one-off producer, selected by subcommand. Flags, environment variables
// (RESQUE_* prefix) and an optional config file layer on top of each other
// through viper before internal/config.Config is built.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// New builds the root "resque" command with every subcommand registered.
func New(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:   "resque",
		Short: "Redis-backed job queue, worker and scheduler",
		Long: `resque runs a Resque-protocol-compatible job queue backed by Redis:
a worker that forks one child process per job, a scheduler that promotes
delayed jobs and fires named cron schedules, a pruner for dead worker
registrations, an enqueue command for one-off job submission, and a
dequeue command for removing jobs from a queue without running them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("config", "", "path to a YAML/JSON/TOML config file")
	root.PersistentFlags().String("redis-url", "", "redis connection URL (default redis://localhost:6379)")
	root.PersistentFlags().String("redis-namespace", "", "redis key prefix (default resque:)")
	root.PersistentFlags().Int("redis-db", 0, "redis logical database")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	root.PersistentFlags().String("log-format", "", "json or text")

	root.AddCommand(
		newWorkerCommand(),
		newPerformCommand(),
		newScheduleCommand(),
		newPruneCommand(),
		newEnqueueCommand(),
		newDequeueCommand(),
	)

	return root
}
