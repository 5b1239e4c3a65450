package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resquego/resque/internal/rqqueue"
	"github.com/resquego/resque/pkg/client"
)

func newDequeueCommand() *cobra.Command {
	var (
		queue    string
		class    string
		id       string
		rawArgs  string
		all      bool
		workerID string
	)

	cmd := &cobra.Command{
		Use:   "dequeue",
		Short: "Remove jobs from a queue without running them",
		Long: `dequeue is the operator-facing side of the safe-dequeue algorithm
(spec.md §4.2): with --all it drops the whole queue, otherwise it removes
only the envelopes matching --class (optionally narrowed further by --id
or --args), leaving the rest of the queue untouched and in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if queue == "" {
				return fmt.Errorf("--queue is required")
			}
			if !all && class == "" {
				return fmt.Errorf("either --all or --class is required")
			}

			c, err := client.NewWithOptions(client.Options{
				RedisURL:       cfg.RedisURL,
				RedisDB:        cfg.RedisDB,
				RedisNamespace: cfg.RedisNamespace,
			})
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer func() { _ = c.Close() }()

			var predicates []rqqueue.Predicate
			if !all {
				pred := rqqueue.Predicate{Class: class, ID: id}
				if rawArgs != "" {
					if err := json.Unmarshal([]byte(rawArgs), &pred.Args); err != nil {
						return fmt.Errorf("parse --args as json object: %w", err)
					}
				}
				predicates = []rqqueue.Predicate{pred}
			}

			n, err := c.Dequeue(cmd.Context(), queue, predicates, workerID)
			if err != nil {
				return fmt.Errorf("dequeue: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "queue name to dequeue from")
	cmd.Flags().StringVar(&class, "class", "", "job class to match")
	cmd.Flags().StringVar(&id, "id", "", "narrow the match to this job id")
	cmd.Flags().StringVar(&rawArgs, "args", "", "narrow the match to this JSON object of argument fields")
	cmd.Flags().BoolVar(&all, "all", false, "drop the entire queue instead of matching by predicate")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "identify this caller in the temp-key staging (optional)")

	return cmd
}
