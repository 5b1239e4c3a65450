package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/resquego/resque/pkg/client"
)

func newEnqueueCommand() *cobra.Command {
	var (
		queue  string
		class  string
		rawArg string
		jobID  string
		atFlag string
		inFlag time.Duration
		track  bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Push a job onto a queue, optionally scheduled for later",
		Long: `enqueue is a thin wrapper around the producer client: it builds a job
envelope for --class with the JSON value of --arg and pushes it onto
--queue, immediately, at an absolute time (--at, RFC3339), or after a
delay (--in). --id forces a specific job id instead of a generated random id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if queue == "" || class == "" {
				return fmt.Errorf("--queue and --class are required")
			}

			var arg interface{}
			if rawArg != "" {
				if err := json.Unmarshal([]byte(rawArg), &arg); err != nil {
					return fmt.Errorf("parse --arg as json: %w", err)
				}
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

			ctx := cmd.Context()

			switch {
			case atFlag != "" && inFlag > 0:
				return fmt.Errorf("only one of --at or --in may be set")

			case atFlag != "":
				at, err := time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return fmt.Errorf("parse --at as RFC3339: %w", err)
				}
				id, err := c.EnqueueAt(ctx, at, queue, class, arg, track)
				if err != nil {
					return fmt.Errorf("enqueue at %s: %w", at, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)

			case inFlag > 0:
				id, err := c.EnqueueIn(ctx, inFlag, queue, class, arg, track)
				if err != nil {
					return fmt.Errorf("enqueue in %s: %w", inFlag, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)

			case jobID != "":
				if err := c.EnqueueWithID(ctx, queue, class, jobID, arg, track); err != nil {
					return fmt.Errorf("enqueue with id %s: %w", jobID, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), jobID)

			default:
				id, err := c.Enqueue(ctx, queue, class, arg, track)
				if err != nil {
					return fmt.Errorf("enqueue: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "target queue name")
	cmd.Flags().StringVar(&class, "class", "", "job class name")
	cmd.Flags().StringVar(&rawArg, "arg", "", "job argument as a JSON value")
	cmd.Flags().StringVar(&jobID, "id", "", "explicit job id instead of a generated one")
	cmd.Flags().StringVar(&atFlag, "at", "", "schedule for this absolute RFC3339 time instead of running immediately")
	cmd.Flags().DurationVar(&inFlag, "in", 0, "schedule after this delay instead of running immediately")
	cmd.Flags().BoolVar(&track, "track", true, "create a status record for this job (trackStatus)")

	return cmd
}
