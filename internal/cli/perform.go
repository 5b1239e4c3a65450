package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqcreator"
	"github.com/resquego/resque/internal/rqevents"
	"github.com/resquego/resque/internal/rqfailure"
	"github.com/resquego/resque/internal/rqjob"
	"github.com/resquego/resque/internal/rqstats"
	"github.com/resquego/resque/internal/rqworker"
)

// newPerformCommand builds the hidden subcommand a worker's SelfExecForker
// re-invokes to run exactly one job, decoded from the RESQUE_JOB
// environment variable. It is never run directly by an operator.
func newPerformCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "perform",
		Short:  "Run a single job decoded from the environment (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := redisx.New(redisx.Options{URL: cfg.RedisURL, DB: cfg.RedisDB, Prefix: cfg.RedisNamespace})
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer func() { _ = a.Close() }()

			// rqcreator.NewRegistry() starts empty: a deployment registers its
			// own job classes here, mirroring whatever registrations the
			// worker command made at startup so both processes agree on the
			// same class -> constructor mapping.
			deps := rqworker.ChildDeps{
				Tracker:  rqjob.NewTracker(a),
				Stats:    rqstats.New(a),
				Failures: rqfailure.New(a),
				Events:   rqevents.NewBus(),
				Factory:  rqcreator.NewRegistry(),
			}

			code := rqworker.RunChild(cmd.Context(), deps)
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	return cmd
}
