package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/resquego/resque/internal/logger"
	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqregistry"
)

func newPruneCommand() *cobra.Command {
	var once bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove dead worker registrations from the registry",
		Long: `prune compares registered worker ids against this host's live process
table and deletes any registry entry whose pid is no longer running. By
default it loops on --interval; pass --once to prune a single time and exit,
which is the shape a cron-driven deployment typically wants instead of a
long-running process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log, err := logger.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = log.Close() }()
			logger.SetDefault(log)
			pruneLog := log.WithComponent(logger.ComponentRegistry).WithSource(logger.LogSourceInternal)

			a, err := redisx.New(redisx.Options{URL: cfg.RedisURL, DB: cfg.RedisDB, Prefix: cfg.RedisNamespace})
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer func() { _ = a.Close() }()

			registry := rqregistry.New(a)
			hostname := rqregistry.Hostname()
			selfPID := os.Getpid()

			if interval <= 0 {
				interval = cfg.PruneInterval
			}

			runOnce := func() error {
				pruned, err := registry.Prune(cmd.Context(), hostname, selfPID, rqregistry.ProcessTablePIDs)
				if err != nil {
					pruneLog.Error("prune failed", "error", err)
					return err
				}
				if len(pruned) > 0 {
					pruneLog.Info("pruned dead workers", "count", len(pruned), "ids", pruned)
				} else {
					pruneLog.Debug("no dead workers found")
				}
				return nil
			}

			if once {
				return runOnce()
			}

			pruneLog.Info("prune loop starting", "interval", interval)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
					if err := runOnce(); err != nil {
						pruneLog.Warn("continuing after prune error", "error", err)
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "prune a single time and exit instead of looping")
	cmd.Flags().DurationVar(&interval, "interval", 0, "interval between prune passes (defaults to the worker's prune-interval)")

	return cmd
}
