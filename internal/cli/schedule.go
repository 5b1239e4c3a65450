package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/resquego/resque/internal/delayed"
	"github.com/resquego/resque/internal/logger"
	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqqueue"
	"github.com/resquego/resque/internal/schedule"
)

func newScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Promote delayed jobs and fire named cron schedules",
		Long: `schedule runs two loops in the same process: the delayed-job promoter,
which moves jobs from the _schdlr_ sorted set onto their target queue once
due, and the named-schedule cron loop, which calls the promoter's own
EnqueueAt with the current time for each registered schedule that has
fallen due. Register
schedules by editing the Registry built in this command before deploying.`,
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
			schedLog := log.WithComponent(logger.ComponentScheduler).WithSource(logger.LogSourceInternal)

			a, err := redisx.New(redisx.Options{URL: cfg.RedisURL, DB: cfg.RedisDB, Prefix: cfg.RedisNamespace})
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer func() { _ = a.Close() }()

			q := rqqueue.New(a)
			delayedScheduler := delayed.New(a, q)
			promoter := delayed.NewPromoter(delayedScheduler, cfg.Interval)

			// registry starts empty: a deployment calls registry.MustRegister
			// here for each named cron schedule it wants this process to own.
			registry := schedule.NewRegistry()
			cronScheduler := schedule.NewCronScheduler(registry, delayedScheduler, a, cfg.CronSchedulerInterval, schedLog)

			schedLog.Info("scheduler starting", "promote_interval", cfg.Interval, "cron_interval", cfg.CronSchedulerInterval, "schedules", registry.Count())

			group, ctx := errgroup.WithContext(cmd.Context())
			group.Go(func() error {
				return promoter.Run(ctx)
			})
			group.Go(func() error {
				cronScheduler.Start(ctx)
				return nil
			})
			return group.Wait()
		},
	}

	cmd.Flags().Duration("interval", 0, "poll interval for promoting due delayed jobs")
	cmd.Flags().Duration("cron-scheduler-interval", 0, "tick interval for named cron schedules")

	return cmd
}
