package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/resquego/resque/internal/logger"
	"github.com/resquego/resque/internal/metrics"
	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqcreator"
	"github.com/resquego/resque/internal/rqevents"
	"github.com/resquego/resque/internal/rqfailure"
	"github.com/resquego/resque/internal/rqjob"
	"github.com/resquego/resque/internal/rqqueue"
	"github.com/resquego/resque/internal/rqregistry"
	"github.com/resquego/resque/internal/rqresolver"
	"github.com/resquego/resque/internal/rqstats"
	"github.com/resquego/resque/internal/rqworker"
)

func newWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Poll one or more queues and fork a child process per job",
		Long: `worker registers itself in the live worker registry, reserves jobs from
the configured queue patterns, and forks one child process per job (the
hidden "perform" subcommand) to run it to completion before reserving the
next one.`,
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
			workerLog := log.WithComponent(logger.ComponentWorker).WithSource(logger.LogSourceInternal)

			a, err := redisx.New(redisx.Options{URL: cfg.RedisURL, DB: cfg.RedisDB, Prefix: cfg.RedisNamespace})
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer func() { _ = a.Close() }()

			q := rqqueue.New(a)
			registry := rqregistry.New(a)
			stats := rqstats.New(a)
			forker, err := rqworker.NewSelfExecForker("perform")
			if err != nil {
				return fmt.Errorf("build self-exec forker: %w", err)
			}

			// rqcreator.NewRegistry() starts empty here too: the worker process
			// only needs a Factory to satisfy rqworker.Deps, since reservation
			// and forking don't touch job classes directly. The hidden perform
			// subcommand is where a real deployment's registrations matter.
			deps := rqworker.Deps{
				Redis:    a,
				Queue:    q,
				Resolver: rqresolver.New(q),
				Registry: registry,
				Tracker:  rqjob.NewTracker(a),
				Stats:    stats,
				Failures: rqfailure.New(a),
				Events:   rqevents.NewBus(),
				Factory:  rqcreator.NewRegistry(),
				Forker:   forker,
				Logger:   workerLog,
			}

			w := rqworker.New(cfg.Queues, "", 0, rqworker.Config{
				Interval:               cfg.Interval,
				Blocking:               cfg.Blocking,
				GracefulDelay:          cfg.GracefulDelay,
				GracefulSignal:         cfg.GracefulSignal,
				GracefulDelayTwo:       cfg.GracefulDelayTwo,
				ShutdownOnReserveError: cfg.ShutdownOnReserveError,
				PruneInterval:          cfg.PruneInterval,
			}, deps)

			if cfg.MetricsAddr != "" {
				collector := metrics.Default()
				go serveMetrics(cfg.MetricsAddr, collector, workerLog)
				go reportMetrics(cmd.Context(), q, registry, stats, cfg.Queues, collector)
			}

			workerLog.Info("worker starting", "queues", cfg.Queues, "blocking", cfg.Blocking)
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().StringSlice("queues", nil, "queue name patterns to poll, in priority order")
	cmd.Flags().Duration("interval", 0, "sleep between empty polls when not blocking")
	cmd.Flags().Bool("blocking", false, "use BLPOP-based reservation instead of poll-and-sleep")
	cmd.Flags().Duration("graceful-delay", 0, "wait after TERM before escalating")
	cmd.Flags().String("graceful-signal", "", "signal sent to a running child before KILL (USR1 or USR2)")
	cmd.Flags().Duration("graceful-delay-two", 0, "wait after the graceful signal before KILL")
	cmd.Flags().Bool("shutdown-on-reserve-error", false, "exit instead of retrying when reservation fails")
	cmd.Flags().Duration("prune-interval", 0, "how often to prune dead workers from the registry")
	cmd.Flags().String("metrics-addr", "", "listen address for the Prometheus /metrics endpoint")

	return cmd
}

func serveMetrics(addr string, collector *metrics.Collector, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("metrics server listening", "address", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server failed", "error", err)
	}
}

// reportMetrics polls queue depths, live worker counts, and the
// rqstats processed/failed counters every five seconds, converting
// cumulative Redis counters into the deltas Prometheus counters expect.
// Per-job start/complete/fail observations aren't available here: they
// happen inside the forked child's own short-lived process, which exits
// before any scrape could read them.
func reportMetrics(ctx context.Context, q *rqqueue.Queue, registry *rqregistry.Registry, stats *rqstats.Stats, queues []string, collector *metrics.Collector) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastProcessed, lastFailed int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range queues {
				if depth, err := q.Size(ctx, name); err == nil {
					collector.RecordQueueDepth(name, depth)
				}
			}
			if ids, err := registry.IDs(ctx); err == nil {
				var active int64
				for _, id := range ids {
					if wp, err := registry.Working(ctx, id); err == nil && wp != nil {
						active++
					}
				}
				collector.RecordWorkerActivity(active, int64(len(ids)))
			}
			if processed, err := stats.Get(ctx, "processed"); err == nil && processed > lastProcessed {
				collector.AddJobsProcessed(processed - lastProcessed)
				lastProcessed = processed
			}
			if failed, err := stats.Get(ctx, "failed"); err == nil && failed > lastFailed {
				collector.AddJobsFailedTotal(failed - lastFailed)
				lastFailed = failed
			}
		}
	}
}
