package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every Prometheus metric the worker and scheduler
// processes export, backed by its own registry so a process can run
// several independent collectors (tests, multiple queues) side by side.
type Collector struct {
	registry *prometheus.Registry

	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec

	queueDepth *prometheus.GaugeVec

	workersActive prometheus.Gauge
	workersTotal  prometheus.Gauge

	schedulesFired *prometheus.CounterVec
}

// Default returns the global collector instance, created on first use.
var (
	globalCollector *Collector
	once            sync.Once
)

func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector builds a Collector with a fresh Prometheus registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{registry: registry}

	c.jobsStarted = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "resque_jobs_started_total",
			Help: "Total number of jobs a worker began processing.",
		},
		[]string{"queue", "class"},
	)

	c.jobsCompleted = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "resque_jobs_completed_total",
			Help: "Total number of jobs that completed without error.",
		},
		[]string{"queue", "class"},
	)

	c.jobsFailed = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "resque_jobs_failed_total",
			Help: "Total number of jobs that raised an error or panicked.",
		},
		[]string{"queue", "class"},
	)

	c.jobDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resque_job_duration_seconds",
			Help:    "Job execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue", "class"},
	)

	c.queueDepth = promauto.With(registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resque_queue_depth",
			Help: "Number of jobs currently waiting in a queue.",
		},
		[]string{"queue"},
	)

	c.workersActive = promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "resque_workers_active",
			Help: "Number of workers currently processing a job.",
		},
	)

	c.workersTotal = promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "resque_workers_total",
			Help: "Number of workers registered in the worker pool.",
		},
	)

	c.schedulesFired = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "resque_schedules_fired_total",
			Help: "Total number of times a named cron schedule fired.",
		},
		[]string{"schedule"},
	)

	return c
}

// Handler returns the HTTP handler that serves this collector's registry
// in the Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordJobStarted increments the started counter for queue/class.
func (c *Collector) RecordJobStarted(queue, class string) {
	c.jobsStarted.WithLabelValues(queue, class).Inc()
}

// RecordJobCompleted increments the completed counter and observes duration.
func (c *Collector) RecordJobCompleted(queue, class string, duration time.Duration) {
	c.jobsCompleted.WithLabelValues(queue, class).Inc()
	c.jobDuration.WithLabelValues(queue, class).Observe(duration.Seconds())
}

// RecordJobFailed increments the failed counter and observes duration.
func (c *Collector) RecordJobFailed(queue, class string, duration time.Duration) {
	c.jobsFailed.WithLabelValues(queue, class).Inc()
	c.jobDuration.WithLabelValues(queue, class).Observe(duration.Seconds())
}

// RecordQueueDepth sets the current depth gauge for a queue.
func (c *Collector) RecordQueueDepth(queue string, depth int64) {
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordWorkerActivity sets the active/total worker gauges.
func (c *Collector) RecordWorkerActivity(active, total int64) {
	c.workersActive.Set(float64(active))
	c.workersTotal.Set(float64(total))
}

// RecordScheduleFired increments the fire counter for a named schedule.
func (c *Collector) RecordScheduleFired(scheduleID string) {
	c.schedulesFired.WithLabelValues(scheduleID).Inc()
}

// AddJobsProcessed adds n completions under the "all" queue/class labels.
// Used where a caller only has a process-wide cumulative counter (such as
// internal/rqstats's "processed" key) rather than a per-job observation, so
// per-queue/class breakdown isn't available.
func (c *Collector) AddJobsProcessed(n int64) {
	c.jobsCompleted.WithLabelValues("all", "all").Add(float64(n))
}

// AddJobsFailedTotal adds n failures under the "all" queue/class labels, for
// the same process-wide-counter case as AddJobsProcessed.
func (c *Collector) AddJobsFailedTotal(n int64) {
	c.jobsFailed.WithLabelValues("all", "all").Add(float64(n))
}

// Handler returns the HTTP handler for the global collector.
func Handler() http.Handler {
	return Default().Handler()
}
