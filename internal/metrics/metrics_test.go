package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if testutil.CollectAndCount(c.jobsStarted) != 0 {
		t.Error("expected no started-job series on a fresh collector")
	}
}

func TestRecordJobStarted(t *testing.T) {
	c := NewCollector()

	c.RecordJobStarted("default", "SendEmail")
	c.RecordJobStarted("critical", "ChargeCard")
	c.RecordJobStarted("default", "SendEmail")

	if got := testutil.ToFloat64(c.jobsStarted.WithLabelValues("default", "SendEmail")); got != 2 {
		t.Errorf("expected 2 started jobs for default/SendEmail, got %v", got)
	}
	if got := testutil.ToFloat64(c.jobsStarted.WithLabelValues("critical", "ChargeCard")); got != 1 {
		t.Errorf("expected 1 started job for critical/ChargeCard, got %v", got)
	}
}

func TestRecordJobCompleted(t *testing.T) {
	c := NewCollector()

	c.RecordJobStarted("default", "SendEmail")
	c.RecordJobCompleted("default", "SendEmail", 100*time.Millisecond)

	if got := testutil.ToFloat64(c.jobsCompleted.WithLabelValues("default", "SendEmail")); got != 1 {
		t.Errorf("expected 1 completed job, got %v", got)
	}
	if testutil.CollectAndCount(c.jobDuration) == 0 {
		t.Error("expected job duration to be observed")
	}
}

func TestRecordJobFailed(t *testing.T) {
	c := NewCollector()

	c.RecordJobStarted("default", "SendEmail")
	c.RecordJobFailed("default", "SendEmail", 50*time.Millisecond)

	if got := testutil.ToFloat64(c.jobsFailed.WithLabelValues("default", "SendEmail")); got != 1 {
		t.Errorf("expected 1 failed job, got %v", got)
	}
}

func TestRecordQueueDepth(t *testing.T) {
	c := NewCollector()

	c.RecordQueueDepth("default", 10)
	c.RecordQueueDepth("critical", 25)

	if got := testutil.ToFloat64(c.queueDepth.WithLabelValues("default")); got != 10 {
		t.Errorf("expected depth 10 for default, got %v", got)
	}
	if got := testutil.ToFloat64(c.queueDepth.WithLabelValues("critical")); got != 25 {
		t.Errorf("expected depth 25 for critical, got %v", got)
	}
}

func TestRecordWorkerActivity(t *testing.T) {
	c := NewCollector()

	c.RecordWorkerActivity(5, 10)
	if got := testutil.ToFloat64(c.workersActive); got != 5 {
		t.Errorf("expected 5 active workers, got %v", got)
	}
	if got := testutil.ToFloat64(c.workersTotal); got != 10 {
		t.Errorf("expected 10 total workers, got %v", got)
	}
}

func TestRecordScheduleFired(t *testing.T) {
	c := NewCollector()

	c.RecordScheduleFired("nightly_report")
	c.RecordScheduleFired("nightly_report")

	if got := testutil.ToFloat64(c.schedulesFired.WithLabelValues("nightly_report")); got != 2 {
		t.Errorf("expected schedule fired 2 times, got %v", got)
	}
}

func TestAddJobsProcessed(t *testing.T) {
	c := NewCollector()

	c.AddJobsProcessed(7)
	c.AddJobsProcessed(3)

	if got := testutil.ToFloat64(c.jobsCompleted.WithLabelValues("all", "all")); got != 10 {
		t.Errorf("expected 10 processed, got %v", got)
	}
}

func TestAddJobsFailedTotal(t *testing.T) {
	c := NewCollector()

	c.AddJobsFailedTotal(2)

	if got := testutil.ToFloat64(c.jobsFailed.WithLabelValues("all", "all")); got != 2 {
		t.Errorf("expected 2 failed, got %v", got)
	}
}

func TestHandlerServesPrometheusFormat(t *testing.T) {
	c := NewCollector()
	c.RecordJobStarted("default", "SendEmail")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "resque_jobs_started_total") {
		t.Error("expected exposition body to contain the started-jobs metric")
	}
}

func TestGlobalCollector(t *testing.T) {
	// Default() is a process-wide singleton; exercise it without assuming
	// a pristine state since other tests in this package may have used it.
	before := testutil.ToFloat64(Default().jobsStarted.WithLabelValues("default", "GlobalTest"))
	Default().RecordJobStarted("default", "GlobalTest")
	after := testutil.ToFloat64(Default().jobsStarted.WithLabelValues("default", "GlobalTest"))

	if after != before+1 {
		t.Errorf("expected global counter to increment by 1, got %v -> %v", before, after)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCollector()
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.RecordJobStarted("default", "ConcurrentJob")
				c.RecordJobCompleted("default", "ConcurrentJob", time.Millisecond)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if got := testutil.ToFloat64(c.jobsStarted.WithLabelValues("default", "ConcurrentJob")); got != 1000 {
		t.Errorf("expected 1000 started jobs, got %v", got)
	}
	if got := testutil.ToFloat64(c.jobsCompleted.WithLabelValues("default", "ConcurrentJob")); got != 1000 {
		t.Errorf("expected 1000 completed jobs, got %v", got)
	}
}

// Benchmarks

func BenchmarkRecordJobStarted(b *testing.B) {
	c := NewCollector()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.RecordJobStarted("default", "BenchJob")
	}
}

func BenchmarkRecordJobCompleted(b *testing.B) {
	c := NewCollector()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.RecordJobCompleted("default", "BenchJob", time.Millisecond)
	}
}

func BenchmarkConcurrentRecording(b *testing.B) {
	c := NewCollector()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.RecordJobStarted("default", "BenchJob")
			c.RecordJobCompleted("default", "BenchJob", time.Millisecond)
		}
	})
}
