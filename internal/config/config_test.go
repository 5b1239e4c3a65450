package config

import (
	"os"
	"testing"
	"time"
)

func clearResqueEnv() {
	os.Clearenv()
}

func TestLoad_Defaults(t *testing.T) {
	clearResqueEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.RedisNamespace != "resque:" {
		t.Errorf("expected default namespace resque:, got %s", cfg.RedisNamespace)
	}
	if len(cfg.Queues) != 1 || cfg.Queues[0] != "default" {
		t.Errorf("expected default queue list [default], got %v", cfg.Queues)
	}
	if cfg.Interval != 5*time.Second {
		t.Errorf("expected default interval 5s, got %v", cfg.Interval)
	}
	if cfg.Blocking {
		t.Error("expected blocking to default to false")
	}
	if cfg.GracefulDelay != 5*time.Second {
		t.Errorf("expected graceful delay 5s, got %v", cfg.GracefulDelay)
	}
	if cfg.GracefulDelayTwo != 2*time.Second {
		t.Errorf("expected graceful delay two 2s, got %v", cfg.GracefulDelayTwo)
	}
	if cfg.ShutdownOnReserveError {
		t.Error("expected shutdown-on-reserve-error to default to false")
	}
	if cfg.PruneInterval != 60*time.Second {
		t.Errorf("expected prune interval 60s, got %v", cfg.PruneInterval)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("expected metrics addr to default to empty, got %s", cfg.MetricsAddr)
	}
}

func TestLoad_QueuesFromEnv(t *testing.T) {
	clearResqueEnv()
	os.Setenv("QUEUES", "critical,*,!*:low")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []string{"critical", "*", "!*:low"}
	if len(cfg.Queues) != len(want) {
		t.Fatalf("expected %d queues, got %d (%v)", len(want), len(cfg.Queues), cfg.Queues)
	}
	for i, q := range want {
		if cfg.Queues[i] != q {
			t.Errorf("queue[%d] = %s, want %s", i, cfg.Queues[i], q)
		}
	}
}

func TestLoad_IntervalAcceptsBareSeconds(t *testing.T) {
	clearResqueEnv()
	os.Setenv("INTERVAL", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Interval != 10*time.Second {
		t.Errorf("expected interval 10s, got %v", cfg.Interval)
	}
}

func TestLoad_IntervalAcceptsDurationString(t *testing.T) {
	clearResqueEnv()
	os.Setenv("INTERVAL", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Interval != 500*time.Millisecond {
		t.Errorf("expected interval 500ms, got %v", cfg.Interval)
	}
}

func TestLoad_Blocking(t *testing.T) {
	clearResqueEnv()
	os.Setenv("BLOCKING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Blocking {
		t.Error("expected blocking to be true")
	}
}

func TestLoad_GracefulSignalValid(t *testing.T) {
	clearResqueEnv()
	os.Setenv("GRACEFUL_SIGNAL", "USR1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GracefulSignal != "USR1" {
		t.Errorf("expected USR1, got %s", cfg.GracefulSignal)
	}
}

func TestLoad_GracefulSignalInvalid(t *testing.T) {
	clearResqueEnv()
	os.Setenv("GRACEFUL_SIGNAL", "KILL")

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid graceful signal, got nil")
	}
}

func TestLoad_EmptyRedisURL(t *testing.T) {
	clearResqueEnv()
	os.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// Empty env var falls back to the default, it is never actually empty.
	if cfg.RedisURL == "" {
		t.Error("expected non-empty redis url even with REDIS_URL=\"\"")
	}
}

func TestLoad_MetricsAddr(t *testing.T) {
	clearResqueEnv()
	os.Setenv("METRICS_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.MetricsAddr)
	}
}

func TestLoad_LoggingDefaults(t *testing.T) {
	clearResqueEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging == nil {
		t.Fatal("expected non-nil logging config")
	}
	if !cfg.Logging.Console.Enabled {
		t.Error("expected console logging to be enabled by default")
	}
	if cfg.Logging.File.Enabled {
		t.Error("expected file logging to be disabled by default")
	}
}

func TestLoad_LoggingFromEnv(t *testing.T) {
	clearResqueEnv()
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "text")
	os.Setenv("LOG_FILE_ENABLED", "true")
	os.Setenv("LOG_FILE_PATH", "/tmp/resque.log")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected text format, got %s", cfg.Logging.Format)
	}
	if !cfg.Logging.File.Enabled {
		t.Error("expected file logging to be enabled")
	}
	if cfg.Logging.File.Path != "/tmp/resque.log" {
		t.Errorf("expected /tmp/resque.log, got %s", cfg.Logging.File.Path)
	}
}
