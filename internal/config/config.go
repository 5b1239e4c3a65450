package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/resquego/resque/internal/logger"
)

// Config holds all configuration for a worker, scheduler, or pruner process.
type Config struct {
	// RedisURL is the connection URL for Redis.
	RedisURL string
	// RedisNamespace prefixes every key this process touches.
	RedisNamespace string
	// RedisDB selects the logical Redis database.
	RedisDB int

	// Queues is the ordered list of queue name patterns a worker polls,
	// e.g. []string{"critical", "*", "!*:low"}.
	Queues []string

	// Interval is how long a worker sleeps between empty polls when not
	// blocking. Zero means process everything currently queued and exit.
	Interval time.Duration
	// Blocking selects BLPOP-style blocking pops over poll-and-sleep.
	Blocking bool

	// GracefulDelay is how long a worker waits for its child to finish
	// after the first shutdown signal before escalating.
	GracefulDelay time.Duration
	// GracefulSignal, if set, is sent to the child GracefulDelay after a TERM,
	// in place of KILL (e.g. "USR1" to let it finish the current job).
	GracefulSignal string
	// GracefulDelayTwo is the wait after the escalated signal before the
	// worker gives up and force-kills the child.
	GracefulDelayTwo time.Duration

	// ShutdownOnReserveError stops the worker if reserving a job errors
	// instead of retrying indefinitely.
	ShutdownOnReserveError bool

	// PruneInterval is how often the worker registry prunes dead workers.
	PruneInterval time.Duration

	// MetricsAddr is the listen address for the Prometheus exporter.
	// Empty disables the metrics server.
	MetricsAddr string

	// CronSchedulerInterval is the tick interval for the named-schedule
	// scheduler (see internal/schedule).
	CronSchedulerInterval time.Duration

	// Logging configuration.
	Logging *logger.Config
}

// Load reads configuration from environment variables with sensible
// defaults. cmd/resque does not call Load: it builds its Config through
// viper (flags, RESQUE_-prefixed environment variables, an optional config
// file) in internal/cli.
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisNamespace:         getEnv("REDIS_NAMESPACE", "resque:"),
		RedisDB:                getEnvAsInt("REDIS_DB", 0),
		Queues:                 getEnvAsStringSlice("QUEUES", []string{"default"}),
		Interval:               getEnvAsDuration("INTERVAL", 5*time.Second),
		Blocking:               getEnvAsBool("BLOCKING", false),
		GracefulDelay:          getEnvAsDuration("GRACEFUL_DELAY", 5*time.Second),
		GracefulSignal:         getEnv("GRACEFUL_SIGNAL", ""),
		GracefulDelayTwo:       getEnvAsDuration("GRACEFUL_DELAY_TWO", 2*time.Second),
		ShutdownOnReserveError: getEnvAsBool("SHUTDOWN_ON_RESERVE_ERROR", false),
		PruneInterval:          getEnvAsDuration("PRUNE_INTERVAL", 60*time.Second),
		MetricsAddr:            getEnv("METRICS_ADDR", ""),
		CronSchedulerInterval:  getEnvAsDuration("CRON_SCHEDULER_INTERVAL", 1*time.Second),
		Logging:                loadLoggingConfig(),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL cannot be empty")
	}
	if len(cfg.Queues) == 0 {
		return nil, fmt.Errorf("QUEUES must contain at least one queue pattern")
	}
	if cfg.GracefulSignal != "" && cfg.GracefulSignal != "USR1" && cfg.GracefulSignal != "USR2" {
		return nil, fmt.Errorf("GRACEFUL_SIGNAL must be empty, USR1 or USR2, got %q", cfg.GracefulSignal)
	}

	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// Bare integers are seconds, matching php-resque's INTERVAL env var.
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// loadLoggingConfig loads logging configuration from environment variables.
func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(format)
	}

	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", 65536)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", 100*time.Millisecond)

	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", "/var/log/resque/resque.log")
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", 10000)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", 100)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", 100*time.Millisecond)

	cfg.Elasticsearch.Enabled = getEnvAsBool("LOG_ES_ENABLED", false)
	cfg.Elasticsearch.Mode = getEnv("LOG_ES_MODE", "self-managed")
	cfg.Elasticsearch.Addresses = getEnvAsStringSlice("LOG_ES_ADDRESSES", []string{"http://localhost:9200"})
	cfg.Elasticsearch.Username = getEnv("LOG_ES_USERNAME", "")
	cfg.Elasticsearch.Password = getEnv("LOG_ES_PASSWORD", "")
	cfg.Elasticsearch.CloudID = getEnv("LOG_ES_CLOUD_ID", "")
	cfg.Elasticsearch.APIKey = getEnv("LOG_ES_API_KEY", "")
	cfg.Elasticsearch.IndexPrefix = getEnv("LOG_ES_INDEX_PREFIX", "resque-logs")
	cfg.Elasticsearch.BulkSize = getEnvAsInt("LOG_ES_BULK_SIZE", 100)
	cfg.Elasticsearch.FlushInterval = getEnvAsDuration("LOG_ES_FLUSH_INTERVAL", 5*time.Second)
	cfg.Elasticsearch.Workers = getEnvAsInt("LOG_ES_WORKERS", 2)
	cfg.Elasticsearch.MaxRetries = getEnvAsInt("LOG_ES_MAX_RETRIES", 3)
	cfg.Elasticsearch.RetryBackoff = getEnvAsDuration("LOG_ES_RETRY_BACKOFF", 1*time.Second)
	cfg.Elasticsearch.CircuitBreaker = getEnvAsBool("LOG_ES_CIRCUIT_BREAKER", true)
	cfg.Elasticsearch.FailureThreshold = getEnvAsInt("LOG_ES_FAILURE_THRESHOLD", 5)
	cfg.Elasticsearch.ResetTimeout = getEnvAsDuration("LOG_ES_RESET_TIMEOUT", 30*time.Second)

	return cfg
}
