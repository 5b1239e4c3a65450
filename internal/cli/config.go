package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/resquego/resque/internal/config"
	"github.com/resquego/resque/internal/logger"
)

// layeredConfig mirrors internal/config.Config's shape with mapstructure
// tags so viper can decode flags/env/file into it before translation. It
// stays a cli-local type rather than tagging Config itself: Config is also
// built from bare os.Getenv by internal/config.Load for callers that don't
// go through this CLI at all.
type layeredConfig struct {
	RedisURL               string        `mapstructure:"redis-url"`
	RedisNamespace         string        `mapstructure:"redis-namespace"`
	RedisDB                int           `mapstructure:"redis-db"`
	Queues                 []string      `mapstructure:"queues"`
	Interval               time.Duration `mapstructure:"interval"`
	Blocking               bool          `mapstructure:"blocking"`
	GracefulDelay          time.Duration `mapstructure:"graceful-delay"`
	GracefulSignal         string        `mapstructure:"graceful-signal"`
	GracefulDelayTwo       time.Duration `mapstructure:"graceful-delay-two"`
	ShutdownOnReserveError bool          `mapstructure:"shutdown-on-reserve-error"`
	PruneInterval          time.Duration `mapstructure:"prune-interval"`
	MetricsAddr            string        `mapstructure:"metrics-addr"`
	CronSchedulerInterval  time.Duration `mapstructure:"cron-scheduler-interval"`
	LogLevel               string        `mapstructure:"log-level"`
	LogFormat              string        `mapstructure:"log-format"`
}

func setLayeredDefaults(v *viper.Viper) {
	v.SetDefault("redis-url", "redis://localhost:6379")
	v.SetDefault("redis-namespace", "resque:")
	v.SetDefault("redis-db", 0)
	v.SetDefault("queues", []string{"default"})
	v.SetDefault("interval", 5*time.Second)
	v.SetDefault("blocking", false)
	v.SetDefault("graceful-delay", 5*time.Second)
	v.SetDefault("graceful-signal", "")
	v.SetDefault("graceful-delay-two", 2*time.Second)
	v.SetDefault("shutdown-on-reserve-error", false)
	v.SetDefault("prune-interval", 60*time.Second)
	v.SetDefault("metrics-addr", "")
	v.SetDefault("cron-scheduler-interval", 1*time.Second)
	v.SetDefault("log-level", string(logger.LevelInfo))
	v.SetDefault("log-format", string(logger.FormatJSON))
}

// loadConfig layers cmd's flags over RESQUE_*-prefixed environment
// variables over an optional config file over the defaults above, then
// translates the result into an internal/config.Config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	setLayeredDefaults(v)

	v.SetEnvPrefix("RESQUE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	if cmd.Parent() != nil {
		if err := v.BindPFlags(cmd.Parent().PersistentFlags()); err != nil {
			return nil, fmt.Errorf("bind persistent flags: %w", err)
		}
	}

	var lc layeredConfig
	if err := v.Unmarshal(&lc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.LogLevel(lc.LogLevel)
	logCfg.Format = logger.LogFormat(lc.LogFormat)
	if err := logCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	cfg := &config.Config{
		RedisURL:               lc.RedisURL,
		RedisNamespace:         lc.RedisNamespace,
		RedisDB:                lc.RedisDB,
		Queues:                 lc.Queues,
		Interval:               lc.Interval,
		Blocking:               lc.Blocking,
		GracefulDelay:          lc.GracefulDelay,
		GracefulSignal:         lc.GracefulSignal,
		GracefulDelayTwo:       lc.GracefulDelayTwo,
		ShutdownOnReserveError: lc.ShutdownOnReserveError,
		PruneInterval:          lc.PruneInterval,
		MetricsAddr:            lc.MetricsAddr,
		CronSchedulerInterval:  lc.CronSchedulerInterval,
		Logging:                logCfg,
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis-url cannot be empty")
	}
	if len(cfg.Queues) == 0 {
		return nil, fmt.Errorf("queues must contain at least one queue pattern")
	}
	if cfg.GracefulSignal != "" && cfg.GracefulSignal != "USR1" && cfg.GracefulSignal != "USR2" {
		return nil, fmt.Errorf("graceful-signal must be empty, USR1 or USR2, got %q", cfg.GracefulSignal)
	}

	return cfg, nil
}
