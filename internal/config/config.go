// Package config loads the configuration source of spec.md §6 via
// viper, adapted from go-coffee's pkg/config/enhanced.go (EnhancedConfig).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// SLODefaults mirrors spec.md §6's slo_defaults.* keys.
type SLODefaults struct {
	MaxPickupTimeSeconds int `mapstructure:"max_pickup_time_seconds"`
	MinWorkers           int `mapstructure:"min_workers"`
	MaxWorkers           int `mapstructure:"max_workers"`
	ScaleCooldownSeconds int `mapstructure:"scale_cooldown_seconds"`
}

// Prediction mirrors spec.md §6's prediction.* keys.
type Prediction struct {
	BreachThreshold float64 `mapstructure:"breach_threshold"`
	TrendBufferUp   float64 `mapstructure:"trend_buffer_up"`
	TrendBufferDown float64 `mapstructure:"trend_buffer_down"`
}

// Limits mirrors spec.md §6's limits.* keys.
type Limits struct {
	MaxCPUPercent          int `mapstructure:"max_cpu_percent"`
	MaxMemoryPercent       int `mapstructure:"max_memory_percent"`
	WorkerMemoryMBEstimate int `mapstructure:"worker_memory_mb_estimate"`
	ReserveCPUCores        int `mapstructure:"reserve_cpu_cores"`
}

// Workers mirrors spec.md §6's workers.* keys.
type Workers struct {
	RuntimeBinary string `mapstructure:"runtime_binary"`
	Subcommand    string `mapstructure:"subcommand"`
	Tries         int    `mapstructure:"tries"`
	TimeoutSeconds int   `mapstructure:"timeout_seconds"`
	SleepSeconds  int    `mapstructure:"sleep_seconds"`
}

// QueueOverride is one entry of spec.md §6's queues[].
type QueueOverride struct {
	Connection           string  `mapstructure:"connection"`
	Queue                string  `mapstructure:"queue"`
	SLOPickupSeconds     int     `mapstructure:"slo_pickup_seconds"`
	MinWorkers           int     `mapstructure:"min_workers"`
	MaxWorkers           int     `mapstructure:"max_workers"`
	CooldownSeconds      int     `mapstructure:"cooldown_seconds"`
	BreachThreshold      float64 `mapstructure:"breach_threshold"`
}

// Key builds the queue.Key this override applies to.
func (o QueueOverride) Key() queue.Key {
	return queue.NewKey(o.Connection, o.Queue)
}

// ToQueueConfig converts the override into a queue.Config.
func (o QueueOverride) ToQueueConfig() queue.Config {
	return queue.Config{
		SLOPickupSeconds: o.SLOPickupSeconds,
		MinWorkers:       o.MinWorkers,
		MaxWorkers:       o.MaxWorkers,
		CooldownSeconds:  o.CooldownSeconds,
		BreachThreshold:  o.BreachThreshold,
	}
}

// Redis configures the metrics source backend.
type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Kafka configures the event publisher backend.
type Kafka struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryAttempts int      `mapstructure:"retry_attempts"`
	RetryDelaySeconds int  `mapstructure:"retry_delay_seconds"`
}

// Config is the fully parsed configuration source.
type Config struct {
	EvaluationIntervalSeconds int             `mapstructure:"evaluation_interval_seconds"`
	ShutdownTimeoutSeconds    int             `mapstructure:"shutdown_timeout_seconds"`
	SLODefaults               SLODefaults     `mapstructure:"slo_defaults"`
	Prediction                Prediction      `mapstructure:"prediction"`
	Limits                    Limits          `mapstructure:"limits"`
	Workers                   Workers         `mapstructure:"workers"`
	Queues                    []QueueOverride `mapstructure:"queues"`
	Strategy                  string          `mapstructure:"strategy"`
	Policies                  []string        `mapstructure:"policies"`
	Redis                     Redis           `mapstructure:"redis"`
	Kafka                     Kafka           `mapstructure:"kafka"`
	Environment               string          `mapstructure:"environment"`
}

// EvaluationInterval returns the tick period as a time.Duration.
func (c Config) EvaluationInterval() time.Duration {
	return time.Duration(c.EvaluationIntervalSeconds) * time.Second
}

// ShutdownTimeout returns the graceful termination window.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Options controls how Load locates and watches the config file,
// mirroring go-coffee's ConfigOptions.
type Options struct {
	ConfigName   string
	ConfigPaths  []string
	ConfigType   string
	EnvPrefix    string
	Logger       *zap.Logger
	OnChange     func(Config)
}

// DefaultOptions matches go-coffee's DefaultConfigOptions shape.
func DefaultOptions() Options {
	return Options{
		ConfigName:  "autoscaler",
		ConfigPaths: []string{".", "./config", "./configs"},
		ConfigType:  "yaml",
		EnvPrefix:   "AUTOSCALER",
	}
}

// Load reads configuration from file + environment via viper, applies
// defaults, validates, and optionally watches for live reload.
func Load(opts Options) (Config, error) {
	v := viper.New()
	v.SetConfigName(opts.ConfigName)
	v.SetConfigType(opts.ConfigType)
	for _, p := range opts.ConfigPaths {
		v.AddConfigPath(p)
	}
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if opts.Logger != nil {
			opts.Logger.Info("no config file found, using defaults and environment")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	if opts.OnChange != nil {
		v.WatchConfig()
		v.OnConfigChange(func(_ fsnotify.Event) {
			var reloaded Config
			if err := v.Unmarshal(&reloaded); err != nil {
				if opts.Logger != nil {
					opts.Logger.Warn("config reload failed, keeping previous config", zap.Error(err))
				}
				return
			}
			if err := Validate(reloaded); err != nil {
				if opts.Logger != nil {
					opts.Logger.Warn("reloaded config failed validation, keeping previous config", zap.Error(err))
				}
				return
			}
			opts.OnChange(reloaded)
		})
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("evaluation_interval_seconds", 5)
	v.SetDefault("shutdown_timeout_seconds", 30)
	v.SetDefault("environment", "production")

	v.SetDefault("slo_defaults.max_pickup_time_seconds", 30)
	v.SetDefault("slo_defaults.min_workers", 1)
	v.SetDefault("slo_defaults.max_workers", 10)
	v.SetDefault("slo_defaults.scale_cooldown_seconds", 60)

	v.SetDefault("prediction.breach_threshold", 0.8)
	v.SetDefault("prediction.trend_buffer_up", 1.2)
	v.SetDefault("prediction.trend_buffer_down", 0.9)

	v.SetDefault("limits.max_cpu_percent", 85)
	v.SetDefault("limits.max_memory_percent", 85)
	v.SetDefault("limits.worker_memory_mb_estimate", 128)
	v.SetDefault("limits.reserve_cpu_cores", 1)

	v.SetDefault("workers.runtime_binary", "worker")
	v.SetDefault("workers.subcommand", "queue:work")
	v.SetDefault("workers.tries", 3)
	v.SetDefault("workers.timeout_seconds", 60)
	v.SetDefault("workers.sleep_seconds", 3)

	v.SetDefault("strategy", "hybrid_predictive")
	v.SetDefault("policies", []string{"conservative_scale_down", "breach_notification"})

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.key_prefix", "queues:")

	v.SetDefault("kafka.topic", "autoscaler.events")
	v.SetDefault("kafka.retry_attempts", 3)
	v.SetDefault("kafka.retry_delay_seconds", 1)
}

// Validate checks the parts of configuration whose failure is fatal
// at startup (spec.md §7).
func Validate(c Config) error {
	if c.EvaluationIntervalSeconds <= 0 {
		return fmt.Errorf("evaluation_interval_seconds must be positive")
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("shutdown_timeout_seconds must be positive")
	}
	if c.Prediction.BreachThreshold <= 0 || c.Prediction.BreachThreshold > 1 {
		return fmt.Errorf("prediction.breach_threshold must be in (0, 1]")
	}
	defaults := queue.Config{
		SLOPickupSeconds: c.SLODefaults.MaxPickupTimeSeconds,
		MinWorkers:       c.SLODefaults.MinWorkers,
		MaxWorkers:       c.SLODefaults.MaxWorkers,
		CooldownSeconds:  c.SLODefaults.ScaleCooldownSeconds,
		BreachThreshold:  c.Prediction.BreachThreshold,
	}
	if err := defaults.Validate(); err != nil {
		return fmt.Errorf("slo_defaults invalid: %w", err)
	}
	seen := make(map[queue.Key]bool)
	for _, qo := range c.Queues {
		if qo.Connection == "" || qo.Queue == "" {
			return fmt.Errorf("queues[] entry missing connection or queue name")
		}
		key := qo.Key()
		if seen[key] {
			return fmt.Errorf("duplicate queue override for %s", key)
		}
		seen[key] = true
	}
	return nil
}

// QueueConfigFor resolves the effective queue.Config for a key,
// applying any matching override on top of slo_defaults.
func (c Config) QueueConfigFor(key queue.Key) queue.Config {
	defaults := queue.Config{
		SLOPickupSeconds: c.SLODefaults.MaxPickupTimeSeconds,
		MinWorkers:       c.SLODefaults.MinWorkers,
		MaxWorkers:       c.SLODefaults.MaxWorkers,
		CooldownSeconds:  c.SLODefaults.ScaleCooldownSeconds,
		BreachThreshold:  c.Prediction.BreachThreshold,
	}
	for _, qo := range c.Queues {
		if qo.Key() == key {
			return qo.ToQueueConfig().WithDefaults(defaults)
		}
	}
	return defaults
}

// AllQueueKeys returns every queue named in configuration.
func (c Config) AllQueueKeys() []queue.Key {
	keys := make([]queue.Key, 0, len(c.Queues))
	for _, qo := range c.Queues {
		keys = append(keys, qo.Key())
	}
	return keys
}
