package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"

	"github.com/DimaJoyti/queue-autoscaler/internal/apperrors"
	"github.com/DimaJoyti/queue-autoscaler/internal/autoscaler"
	"github.com/DimaJoyti/queue-autoscaler/internal/calc"
	"github.com/DimaJoyti/queue-autoscaler/internal/config"
	"github.com/DimaJoyti/queue-autoscaler/internal/engine"
	"github.com/DimaJoyti/queue-autoscaler/internal/estimator"
	"github.com/DimaJoyti/queue-autoscaler/internal/events"
	"github.com/DimaJoyti/queue-autoscaler/internal/metrics"
	"github.com/DimaJoyti/queue-autoscaler/internal/policy"
	"github.com/DimaJoyti/queue-autoscaler/internal/strategy"
	"github.com/DimaJoyti/queue-autoscaler/internal/telemetry"
	"github.com/DimaJoyti/queue-autoscaler/internal/worker"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	cfgFile     string
	metricsAddr string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "autoscaler",
		Short: "Predictive queue worker autoscaler",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "autoscaler", "config file name (without extension)")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")

	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateConfigCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("autoscaler %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}

func newValidateConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.DefaultOptions()
			opts.ConfigName = cfgFile
			cfg, err := config.Load(opts)
			if err != nil {
				return err
			}
			fmt.Printf("configuration valid: %d queue override(s), strategy=%s\n", len(cfg.Queues), cfg.Strategy)
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the autoscaler control loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutoscaler()
		},
	}
}

func runAutoscaler() error {
	bootLogger, err := newLogger("production")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGUSR2 is watched on a separate channel, distinct from the
	// process-wide shutdown signals above (spec.md §4.10). Receiving it
	// only logs a message; worker processes are not restarted.
	usr2 := make(chan os.Signal, 1)
	signal.Notify(usr2, syscall.SIGUSR2)
	defer signal.Stop(usr2)

	opts := config.DefaultOptions()
	opts.ConfigName = cfgFile
	opts.Logger = bootLogger

	cfg, err := config.Load(opts)
	if err != nil {
		appErr := apperrors.New(apperrors.KindConfigInvalid, "failed to load configuration", err)
		bootLogger.Error(appErr.Error())
		_ = bootLogger.Sync()
		return appErr
	}

	// Rebuild the logger once the environment is known: development
	// gets human-readable console output, production gets JSON.
	logger, err := newLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	tel := telemetry.New(reg)
	go serveMetrics(logger, reg)

	source, err := buildMetricsSource(cfg, logger)
	if err != nil {
		return fmt.Errorf("build metrics source: %w", err)
	}

	publisher := buildPublisher(cfg, logger)

	est := estimator.New()
	strat := strategy.New(strategy.Kind(cfg.Strategy), strategy.DefaultConfig())
	limits := calc.Limits{
		MaxCPUPercent:          float64(cfg.Limits.MaxCPUPercent),
		MaxMemoryPercent:       float64(cfg.Limits.MaxMemoryPercent),
		WorkerMemoryEstimateMB: float64(cfg.Limits.WorkerMemoryMBEstimate),
		ReserveCPUCores:        cfg.Limits.ReserveCPUCores,
	}
	eng := engine.New(strat, calc.GopsutilProbe{}, limits)

	policies := buildPolicies(cfg.Policies, publisher)
	pipeline := policy.New(logger, policies)

	pool := worker.NewPool()
	spawner := worker.NewSpawner(worker.Options{
		RuntimeBinary: cfg.Workers.RuntimeBinary,
		Subcommand:    cfg.Workers.Subcommand,
		Tries:         cfg.Workers.Tries,
		MaxTime:       cfg.Workers.TimeoutSeconds,
		Sleep:         cfg.Workers.SleepSeconds,
	}, logger)
	terminator := worker.NewTerminator(cfg.ShutdownTimeout(), logger)

	mgr := autoscaler.New(logger, cfg, source, est, eng, pipeline, pool, spawner, terminator, publisher, tel)

	go watchRestartSignal(ctx, usr2, logger)

	return mgr.Run(ctx)
}

func watchRestartSignal(ctx context.Context, usr2 <-chan os.Signal, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-usr2:
			logger.Info("received SIGUSR2, graceful worker restart is not yet wired to a running pool reload")
		}
	}
}

func serveMetrics(logger *zap.Logger, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

func buildMetricsSource(cfg config.Config, logger *zap.Logger) (metrics.Source, error) {
	keys := cfg.AllQueueKeys()
	src, err := metrics.NewRedisSource(metrics.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, keys)
	if err != nil {
		return nil, apperrors.New(apperrors.KindMetricsFetch, "connect to redis metrics source", err)
	}
	logger.Info("metrics source connected", zap.String("addr", cfg.Redis.Addr), zap.Int("queues", len(keys)))
	return src, nil
}

func buildPublisher(cfg config.Config, logger *zap.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("no kafka brokers configured, events will be logged only")
		return events.NewLogPublisher(logger)
	}
	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		RetryAttempts: cfg.Kafka.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Kafka.RetryDelaySeconds) * time.Second,
	})
}

func buildPolicies(names []string, publisher events.Publisher) []policy.Policy {
	policies := make([]policy.Policy, 0, len(names))
	for _, name := range names {
		switch name {
		case "conservative_scale_down":
			policies = append(policies, policy.ConservativeScaleDown{})
		case "aggressive_scale_down":
			policies = append(policies, policy.AggressiveScaleDown{})
		case "no_scale_down":
			policies = append(policies, policy.NoScaleDown{})
		case "breach_notification":
			policies = append(policies, policy.BreachNotification{Publisher: publisher})
		}
	}
	return policies
}

// newLogger selects zap's production or development config by the
// configured environment, matching the ambient logging stack
// SPEC_FULL.md describes.
func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
