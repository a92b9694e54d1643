package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DimaJoyti/queue-autoscaler/internal/calc"
	"github.com/DimaJoyti/queue-autoscaler/internal/engine"
	"github.com/DimaJoyti/queue-autoscaler/internal/estimator"
	"github.com/DimaJoyti/queue-autoscaler/internal/metrics"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
	"github.com/DimaJoyti/queue-autoscaler/internal/strategy"
)

type fixedProbe struct {
	cpuPct, totalMB, availMB float64
	cores                    int
}

func (f fixedProbe) CPUPercent(context.Context) (float64, error) { return f.cpuPct, nil }
func (f fixedProbe) TotalCores() (int, error)                    { return f.cores, nil }
func (f fixedProbe) MemoryMB(context.Context) (float64, float64, error) {
	return f.totalMB, f.availMB, nil
}

func TestEngineEvaluate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := queue.NewKey("redis", "emails")
	strat := strategy.New(strategy.KindHybridPredictive, strategy.DefaultConfig())
	limits := calc.Limits{MaxCPUPercent: 90, MaxMemoryPercent: 90, WorkerMemoryEstimateMB: 128, ReserveCPUCores: 0}

	t.Run("target is clamped to configured max_workers", func(t *testing.T) {
		probe := fixedProbe{cpuPct: 0, cores: 64, totalMB: 64000, availMB: 64000}
		eng := engine.New(strat, probe, limits)
		snap := metrics.Snapshot{Key: key, Pending: 10000, OldestPendingAge: 600 * time.Second}
		qc := queue.Config{SLOPickupSeconds: 30, MinWorkers: 0, MaxWorkers: 5, CooldownSeconds: 60, BreachThreshold: 0.8}

		decision := eng.Evaluate(context.Background(), estimator.New(), now, snap, qc, 0)
		assert.Equal(t, 5, decision.TargetWorkers)
		assert.Equal(t, calc.LimitConfig, decision.Capacity.LimitingFactor)
	})

	t.Run("target never drops below configured min_workers", func(t *testing.T) {
		probe := fixedProbe{cpuPct: 0, cores: 64, totalMB: 64000, availMB: 64000}
		eng := engine.New(strat, probe, limits)
		snap := metrics.Snapshot{Key: key}
		qc := queue.Config{SLOPickupSeconds: 30, MinWorkers: 2, MaxWorkers: 10, CooldownSeconds: 60, BreachThreshold: 0.8}

		decision := eng.Evaluate(context.Background(), estimator.New(), now, snap, qc, 2)
		assert.Equal(t, 2, decision.TargetWorkers)
		assert.Equal(t, engine.ActionHold, decision.Action())
	})

	t.Run("a failing probe still yields a bounded, never-negative decision", func(t *testing.T) {
		eng := engine.New(strat, failingProbe{}, limits)
		snap := metrics.Snapshot{Key: key, Pending: 50, OldestPendingAge: 40 * time.Second}
		qc := queue.Config{SLOPickupSeconds: 30, MinWorkers: 0, MaxWorkers: 10, CooldownSeconds: 60, BreachThreshold: 0.8}

		decision := eng.Evaluate(context.Background(), estimator.New(), now, snap, qc, 0)
		assert.GreaterOrEqual(t, decision.TargetWorkers, 0)
		assert.LessOrEqual(t, decision.TargetWorkers, 4)
	})

	t.Run("evaluate is idempotent for identical inputs", func(t *testing.T) {
		probe := fixedProbe{cpuPct: 20, cores: 16, totalMB: 16000, availMB: 12000}
		eng := engine.New(strat, probe, limits)
		snap := metrics.Snapshot{Key: key, Pending: 40, ActiveWorkers: 2, ThroughputPerMin: 60, OldestPendingAge: 5 * time.Second}
		qc := queue.Config{SLOPickupSeconds: 30, MinWorkers: 0, MaxWorkers: 10, CooldownSeconds: 60, BreachThreshold: 0.8}

		first := eng.Evaluate(context.Background(), estimator.New(), now, snap, qc, 2)
		second := eng.Evaluate(context.Background(), estimator.New(), now, snap, qc, 2)
		assert.Equal(t, first.TargetWorkers, second.TargetWorkers)
	})
}

type failingProbe struct{}

func (failingProbe) CPUPercent(context.Context) (float64, error) { return 0, assert.AnError }
func (failingProbe) TotalCores() (int, error)                    { return 0, assert.AnError }
func (failingProbe) MemoryMB(context.Context) (float64, float64, error) {
	return 0, 0, assert.AnError
}
