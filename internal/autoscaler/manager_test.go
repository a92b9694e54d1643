package autoscaler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DimaJoyti/queue-autoscaler/internal/calc"
	"github.com/DimaJoyti/queue-autoscaler/internal/config"
	"github.com/DimaJoyti/queue-autoscaler/internal/engine"
	"github.com/DimaJoyti/queue-autoscaler/internal/estimator"
	"github.com/DimaJoyti/queue-autoscaler/internal/events"
	"github.com/DimaJoyti/queue-autoscaler/internal/metrics"
	"github.com/DimaJoyti/queue-autoscaler/internal/policy"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
	"github.com/DimaJoyti/queue-autoscaler/internal/strategy"
	"github.com/DimaJoyti/queue-autoscaler/internal/worker"
)

// stepStrategy returns a scripted sequence of raw targets, one per
// call, repeating the last entry once exhausted.
type stepStrategy struct {
	targets []int
	i       int
}

func (s *stepStrategy) Target(_ *estimator.Estimator, _ time.Time, _ metrics.Snapshot, _ queue.Config) strategy.Result {
	target := s.targets[s.i]
	if s.i < len(s.targets)-1 {
		s.i++
	}
	return strategy.Result{Target: target, Reason: "scripted"}
}

type fixedProbe struct {
	cpuPct, totalMB, availMB float64
	cores                    int
}

func (f fixedProbe) CPUPercent(context.Context) (float64, error) { return f.cpuPct, nil }
func (f fixedProbe) TotalCores() (int, error)                    { return f.cores, nil }
func (f fixedProbe) MemoryMB(context.Context) (float64, float64, error) {
	return f.totalMB, f.availMB, nil
}

type recordingPublisher struct {
	published []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	r.published = append(r.published, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) has(typ events.Type) bool {
	for _, ev := range r.published {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

type sequenceSource struct {
	seqs [][]metrics.Snapshot
	i    int
}

func (s *sequenceSource) Snapshots(context.Context) ([]metrics.Snapshot, error) {
	out := s.seqs[s.i]
	if s.i < len(s.seqs)-1 {
		s.i++
	}
	return out, nil
}

// writeFakeWorkerScript writes a shell script that ignores its
// arguments and sleeps, standing in for a real queue-worker binary.
func writeFakeWorkerScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakeworker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nsleep 5\n"), 0o755))
	return path
}

func generousCapacity() calc.Limits {
	return calc.Limits{MaxCPUPercent: 95, MaxMemoryPercent: 95, WorkerMemoryEstimateMB: 128, ReserveCPUCores: 0}
}

func newTestManager(t *testing.T, src metrics.Source, strat strategy.Strategy, pub events.Publisher, cooldownSeconds int) *Manager {
	t.Helper()
	logger := zap.NewNop()

	cfg := config.Config{
		EvaluationIntervalSeconds: 5,
		ShutdownTimeoutSeconds:    5,
		SLODefaults: config.SLODefaults{
			MaxPickupTimeSeconds: 10, MinWorkers: 0, MaxWorkers: 10, ScaleCooldownSeconds: cooldownSeconds,
		},
		Prediction: config.Prediction{BreachThreshold: 0.8},
	}

	probe := fixedProbe{cpuPct: 0, cores: 64, totalMB: 64000, availMB: 64000}
	eng := engine.New(strat, probe, generousCapacity())
	pipeline := policy.New(logger, nil)
	pool := worker.NewPool()

	script := writeFakeWorkerScript(t)
	spawner := worker.NewSpawner(worker.Options{RuntimeBinary: script, Subcommand: "work"}, logger)
	terminator := worker.NewTerminator(time.Second, logger)

	return New(logger, cfg, src, estimator.New(), eng, pipeline, pool, spawner, terminator, pub, nil)
}

func TestAntiFlapBlocksDirectionReversal(t *testing.T) {
	key := queue.NewKey("redis", "jobs")
	src := &metrics.StaticSource{Snaps: []metrics.Snapshot{{Key: key}}}
	strat := &stepStrategy{targets: []int{5, 0}}
	pub := &recordingPublisher{}

	mgr := newTestManager(t, src, strat, pub, 60)

	mgr.tick(context.Background())
	require.Eventually(t, func() bool { return mgr.pool.CountRunningByKey(key) == 5 }, time.Second, 10*time.Millisecond)

	mgr.tick(context.Background())
	// The reversal from up to down arrives well within the 60s
	// cooldown, so the pool must be untouched.
	assert.Equal(t, 5, mgr.pool.CountRunningByKey(key))
	assert.True(t, pub.has(events.TypeAntiFlapHold))
}

func TestSameDirectionRepeatIsNeverHeld(t *testing.T) {
	key := queue.NewKey("redis", "jobs")
	src := &metrics.StaticSource{Snaps: []metrics.Snapshot{{Key: key}}}
	strat := &stepStrategy{targets: []int{3, 5}}
	pub := &recordingPublisher{}

	mgr := newTestManager(t, src, strat, pub, 60)

	mgr.tick(context.Background())
	require.Eventually(t, func() bool { return mgr.pool.CountRunningByKey(key) == 3 }, time.Second, 10*time.Millisecond)

	mgr.tick(context.Background())
	require.Eventually(t, func() bool { return mgr.pool.CountRunningByKey(key) == 5 }, time.Second, 10*time.Millisecond)
	assert.False(t, pub.has(events.TypeAntiFlapHold))
}

func TestBreachStateTransitionsEmitEvents(t *testing.T) {
	key := queue.NewKey("redis", "jobs")
	src := &sequenceSource{seqs: [][]metrics.Snapshot{
		{{Key: key, Pending: 5, OldestPendingAge: 20 * time.Second}},
		{{Key: key, Pending: 5, OldestPendingAge: 2 * time.Second}},
	}}
	strat := &stepStrategy{targets: []int{0}}
	pub := &recordingPublisher{}

	mgr := newTestManager(t, src, strat, pub, 60)

	mgr.tick(context.Background())
	assert.True(t, pub.has(events.TypeSLABreached))

	mgr.tick(context.Background())
	assert.True(t, pub.has(events.TypeSLARecovered))
}

func TestShutdownTerminatesEveryWorker(t *testing.T) {
	key := queue.NewKey("redis", "jobs")
	src := &metrics.StaticSource{Snaps: []metrics.Snapshot{{Key: key}}}
	strat := &stepStrategy{targets: []int{3}}
	pub := &recordingPublisher{}

	mgr := newTestManager(t, src, strat, pub, 60)
	mgr.tick(context.Background())
	require.Eventually(t, func() bool { return mgr.pool.CountRunningByKey(key) == 3 }, time.Second, 10*time.Millisecond)

	mgr.shutdown()
	assert.Equal(t, 0, mgr.pool.CountTotal())
	assert.True(t, pub.has(events.TypeShutdown))
}
