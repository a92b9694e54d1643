// Package autoscaler implements the control loop of spec.md §4.10,
// adapted from go-coffee's pkg/autoscaling.AutoScaler: the same
// atomic running flag, here guarding a single Run call that stops when
// its context is cancelled instead of a Start/Stop pair, collapsed onto a
// single cooperative loop goroutine per spec.md §5 instead of the
// teacher's separate evaluator/executor/metrics goroutines, since the
// spec requires per-queue state mutations to stay unsynchronized and
// single-threaded.
package autoscaler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DimaJoyti/queue-autoscaler/internal/config"
	"github.com/DimaJoyti/queue-autoscaler/internal/engine"
	"github.com/DimaJoyti/queue-autoscaler/internal/estimator"
	"github.com/DimaJoyti/queue-autoscaler/internal/events"
	"github.com/DimaJoyti/queue-autoscaler/internal/metrics"
	"github.com/DimaJoyti/queue-autoscaler/internal/policy"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
	"github.com/DimaJoyti/queue-autoscaler/internal/telemetry"
	"github.com/DimaJoyti/queue-autoscaler/internal/worker"
)

// metricsFetchTimeout bounds how long one tick waits on the metrics
// collaborator before logging and skipping evaluation (spec.md §5).
const metricsFetchTimeout = 2 * time.Second

// controlState is the per-queue bookkeeping of spec.md §3.
type controlState struct {
	lastScaleTime      time.Time
	hasLastScaleTime   bool
	lastScaleDirection engine.Action
	hasLastDirection   bool
	breaching          bool
}

// Manager is the autoscale control loop.
type Manager struct {
	logger *zap.Logger
	cfg    config.Config

	source     metrics.Source
	estimator  *estimator.Estimator
	engine     *engine.Engine
	pipeline   *policy.Pipeline
	pool       *worker.Pool
	spawner    *worker.Spawner
	terminator *worker.Terminator
	publisher  events.Publisher
	telemetry  *telemetry.Metrics

	state map[queue.Key]*controlState

	running int32
}

// New builds a Manager from its fully wired collaborators.
func New(
	logger *zap.Logger,
	cfg config.Config,
	source metrics.Source,
	est *estimator.Estimator,
	eng *engine.Engine,
	pipeline *policy.Pipeline,
	pool *worker.Pool,
	spawner *worker.Spawner,
	terminator *worker.Terminator,
	publisher events.Publisher,
	tel *telemetry.Metrics,
) *Manager {
	return &Manager{
		logger:     logger,
		cfg:        cfg,
		source:     source,
		estimator:  est,
		engine:     eng,
		pipeline:   pipeline,
		pool:       pool,
		spawner:    spawner,
		terminator: terminator,
		publisher:  publisher,
		telemetry:  tel,
		state:      make(map[queue.Key]*controlState),
	}
}

// Run drives the control loop until ctx is cancelled, then drains the
// pool and returns. Shutdown is cooperative: the loop finishes the
// current tick before checking ctx again (spec.md §5).
func (m *Manager) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&m.running, 0)

	interval := m.cfg.EvaluationInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("autoscaler control loop starting",
		zap.Duration("evaluation_interval", interval),
		zap.String("strategy", m.cfg.Strategy))

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if m.telemetry != nil {
			m.telemetry.TickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, metricsFetchTimeout)
	snapshots, err := m.source.Snapshots(fetchCtx)
	cancel()
	if err != nil {
		m.logger.Error("metrics fetch failed or timed out, skipping tick", zap.Error(err))
		m.sweep()
		return
	}

	byKey := make(map[queue.Key]metrics.Snapshot, len(snapshots))
	for _, s := range snapshots {
		byKey[s.Key] = s
	}

	for _, key := range m.allKeys(byKey) {
		snap, ok := byKey[key]
		if !ok {
			snap = metrics.Snapshot{Key: key, Timestamp: start}
		}
		m.evaluateQueue(ctx, key, snap)
	}

	m.sweep()
}

// allKeys returns the union of queues named in configuration and
// queues present in this tick's metrics, per spec.md §4.10 step 2.
func (m *Manager) allKeys(byKey map[queue.Key]metrics.Snapshot) []queue.Key {
	seen := make(map[queue.Key]bool)
	var keys []queue.Key
	for _, k := range m.cfg.AllQueueKeys() {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range byKey {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func (m *Manager) stateFor(key queue.Key) *controlState {
	st, ok := m.state[key]
	if !ok {
		st = &controlState{}
		m.state[key] = st
	}
	return st
}

func (m *Manager) evaluateQueue(ctx context.Context, key queue.Key, snap metrics.Snapshot) {
	now := time.Now()
	qc := m.cfg.QueueConfigFor(key)
	st := m.stateFor(key)

	currentWorkers := m.pool.CountRunningByKey(key)
	decision := m.engine.Evaluate(ctx, m.estimator, now, snap, qc, currentWorkers)

	slo := float64(qc.SLOPickupSeconds)
	isBreaching := snap.OldestPendingAge.Seconds() > 0 && snap.OldestPendingAge.Seconds() >= slo

	if held, remaining := m.antiFlapHold(key, decision, st, now, qc); held {
		_ = m.publisher.Publish(ctx, events.AntiFlapHold(key, decision.Action(), st.lastScaleDirection, remaining))
		m.updateBreachState(ctx, key, snap, st, isBreaching)
		return
	}

	decision = m.pipeline.RunBefore(decision)

	m.applyAction(ctx, key, decision)

	m.pipeline.RunAfter(ctx, decision)

	if m.telemetry != nil {
		m.telemetry.DecisionsTotal.WithLabelValues(key.Connection, key.Queue, string(decision.Action())).Inc()
		m.telemetry.WorkersRunning.WithLabelValues(key.Connection, key.Queue).Set(float64(m.pool.CountRunningByKey(key)))
	}

	_ = m.publisher.Publish(ctx, events.ScalingDecisionMade(decision))
	if decision.SLABreachRisk() {
		_ = m.publisher.Publish(ctx, events.SLABreachPredicted(decision))
	}

	m.updateBreachState(ctx, key, snap, st, isBreaching)

	if decision.Action() != engine.ActionHold {
		st.lastScaleTime = now
		st.hasLastScaleTime = true
		st.lastScaleDirection = decision.Action()
		st.hasLastDirection = true
	}
}

// antiFlapHold implements spec.md §4.10 step e: cooldown blocks a
// direction reversal only, never a repeat of the same direction or a
// first scaling action.
func (m *Manager) antiFlapHold(key queue.Key, decision engine.Decision, st *controlState, now time.Time, qc queue.Config) (bool, time.Duration) {
	current := decision.Action()
	if current == engine.ActionHold || !st.hasLastDirection {
		return false, 0
	}
	if current == st.lastScaleDirection {
		return false, 0
	}
	cooldown := time.Duration(qc.CooldownSeconds) * time.Second
	if !st.hasLastScaleTime {
		return false, 0
	}
	elapsed := now.Sub(st.lastScaleTime)
	if elapsed >= cooldown {
		return false, 0
	}
	remaining := cooldown - elapsed

	m.logger.Debug("anti-flap hold: direction reversal within cooldown",
		zap.String("key", key.String()),
		zap.String("current_direction", string(current)),
		zap.String("last_direction", string(st.lastScaleDirection)),
		zap.Duration("remaining", remaining))

	return true, remaining
}

func (m *Manager) applyAction(ctx context.Context, key queue.Key, decision engine.Decision) {
	switch decision.Action() {
	case engine.ActionUp:
		want := decision.WorkersToAdd()
		spawned := m.spawner.Spawn(key, want)
		m.pool.AddMany(spawned)

		to := decision.CurrentWorkers + len(spawned)
		if m.telemetry != nil {
			m.telemetry.ScaleActionsTotal.WithLabelValues(key.Connection, key.Queue, "up").Inc()
		}
		_ = m.publisher.Publish(ctx, events.WorkersScaled(key, decision.CurrentWorkers, to, decision.Action(), decision.Reason))

	case engine.ActionDown:
		want := decision.WorkersToRemove()
		candidates := m.pool.RemoveByKey(key, want)

		removed := 0
		for _, proc := range candidates {
			if m.terminator.Terminate(proc) || !proc.IsRunning() {
				removed++
				continue
			}
			// Still alive after SIGKILL attempt failed: keep tracking it.
			m.pool.Add(proc)
		}

		to := decision.CurrentWorkers - removed
		if m.telemetry != nil {
			m.telemetry.ScaleActionsTotal.WithLabelValues(key.Connection, key.Queue, "down").Inc()
		}
		_ = m.publisher.Publish(ctx, events.WorkersScaled(key, decision.CurrentWorkers, to, decision.Action(), decision.Reason))
	}
}

func (m *Manager) updateBreachState(ctx context.Context, key queue.Key, snap metrics.Snapshot, st *controlState, isBreaching bool) {
	if isBreaching && !st.breaching {
		st.breaching = true
		if m.telemetry != nil {
			m.telemetry.BreachesTotal.WithLabelValues(key.Connection, key.Queue).Inc()
		}
		_ = m.publisher.Publish(ctx, events.SLABreached(key, snap.OldestPendingAge, int(float64(m.cfg.QueueConfigFor(key).SLOPickupSeconds)), snap.Pending, snap.ActiveWorkers))
		return
	}
	if !isBreaching && st.breaching {
		st.breaching = false
		_ = m.publisher.Publish(ctx, events.SLARecovered(key, snap.OldestPendingAge, m.cfg.QueueConfigFor(key).SLOPickupSeconds, snap.Pending, snap.ActiveWorkers))
	}
}

// sweep implements spec.md §4.10 step 3: dead workers are always
// logged and removed from the pool.
func (m *Manager) sweep() {
	dead := m.pool.CollectDead()
	for _, proc := range dead {
		m.logger.Warn("removing dead worker from pool",
			zap.String("key", proc.Key().String()), zap.Int("pid", proc.PID()))
		m.pool.RemoveSpecific(proc)
		if m.telemetry != nil {
			m.telemetry.SweptDeadTotal.Inc()
		}
		_ = m.publisher.Publish(context.Background(), events.WorkerSweepDead(proc.Key(), proc.PID()))
	}
}

// shutdown terminates every tracked worker, attempting every one even
// if individual calls fail (spec.md §4.10 Shutdown).
func (m *Manager) shutdown() {
	m.logger.Info("autoscaler shutting down, draining worker pool")

	var toTerminate []*worker.Process
	m.pool.Iterate(func(p *worker.Process) {
		toTerminate = append(toTerminate, p)
	})

	for _, proc := range toTerminate {
		graceful := m.terminator.Terminate(proc)
		m.pool.RemoveSpecific(proc)
		m.logger.Info("worker terminated during shutdown",
			zap.String("key", proc.Key().String()), zap.Int("pid", proc.PID()), zap.Bool("graceful", graceful))
	}

	_ = m.publisher.Publish(context.Background(), events.Shutdown())
	_ = m.publisher.Close()

	m.logger.Info("autoscaler shutdown complete")
}
