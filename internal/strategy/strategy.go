// Package strategy implements spec.md §4.5: the hybrid predictive
// strategy and the two simpler tagged variants spec.md §9 names
// (LittlesOnly, BacklogOnly), selected by name at startup the way the
// policy pipeline (internal/policy) selects its built-ins by name.
package strategy

import (
	"math"
	"time"

	"github.com/DimaJoyti/queue-autoscaler/internal/calc"
	"github.com/DimaJoyti/queue-autoscaler/internal/estimator"
	"github.com/DimaJoyti/queue-autoscaler/internal/metrics"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Kind names a strategy variant, built by name from configuration
// (spec.md §9 "Strategy selection").
type Kind string

const (
	KindLittlesOnly      Kind = "littles_only"
	KindBacklogOnly      Kind = "backlog_only"
	KindHybridPredictive Kind = "hybrid_predictive"
)

// Result is the strategy's raw output, before capacity/config
// clamping (that happens in internal/engine).
type Result struct {
	Target          int
	Reason          string
	PredictedPickup *float64 // seconds; nil when undeterminable
}

// Config tunes the numeric constants spec.md leaves implementation-
// defined.
type Config struct {
	DefaultServiceSeconds float64
	TrendBufferUp         float64
	TrendBufferDown       float64
	UtilizationFactor     float64
}

// DefaultConfig matches the defaults named in spec.md §4.5/§6/§9.
func DefaultConfig() Config {
	return Config{
		DefaultServiceSeconds: 2.0,
		TrendBufferUp:         1.2,
		TrendBufferDown:       0.9,
		UtilizationFactor:     0.85,
	}
}

// Strategy computes a raw target worker count for one queue.
type Strategy interface {
	Target(est *estimator.Estimator, now time.Time, snap metrics.Snapshot, cfg queue.Config) Result
}

// New builds a Strategy by its configured name.
func New(kind Kind, cfg Config) Strategy {
	switch kind {
	case KindLittlesOnly:
		return littlesOnly{cfg: cfg}
	case KindBacklogOnly:
		return backlogOnly{cfg: cfg}
	default:
		return hybridPredictive{cfg: cfg}
	}
}

func serviceSeconds(snap metrics.Snapshot, processingRate float64, cfg Config) float64 {
	if snap.AvgJobDuration > 0 {
		return snap.AvgJobDuration.Seconds()
	}
	if snap.ActiveWorkers > 0 && processingRate > 0 {
		return float64(snap.ActiveWorkers) / processingRate
	}
	return cfg.DefaultServiceSeconds
}

func ceilToInt(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Ceil(f))
}

func degenerate(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// hybridPredictive is the strategy of spec.md §4.5.
type hybridPredictive struct {
	cfg Config
}

func (h hybridPredictive) Target(est *estimator.Estimator, now time.Time, snap metrics.Snapshot, qc queue.Config) Result {
	processingRate := snap.ProcessingRatePerSec()
	service := serviceSeconds(snap, processingRate, h.cfg)
	backlog := snap.Backlog()
	oldestAge := snap.OldestPendingAge.Seconds()
	slo := float64(qc.SLOPickupSeconds)

	if degenerate(processingRate) || degenerate(service) {
		return Result{Target: 0, Reason: "degenerate-inputs"}
	}

	switch {
	case processingRate == 0 && snap.ActiveWorkers > 0:
		estimatedRate := (float64(snap.ActiveWorkers) / service) * h.cfg.UtilizationFactor
		target := ceilToInt(calc.SteadyState(estimatedRate, service))
		return Result{
			Target:          target,
			Reason:          "steady-state (estimated)",
			PredictedPickup: predictedPickup(backlog, target, estimatedRate),
		}

	case processingRate == 0 && snap.ActiveWorkers == 0 && backlog == 0:
		return Result{Target: 0, Reason: "idle"}

	case processingRate == 0 && snap.ActiveWorkers == 0 && backlog > 0:
		drainWorkers, urgency := calc.BacklogDrain(backlog, oldestAge, slo, service, qc.BreachThreshold)
		target := ceilToInt(drainWorkers)
		if target == 0 {
			// The oldest age is known but below every urgency tier, so
			// the drain arm returned 0: still need at least enough
			// capacity to start draining cold.
			target = ceilToInt(float64(backlog) / maxFloat(slo/service, 1.0))
		}
		return Result{
			Target:          target,
			Reason:          "cold-start backlog demand (" + string(urgency) + ") (estimated)",
			PredictedPickup: nil,
		}

	default:
		est1 := est.Estimate(snap.Key, now, backlog, processingRate)

		steady := calc.SteadyState(processingRate, service)
		trendBuffer := h.trendBuffer(est1, processingRate)
		predictive := est1.RatePerSec * service * trendBuffer
		drainWorkers, _ := calc.BacklogDrain(backlog, oldestAge, slo, service, qc.BreachThreshold)

		steadyI := ceilToInt(steady)
		predictiveI := ceilToInt(predictive)
		drainI := ceilToInt(drainWorkers)

		target := steadyI
		reason := "steady-state"
		if predictiveI > target {
			target = predictiveI
			reason = "predictive"
		}
		if drainI > target {
			target = drainI
			reason = "backlog-drain"
		}

		return Result{
			Target:          target,
			Reason:          reason,
			PredictedPickup: predictedPickup(backlog, target, processingRate),
		}
	}
}

func (h hybridPredictive) trendBuffer(e estimator.Estimate, processingRate float64) float64 {
	switch {
	case e.RatePerSec > processingRate*1.05:
		return h.cfg.TrendBufferUp
	case e.RatePerSec < processingRate*0.95 && e.Confidence >= 0.7:
		return h.cfg.TrendBufferDown
	default:
		return 1.0
	}
}

func predictedPickup(backlog, target int, processingRate float64) *float64 {
	if backlog == 0 {
		zero := 0.0
		return &zero
	}
	if target > 0 && processingRate > 0 {
		v := float64(backlog) / (float64(target) * processingRate)
		return &v
	}
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// littlesOnly ignores the predictive and drain arms entirely.
type littlesOnly struct {
	cfg Config
}

func (l littlesOnly) Target(_ *estimator.Estimator, _ time.Time, snap metrics.Snapshot, qc queue.Config) Result {
	processingRate := snap.ProcessingRatePerSec()
	service := serviceSeconds(snap, processingRate, l.cfg)
	target := ceilToInt(calc.SteadyState(processingRate, service))
	return Result{
		Target:          target,
		Reason:          "steady-state",
		PredictedPickup: predictedPickup(snap.Backlog(), target, processingRate),
	}
}

// backlogOnly drives scaling purely off the urgency-weighted backlog
// drain calculator.
type backlogOnly struct {
	cfg Config
}

func (b backlogOnly) Target(_ *estimator.Estimator, _ time.Time, snap metrics.Snapshot, qc queue.Config) Result {
	processingRate := snap.ProcessingRatePerSec()
	service := serviceSeconds(snap, processingRate, b.cfg)
	drainWorkers, urgency := calc.BacklogDrain(snap.Backlog(), snap.OldestPendingAge.Seconds(), float64(qc.SLOPickupSeconds), service, qc.BreachThreshold)
	target := ceilToInt(drainWorkers)
	return Result{
		Target:          target,
		Reason:          "backlog-drain (" + string(urgency) + ")",
		PredictedPickup: predictedPickup(snap.Backlog(), target, processingRate),
	}
}
