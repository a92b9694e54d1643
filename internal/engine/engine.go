package engine

import (
	"context"
	"time"

	"github.com/DimaJoyti/queue-autoscaler/internal/calc"
	"github.com/DimaJoyti/queue-autoscaler/internal/estimator"
	"github.com/DimaJoyti/queue-autoscaler/internal/metrics"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
	"github.com/DimaJoyti/queue-autoscaler/internal/strategy"
)

// Engine evaluates one queue per tick: strategy, then capacity clamp,
// then config-bounds clamp (spec.md §4.6).
type Engine struct {
	Strategy strategy.Strategy
	Probe    calc.SystemProbe
	Limits   calc.Limits
}

// New builds an Engine.
func New(strat strategy.Strategy, probe calc.SystemProbe, limits calc.Limits) *Engine {
	return &Engine{Strategy: strat, Probe: probe, Limits: limits}
}

// Evaluate implements spec.md §4.6 steps 1-5.
func (e *Engine) Evaluate(ctx context.Context, est *estimator.Estimator, now time.Time, snap metrics.Snapshot, qc queue.Config, currentWorkers int) Decision {
	result := e.Strategy.Target(est, now, snap, qc)

	capacityResult := calc.Capacity(ctx, e.Probe, e.Limits, qc.MaxWorkers)

	target := result.Target
	reason := result.Reason
	limitingFactor := calc.LimitStrategy

	if capacityResult.Final >= 0 && target > capacityResult.Final {
		target = capacityResult.Final
		limitingFactor = capacityResult.LimitingFactor
	}

	if target < qc.MinWorkers {
		target = qc.MinWorkers
		if limitingFactor == calc.LimitStrategy {
			limitingFactor = calc.LimitConfig
		}
	}
	if target > qc.MaxWorkers {
		target = qc.MaxWorkers
		limitingFactor = calc.LimitConfig
	}

	capacityResult.LimitingFactor = limitingFactor

	return Decision{
		Key:             snap.Key,
		CurrentWorkers:  currentWorkers,
		TargetWorkers:   target,
		Reason:          reason,
		PredictedPickup: result.PredictedPickup,
		SLOTarget:       qc.SLOPickupSeconds,
		Capacity:        capacityResult,
	}
}
