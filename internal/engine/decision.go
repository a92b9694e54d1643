// Package engine implements spec.md §4.6: the scaling engine that
// clamps a strategy's raw target by capacity then by configured
// bounds and produces a ScalingDecision.
package engine

import (
	"github.com/DimaJoyti/queue-autoscaler/internal/calc"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Action classifies the direction of a decision.
type Action string

const (
	ActionUp   Action = "up"
	ActionDown Action = "down"
	ActionHold Action = "hold"
)

// Decision is the engine's output, carrying everything the manager
// and policies need (spec.md §3).
type Decision struct {
	Key             queue.Key
	CurrentWorkers  int
	TargetWorkers   int
	Reason          string
	PredictedPickup *float64
	SLOTarget       int
	Capacity        calc.Result
}

// Action derives the direction from current vs. target workers.
func (d Decision) Action() Action {
	switch {
	case d.TargetWorkers > d.CurrentWorkers:
		return ActionUp
	case d.TargetWorkers < d.CurrentWorkers:
		return ActionDown
	default:
		return ActionHold
	}
}

// WorkersToAdd returns how many workers an "up" decision should spawn.
func (d Decision) WorkersToAdd() int {
	if d.TargetWorkers > d.CurrentWorkers {
		return d.TargetWorkers - d.CurrentWorkers
	}
	return 0
}

// WorkersToRemove returns how many workers a "down" decision should
// terminate.
func (d Decision) WorkersToRemove() int {
	if d.CurrentWorkers > d.TargetWorkers {
		return d.CurrentWorkers - d.TargetWorkers
	}
	return 0
}

// SLABreachRisk is true when the predicted pickup time exceeds the
// queue's SLO target.
func (d Decision) SLABreachRisk() bool {
	if d.PredictedPickup == nil {
		return false
	}
	return *d.PredictedPickup > float64(d.SLOTarget)
}
