// Package events defines the event surface of spec.md §6 and the
// Publisher interface implementations send them through (Kafka, or an
// in-memory/log publisher for tests and Kafka-less deployments).
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/DimaJoyti/queue-autoscaler/internal/engine"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Type names an event kind. It travels in the event's JSON body and
// in log fields; the Kafka message key is the queue key, not the type.
type Type string

const (
	TypeScalingDecisionMade Type = "scaling_decision_made"
	TypeWorkersScaled       Type = "workers_scaled"
	TypeSLABreachPredicted  Type = "sla_breach_predicted"
	TypeSLABreached         Type = "sla_breached"
	TypeSLARecovered        Type = "sla_recovered"
	TypeAntiFlapHold        Type = "anti_flap_hold"
	TypeWorkerSweepDead     Type = "worker_sweep_dead"
	TypeShutdown            Type = "shutdown"
)

// Event is the envelope published for every occurrence in the event
// surface of spec.md §6.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Key       queue.Key      `json:"key"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

func newEvent(typ Type, key queue.Key, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Key:       key,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// ScalingDecisionMade is emitted every tick per queue.
func ScalingDecisionMade(d engine.Decision) Event {
	return newEvent(TypeScalingDecisionMade, d.Key, map[string]any{
		"current_workers":  d.CurrentWorkers,
		"target_workers":   d.TargetWorkers,
		"reason":           d.Reason,
		"action":           d.Action(),
		"predicted_pickup": d.PredictedPickup,
		"slo_target":       d.SLOTarget,
		"limiting_factor":  d.Capacity.LimitingFactor,
	})
}

// WorkersScaled is emitted when a decision's action is not hold.
func WorkersScaled(key queue.Key, from, to int, action engine.Action, reason string) Event {
	return newEvent(TypeWorkersScaled, key, map[string]any{
		"from":   from,
		"to":     to,
		"action": action,
		"reason": reason,
	})
}

// SLABreachPredicted is emitted when a decision's predicted pickup
// exceeds its SLO.
func SLABreachPredicted(d engine.Decision) Event {
	return newEvent(TypeSLABreachPredicted, d.Key, map[string]any{
		"predicted_pickup": d.PredictedPickup,
		"slo_target":       d.SLOTarget,
	})
}

// SLABreached is emitted when a queue transitions into breach.
func SLABreached(key queue.Key, oldestAge time.Duration, slo int, pending, activeWorkers int) Event {
	return newEvent(TypeSLABreached, key, map[string]any{
		"oldest_age":     oldestAge.Seconds(),
		"slo":            slo,
		"pending":        pending,
		"active_workers": activeWorkers,
	})
}

// SLARecovered is emitted when a queue transitions out of breach.
func SLARecovered(key queue.Key, oldestAge time.Duration, slo int, pending, activeWorkers int) Event {
	return newEvent(TypeSLARecovered, key, map[string]any{
		"oldest_age":     oldestAge.Seconds(),
		"slo":            slo,
		"pending":        pending,
		"active_workers": activeWorkers,
	})
}

// AntiFlapHold is a debug event noting a direction-reversal skip.
func AntiFlapHold(key queue.Key, currentDirection, lastDirection engine.Action, remaining time.Duration) Event {
	return newEvent(TypeAntiFlapHold, key, map[string]any{
		"current_direction": currentDirection,
		"last_direction":    lastDirection,
		"cooldown_remaining": remaining.Seconds(),
	})
}

// WorkerSweepDead is emitted for every dead worker removed from the pool.
func WorkerSweepDead(key queue.Key, pid int) Event {
	return newEvent(TypeWorkerSweepDead, key, map[string]any{"pid": pid})
}

// Shutdown is emitted once the manager has drained the pool.
func Shutdown() Event {
	return newEvent(TypeShutdown, queue.Key{}, nil)
}
