package policy

import (
	"context"

	"github.com/DimaJoyti/queue-autoscaler/internal/engine"
	"github.com/DimaJoyti/queue-autoscaler/internal/events"
)

// ConservativeScaleDown caps a scale-down decision to at most one
// worker per tick (spec.md §4.7).
type ConservativeScaleDown struct{}

func (ConservativeScaleDown) Name() string { return "conservative_scale_down" }

func (ConservativeScaleDown) Before(d engine.Decision) (*engine.Decision, error) {
	if d.Action() != engine.ActionDown {
		return nil, nil
	}
	floor := d.CurrentWorkers - 1
	if d.TargetWorkers < floor {
		d.TargetWorkers = floor
	}
	return &d, nil
}

func (ConservativeScaleDown) After(context.Context, engine.Decision) error { return nil }

// AggressiveScaleDown is the identity policy: it allows the full
// scale-down step the strategy computed.
type AggressiveScaleDown struct{}

func (AggressiveScaleDown) Name() string                                   { return "aggressive_scale_down" }
func (AggressiveScaleDown) Before(engine.Decision) (*engine.Decision, error) { return nil, nil }
func (AggressiveScaleDown) After(context.Context, engine.Decision) error    { return nil }

// NoScaleDown rewrites any down decision to hold at the current
// worker count.
type NoScaleDown struct{}

func (NoScaleDown) Name() string { return "no_scale_down" }

func (NoScaleDown) Before(d engine.Decision) (*engine.Decision, error) {
	if d.Action() != engine.ActionDown {
		return nil, nil
	}
	d.TargetWorkers = d.CurrentWorkers
	return &d, nil
}

func (NoScaleDown) After(context.Context, engine.Decision) error { return nil }

// BreachNotification is an after-only policy: it publishes a warning
// event whenever the decision predicts (or is already within 90% of)
// an SLO breach.
type BreachNotification struct {
	Publisher events.Publisher
}

func (BreachNotification) Name() string { return "breach_notification" }

func (BreachNotification) Before(engine.Decision) (*engine.Decision, error) { return nil, nil }

func (b BreachNotification) After(ctx context.Context, d engine.Decision) error {
	if d.PredictedPickup == nil {
		return nil
	}
	predicted := *d.PredictedPickup
	slo := float64(d.SLOTarget)
	if predicted > slo || (slo > 0 && predicted/slo >= 0.9) {
		return b.Publisher.Publish(ctx, events.SLABreachPredicted(d))
	}
	return nil
}
