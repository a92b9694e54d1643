package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DimaJoyti/queue-autoscaler/internal/engine"
	"github.com/DimaJoyti/queue-autoscaler/internal/events"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

func TestScalingDecisionMade(t *testing.T) {
	key := queue.NewKey("redis", "jobs")
	decision := engine.Decision{Key: key, CurrentWorkers: 2, TargetWorkers: 4, Reason: "steady-state"}

	ev := events.ScalingDecisionMade(decision)
	assert.Equal(t, events.TypeScalingDecisionMade, ev.Type)
	assert.Equal(t, key, ev.Key)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 4, ev.Payload["target_workers"])
}

func TestWorkersScaled(t *testing.T) {
	key := queue.NewKey("redis", "jobs")
	ev := events.WorkersScaled(key, 2, 4, engine.ActionUp, "steady-state")
	assert.Equal(t, events.TypeWorkersScaled, ev.Type)
	assert.Equal(t, 2, ev.Payload["from"])
	assert.Equal(t, 4, ev.Payload["to"])
}

func TestSLABreachedAndRecovered(t *testing.T) {
	key := queue.NewKey("redis", "jobs")

	breached := events.SLABreached(key, 45*time.Second, 30, 20, 3)
	assert.Equal(t, events.TypeSLABreached, breached.Type)
	assert.Equal(t, 45.0, breached.Payload["oldest_age"])

	recovered := events.SLARecovered(key, 5*time.Second, 30, 20, 3)
	assert.Equal(t, events.TypeSLARecovered, recovered.Type)
}

func TestShutdownEventHasNoKey(t *testing.T) {
	ev := events.Shutdown()
	assert.Equal(t, events.TypeShutdown, ev.Type)
	assert.Equal(t, queue.Key{}, ev.Key)
}
