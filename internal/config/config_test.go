package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DimaJoyti/queue-autoscaler/internal/config"
	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

func validConfig() config.Config {
	return config.Config{
		EvaluationIntervalSeconds: 5,
		ShutdownTimeoutSeconds:    30,
		SLODefaults: config.SLODefaults{
			MaxPickupTimeSeconds: 30, MinWorkers: 1, MaxWorkers: 10, ScaleCooldownSeconds: 60,
		},
		Prediction: config.Prediction{BreachThreshold: 0.8, TrendBufferUp: 1.2, TrendBufferDown: 0.9},
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts a well-formed config", func(t *testing.T) {
		assert.NoError(t, config.Validate(validConfig()))
	})

	t.Run("rejects a non-positive evaluation interval", func(t *testing.T) {
		c := validConfig()
		c.EvaluationIntervalSeconds = 0
		assert.Error(t, config.Validate(c))
	})

	t.Run("rejects a breach threshold outside (0,1]", func(t *testing.T) {
		c := validConfig()
		c.Prediction.BreachThreshold = 1.5
		assert.Error(t, config.Validate(c))
	})

	t.Run("rejects duplicate queue overrides", func(t *testing.T) {
		c := validConfig()
		c.Queues = []config.QueueOverride{
			{Connection: "redis", Queue: "emails"},
			{Connection: "redis", Queue: "emails"},
		}
		assert.Error(t, config.Validate(c))
	})

	t.Run("rejects an override missing its queue name", func(t *testing.T) {
		c := validConfig()
		c.Queues = []config.QueueOverride{{Connection: "redis"}}
		assert.Error(t, config.Validate(c))
	})
}

func TestQueueConfigFor(t *testing.T) {
	c := validConfig()
	c.Queues = []config.QueueOverride{
		{Connection: "redis", Queue: "emails", SLOPickupSeconds: 10, MinWorkers: 2, MaxWorkers: 8, CooldownSeconds: 30, BreachThreshold: 0.7},
	}

	t.Run("an overridden queue uses its own bounds", func(t *testing.T) {
		qc := c.QueueConfigFor(queue.NewKey("redis", "emails"))
		assert.Equal(t, 10, qc.SLOPickupSeconds)
		assert.Equal(t, 2, qc.MinWorkers)
		assert.Equal(t, 8, qc.MaxWorkers)
	})

	t.Run("an unknown queue falls back to slo_defaults", func(t *testing.T) {
		qc := c.QueueConfigFor(queue.NewKey("redis", "reports"))
		assert.Equal(t, 30, qc.SLOPickupSeconds)
		assert.Equal(t, 1, qc.MinWorkers)
		assert.Equal(t, 10, qc.MaxWorkers)
	})
}
