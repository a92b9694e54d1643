// Package telemetry exports the control loop's own health as
// Prometheus metrics — an ambient concern carried regardless of
// spec.md's Non-goals around the metrics *collection* subsystem,
// which is a different, external, in-scope-only-as-an-interface
// component. Grounded on go-coffee's pervasive client_golang usage
// (go.mod lists prometheus/client_golang).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the gauges and counters the manager updates every
// tick and every scaling action.
type Metrics struct {
	WorkersRunning   *prometheus.GaugeVec
	DecisionsTotal   *prometheus.CounterVec
	ScaleActionsTotal *prometheus.CounterVec
	BreachesTotal    *prometheus.CounterVec
	SweptDeadTotal   prometheus.Counter
	TickDuration     prometheus.Histogram
}

// New registers all autoscaler metrics against the given registerer.
// The autoscaler binary passes a dedicated prometheus.NewRegistry()
// rather than the global default registerer, which also avoids
// global-registry collisions across test runs.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WorkersRunning: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autoscaler",
			Name:      "workers_running",
			Help:      "Current number of running worker processes per queue.",
		}, []string{"connection", "queue"}),

		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoscaler",
			Name:      "decisions_total",
			Help:      "Scaling decisions evaluated, labeled by action.",
		}, []string{"connection", "queue", "action"}),

		ScaleActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoscaler",
			Name:      "scale_actions_total",
			Help:      "Worker spawn/terminate actions taken, labeled by direction.",
		}, []string{"connection", "queue", "direction"}),

		BreachesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoscaler",
			Name:      "sla_breaches_total",
			Help:      "SLA breach entries observed, per queue.",
		}, []string{"connection", "queue"}),

		SweptDeadTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "autoscaler",
			Name:      "swept_dead_workers_total",
			Help:      "Dead worker processes removed from the pool by the health sweep.",
		}),

		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autoscaler",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one control loop tick.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
