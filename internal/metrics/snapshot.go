// Package metrics defines the read-only snapshot contract the control
// loop consumes each tick, plus a couple of Source implementations.
// The metrics collection subsystem itself is an external collaborator
// (spec.md §1, §6) — this package only models its interface and
// provides a Redis-backed instance grounded in how real Redis-queue
// systems expose queue depth, plus a static source for tests.
package metrics

import (
	"time"

	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Snapshot is one queue's metrics as of a point in time. All counts
// are >= 0; OldestPendingAge is 0 when unknown.
type Snapshot struct {
	Key              queue.Key
	Pending          int
	Reserved         int
	Delayed          int
	OldestPendingAge time.Duration
	ThroughputPerMin float64
	AvgJobDuration   time.Duration
	FailureRatePct   float64
	WorkerUtilPct    float64
	ActiveWorkers    int
	Timestamp        time.Time
}

// Backlog is the total not-yet-picked-up job count.
func (s Snapshot) Backlog() int {
	return s.Pending
}

// ProcessingRatePerSec converts the throughput figure to jobs/second.
func (s Snapshot) ProcessingRatePerSec() float64 {
	return s.ThroughputPerMin / 60.0
}
