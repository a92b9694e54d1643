// Package estimator computes an effective arrival rate per queue from
// backlog deltas observed between ticks, per spec.md §4.2. It mirrors
// the single-sample-history bookkeeping go-coffee's LoadPredictor does
// with a sliding window, simplified to the one-entry-per-key history
// spec.md calls for.
package estimator

import (
	"sync"
	"time"

	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Source identifies where a particular estimate came from, echoed in
// logs and in the strategy's reason string.
type Source string

const (
	SourceNoHistory        Source = "no_history"
	SourceIntervalTooShort Source = "interval_too_short"
	SourceHistoryStale     Source = "history_stale"
	SourceFresh            Source = "fresh"
)

// Estimate is the result of one Estimate call.
type Estimate struct {
	RatePerSec float64
	Confidence float64
	Source     Source
}

type sample struct {
	backlog   int
	timestamp time.Time
	rate      float64
}

// historyTTL marks entries older than this as stale (spec.md §3).
const historyTTL = 60 * time.Second

// minInterval rejects intervals shorter than this to avoid division
// blowups from back-to-back ticks (spec.md §4.2 step 3).
const minInterval = 1 * time.Second

// Estimator holds a bounded (one entry per key) history and is
// mutated only by the strategy during evaluation, per spec.md §5.
type Estimator struct {
	mu      sync.Mutex
	history map[queue.Key]sample
}

// New creates an empty Estimator.
func New() *Estimator {
	return &Estimator{history: make(map[queue.Key]sample)}
}

// Estimate implements the algorithm of spec.md §4.2 exactly, using
// now as the current time so callers (and tests) control the clock.
func (e *Estimator) Estimate(key queue.Key, now time.Time, currentBacklog int, processingRate float64) Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	prior, ok := e.history[key]
	if !ok {
		e.history[key] = sample{backlog: currentBacklog, timestamp: now, rate: processingRate}
		return Estimate{RatePerSec: processingRate, Confidence: 0.3, Source: SourceNoHistory}
	}

	dt := now.Sub(prior.timestamp)

	if dt < minInterval {
		return Estimate{RatePerSec: processingRate, Confidence: 0.3, Source: SourceIntervalTooShort}
	}

	if dt > historyTTL {
		e.history[key] = sample{backlog: currentBacklog, timestamp: now, rate: processingRate}
		return Estimate{RatePerSec: processingRate, Confidence: 0.4, Source: SourceHistoryStale}
	}

	deltaBacklog := currentBacklog - prior.backlog
	growth := float64(deltaBacklog) / dt.Seconds()
	rate := processingRate + growth
	if rate < 0 {
		rate = 0
	}

	confidence := confidenceFor(dt, deltaBacklog)

	e.history[key] = sample{backlog: currentBacklog, timestamp: now, rate: rate}
	return Estimate{RatePerSec: rate, Confidence: confidence, Source: SourceFresh}
}

// confidenceFor implements the decay spec.md §4.2 describes in prose:
// ~0.8 confidence when the interval is in the "well sampled" window
// and the backlog actually moved, decaying toward 0.5 otherwise.
func confidenceFor(dt time.Duration, deltaBacklog int) float64 {
	absDelta := deltaBacklog
	if absDelta < 0 {
		absDelta = -absDelta
	}

	wellSampled := dt >= 5*time.Second && dt <= 30*time.Second
	movedEnough := absDelta >= 3

	switch {
	case wellSampled && movedEnough:
		return 0.8
	case wellSampled || movedEnough:
		return 0.65
	default:
		return 0.5
	}
}

// Reset discards the history for a key, e.g. after a queue is removed
// from configuration.
func (e *Estimator) Reset(key queue.Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.history, key)
}
