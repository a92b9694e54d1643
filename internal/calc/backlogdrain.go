package calc

// DrainUrgency classifies how close a queue is to breaching its SLO,
// in ascending order of severity.
type DrainUrgency string

const (
	UrgencyNone     DrainUrgency = "none"
	UrgencyElevated DrainUrgency = "elevated"
	UrgencyWarning  DrainUrgency = "warning"
	UrgencyCritical DrainUrgency = "critical"
	UrgencyBreached DrainUrgency = "breached"
)

// BacklogDrain implements spec.md §4.3: the urgency-weighted worker
// count needed to drain the backlog before (or shortly after) the SLO
// is breached. Pure function of its inputs, no state.
func BacklogDrain(backlog int, oldestAge, slo, serviceSeconds float64, breachThreshold float64) (workers float64, urgency DrainUrgency) {
	if backlog <= 0 {
		return 0, UrgencyNone
	}
	if serviceSeconds <= 0 {
		return 0, UrgencyNone
	}

	// Fallback: backlog exists but the oldest-age signal hasn't
	// arrived yet (cold metrics). Use a neutral jobs-per-worker ratio
	// with no urgency multiplier.
	if oldestAge <= 0 {
		jobsPerWorker := slo / serviceSeconds
		if jobsPerWorker < 1.0 {
			jobsPerWorker = 1.0
		}
		return float64(backlog) / jobsPerWorker, UrgencyNone
	}

	if slo <= 0 {
		// No SLO to measure progress against; treat as already breached.
		return float64(backlog) / maxFloat(serviceSeconds, 0.1), UrgencyBreached
	}

	p := oldestAge / slo

	switch {
	case p >= 1.0:
		base := float64(backlog) / maxFloat(serviceSeconds, 0.1)
		return base * 3.0, UrgencyBreached
	case p >= 0.9:
		base := timeUntilBreachBase(backlog, slo, oldestAge, serviceSeconds)
		return base * 2.0, UrgencyCritical
	case p >= breachThreshold:
		base := timeUntilBreachBase(backlog, slo, oldestAge, serviceSeconds)
		return base * 1.5, UrgencyWarning
	case breachThreshold > 0.5 && p >= 0.5:
		base := timeUntilBreachBase(backlog, slo, oldestAge, serviceSeconds)
		return base * 1.2, UrgencyElevated
	default:
		return 0, UrgencyNone
	}
}

func timeUntilBreachBase(backlog int, slo, oldestAge, serviceSeconds float64) float64 {
	jobsPerWorker := (slo - oldestAge) / serviceSeconds
	if jobsPerWorker < 1.0 {
		jobsPerWorker = 1.0
	}
	return float64(backlog) / jobsPerWorker
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
