package predictor

import "math"

// Qualitative statuses on the probability ladder. Distinct from the
// aggregator's machine statuses — these describe one inference result.
const (
	StatusHealthy       = "HEALTHY"
	StatusAtRisk        = "AT RISK"
	StatusFailureLikely = "FAILURE LIKELY"
)

// Result is a fully-mapped inference outcome.
type Result struct {
	FailureProbability float64 `json:"failure_probability"`
	HealthScore        float64 `json:"health_score"` // 1 - probability
	Status             string  `json:"status"`
	TimeToFailureHours int     `json:"time_to_failure_hours"`
	Confidence         int     `json:"confidence"` // percent, capped at 95
}

// FromProbability maps a failure probability onto the fixed, monotonic
// probability → lead-time ladder. Lead time shrinks from 48h toward 6h as
// the probability rises toward 1.0.
func FromProbability(p float64) Result {
	var status string
	var hours int
	switch {
	case p < 0.2:
		status, hours = StatusHealthy, 48
	case p < 0.3:
		status, hours = StatusHealthy, 42
	case p < 0.4:
		status, hours = StatusAtRisk, 36
	case p < 0.5:
		status, hours = StatusAtRisk, 30
	case p < 0.6:
		status, hours = StatusFailureLikely, 24
	case p < 0.7:
		status, hours = StatusFailureLikely, 18
	case p < 0.8:
		status, hours = StatusFailureLikely, 12
	default:
		status, hours = StatusFailureLikely, 6
	}

	confidence := int(math.Round(p * 100))
	if confidence > 95 {
		confidence = 95
	}

	return Result{
		FailureProbability: round3(p),
		HealthScore:        round3(1 - p),
		Status:             status,
		TimeToFailureHours: hours,
		Confidence:         confidence,
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
