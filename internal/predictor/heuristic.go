package predictor

import (
	"math"
	"math/rand"

	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// Minimum window size for the heuristic. Stricter than the aggregator's
// floor — lead-time estimates need more history than a health score.
const heuristicMinReadings = 10

// Confidence blend weights and clamp bounds for the window heuristic.
const (
	confWeightAnomaly = 0.40
	confWeightHealth  = 0.35
	confWeightTrend   = 0.25

	confFloor   = 0.45
	confCeiling = 0.88
)

// WindowPrediction is the heuristic's estimate for one machine, consumed by
// the alert engine during the automated evaluation cycle.
type WindowPrediction struct {
	MachineID      string  `json:"machine_id"`
	HoursToFailure int     `json:"hours_to_failure"`
	Confidence     float64 `json:"confidence"`
	CurrentHealth  float64 `json:"current_health"`
	AnomalyRate    float64 `json:"anomaly_rate"` // fraction of window, 0–1
}

// FromWindow estimates time-to-failure from the machine's reading window,
// newest first. The confidence is a weighted blend of the anomaly peak, the
// recent health level and the decline rate, clamped so the heuristic never
// claims near-certainty. rng supplies the jitter inside each lead-time band;
// tests pass a seeded source.
//
// Returns ErrInsufficientData-equivalent (health.ErrInsufficientData) when
// the window is too small to estimate a trend.
func FromWindow(machineID string, window []store.Reading, anomalyCutoff float64, rng *rand.Rand) (WindowPrediction, error) {
	if len(window) < heuristicMinReadings {
		return WindowPrediction{}, health.ErrInsufficientData
	}

	healths := make([]float64, len(window))
	for i, r := range window {
		h := r.Health
		if h > 0 && h <= 1 {
			h *= 100
		}
		healths[i] = h
	}

	var total float64
	for _, h := range healths {
		total += h
	}
	avgHealth := total / float64(len(healths))

	var recentTotal float64
	for _, h := range healths[:heuristicMinReadings] {
		recentTotal += h
	}
	recentHealth := recentTotal / float64(heuristicMinReadings)
	decline := avgHealth - recentHealth

	var maxAnomaly float64
	significant := 0
	for _, r := range window {
		if r.AnomalyScore > maxAnomaly {
			maxAnomaly = r.AnomalyScore
		}
		if r.AnomalyScore > anomalyCutoff {
			significant++
		}
	}
	anomalyRate := float64(significant) / float64(len(window))

	anomalyConf := math.Min(85, maxAnomaly*90)
	healthConf := math.Min(85, (100-recentHealth)*0.8)
	trendConf := math.Min(75, math.Abs(decline)*2.5)

	confidence := (anomalyConf*confWeightAnomaly +
		healthConf*confWeightHealth +
		trendConf*confWeightTrend) / 100
	confidence = clamp(confidence, confFloor, confCeiling)

	var hours int
	switch {
	case recentHealth < 30 && anomalyRate > 0.4:
		hours = randBetween(rng, 8, 18)
		confidence = math.Max(confidence, 0.80)
	case recentHealth < 45 && anomalyRate > 0.3:
		hours = randBetween(rng, 18, 36)
		confidence = math.Max(confidence, 0.70)
	case recentHealth < 55 || anomalyRate > 0.25:
		hours = randBetween(rng, 36, 60)
	case decline > 15:
		hours = randBetween(rng, 48, 96)
	default:
		// Stable machine: failure is days out and the heuristic should not
		// sound confident about the exact horizon.
		hours = randBetween(rng, 96, 168)
		confidence = math.Min(confidence, 0.65)
	}

	return WindowPrediction{
		MachineID:      machineID,
		HoursToFailure: hours,
		Confidence:     round3(confidence),
		CurrentHealth:  recentHealth,
		AnomalyRate:    anomalyRate,
	}, nil
}

func randBetween(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
