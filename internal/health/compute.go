package health

import (
	"errors"
	"math"

	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// Machine status constants returned by the status vote.
const (
	StatusHealthy  = "HEALTHY"
	StatusWarning  = "WARNING"
	StatusCritical = "CRITICAL"
	StatusUnknown  = "UNKNOWN"
)

// Smoothing weights for the health score blend. Recency dominates but a
// single noisy reading cannot swing the score. They must sum to 1.0.
const (
	weightRecent  = 0.7
	weightAverage = 0.3
)

// ErrInsufficientData reports a window smaller than the configured minimum.
// Callers treat it as "not yet available", not as a failure.
var ErrInsufficientData = errors.New("insufficient data")

// AlertCounts is the machine's live alert state at evaluation time. It is the
// third voting signal next to the score and the anomaly rate.
type AlertCounts struct {
	Unacknowledged int
	Critical       int
}

// Snapshot is the derived, never-persisted health view of one machine.
type Snapshot struct {
	MachineID      string            `json:"machine_id"`
	HealthScore    float64           `json:"health_score"` // smoothed, 0–100
	AvgHealth      float64           `json:"avg_health"`
	HealthTrend    float64           `json:"health_trend"` // positive = improving
	AnomalyRate    float64           `json:"anomaly_rate"` // percent of window
	AvgAnomaly     float64           `json:"avg_anomaly"`
	Status         string            `json:"status"`
	RecentStatus   string            `json:"recent_status"`
	UnackedAlerts  int               `json:"unacknowledged_alerts"`
	CriticalAlerts int               `json:"critical_alerts"`
	DataPoints     int               `json:"data_points"`
	LastUpdated    string            `json:"last_updated,omitempty"` // RFC3339
	Prediction     *store.Prediction `json:"latest_prediction,omitempty"`
	Explanation    string            `json:"explanation,omitempty"`
}

// Compute derives a Snapshot from the machine's reading window, newest first,
// and its current alert counts. It is a pure function of its inputs: given
// the same window, counts and thresholds it always returns the same result.
//
// Health values recorded as fractions (0 < h ≤ 1, a legacy encoding) are
// normalized to percentages.
func Compute(machineID string, window []store.Reading, counts AlertCounts, cfg config.ScoringConfig) (Snapshot, error) {
	if len(window) < cfg.MinReadings {
		return Snapshot{}, ErrInsufficientData
	}

	healths := make([]float64, len(window))
	for i, r := range window {
		healths[i] = normalizeHealth(r.Health)
	}

	avgHealth := mean(healths)
	recentN := cfg.RecentCount
	if recentN > len(healths) {
		recentN = len(healths)
	}
	recentHealth := mean(healths[:recentN])

	smoothed := recentHealth*weightRecent + avgHealth*weightAverage
	trend := recentHealth - avgHealth

	var anomalySum float64
	significant := 0
	for _, r := range window {
		anomalySum += r.AnomalyScore
		if r.AnomalyScore > cfg.AnomalyCutoff {
			significant++
		}
	}
	anomalyRate := float64(significant) / float64(len(window)) * 100

	snap := Snapshot{
		MachineID:      machineID,
		HealthScore:    round1(smoothed),
		AvgHealth:      round1(avgHealth),
		HealthTrend:    round1(trend),
		AnomalyRate:    round1(anomalyRate),
		AvgAnomaly:     round3(anomalySum / float64(len(window))),
		RecentStatus:   window[0].Status,
		UnackedAlerts:  counts.Unacknowledged,
		CriticalAlerts: counts.Critical,
		DataPoints:     len(window),
	}
	snap.Status = vote(smoothed, anomalyRate, counts, cfg)
	return snap, nil
}

// vote derives the composite status from three independent signals. A lone
// critical signal only yields WARNING — corroborating evidence is required
// before declaring CRITICAL, which suppresses false positives from a single
// noisy sensor.
func vote(smoothed, anomalyRate float64, counts AlertCounts, cfg config.ScoringConfig) string {
	critical, warning := 0, 0

	if smoothed < cfg.HealthCriticalBelow {
		critical++
	} else if smoothed < cfg.HealthWarningBelow {
		warning++
	}

	if anomalyRate > cfg.AnomalyRateCritical {
		critical++
	} else if anomalyRate > cfg.AnomalyRateWarning {
		warning++
	}

	if counts.Critical > 2 {
		critical++
	} else if counts.Critical > 0 || counts.Unacknowledged > 3 {
		warning++
	}

	switch {
	case critical >= 2:
		return StatusCritical
	case critical >= 1 || warning >= 2:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// normalizeHealth converts a legacy fractional health value to a percentage.
func normalizeHealth(h float64) float64 {
	if h > 0 && h <= 1 {
		return h * 100
	}
	return h
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
