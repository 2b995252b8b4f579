package health

import "github.com/fleetsentry/fleetsentry/internal/store"

// spikeCutoff is the anomaly level counted as a spike in trend summaries.
// Deliberately lower than the aggregator's significance cutoff — trend views
// surface elevated readings the scorer would ignore.
const spikeCutoff = 0.5

// TrendSummary is the statistical digest of a time-windowed reading series.
type TrendSummary struct {
	HealthStart   float64 `json:"health_start"`
	HealthEnd     float64 `json:"health_end"`
	HealthChange  float64 `json:"health_change"`
	AvgAnomaly    float64 `json:"avg_anomaly"`
	MaxAnomaly    float64 `json:"max_anomaly"`
	AnomalySpikes int     `json:"anomaly_spikes"`
	DataPoints    int     `json:"duration_points"`
}

// SummarizeTrend digests a chronological reading series. An empty series
// yields the zero-valued summary.
func SummarizeTrend(series []store.Reading) TrendSummary {
	if len(series) == 0 {
		return TrendSummary{}
	}

	var anomalySum, anomalyMax float64
	spikes := 0
	for _, r := range series {
		a := r.AnomalyScore
		anomalySum += a
		if a > anomalyMax {
			anomalyMax = a
		}
		if a > spikeCutoff {
			spikes++
		}
	}

	first := normalizeHealth(series[0].Health)
	last := normalizeHealth(series[len(series)-1].Health)

	return TrendSummary{
		HealthStart:   round3(first),
		HealthEnd:     round3(last),
		HealthChange:  round3(last - first),
		AvgAnomaly:    round3(anomalySum / float64(len(series))),
		MaxAnomaly:    round3(anomalyMax),
		AnomalySpikes: spikes,
		DataPoints:    len(series),
	}
}
