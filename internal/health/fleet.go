package health

import (
	"context"
	"sort"
)

// FleetSummary folds all per-machine snapshots into fleet-wide statistics.
type FleetSummary struct {
	FleetHealth      float64    `json:"fleet_health"`
	TotalMachines    int        `json:"total_machines"`
	CriticalMachines int        `json:"critical_machines"`
	WarningMachines  int        `json:"warning_machines"`
	HealthyMachines  int        `json:"healthy_machines"`
	TotalUnacked     int        `json:"total_unacknowledged_alerts"`
	TotalCritical    int        `json:"total_critical_alerts"`
	AvgAnomalyRate   float64    `json:"avg_anomaly_rate"`
	Machines         []Snapshot `json:"machines"`
}

// Fleet computes the fleet-wide summary. Machines without enough data are
// skipped; a fleet where no machine has data yields the zero-valued summary
// with an empty machine list, not an error.
func (a *Aggregator) Fleet(ctx context.Context) FleetSummary {
	sum := FleetSummary{Machines: []Snapshot{}}

	for _, id := range a.readings.Machines() {
		snap, err := a.Snapshot(ctx, id)
		if err != nil {
			// ErrInsufficientData is the only expected error here: the
			// machine simply isn't scoreable yet.
			continue
		}
		sum.Machines = append(sum.Machines, snap)
	}

	if len(sum.Machines) == 0 {
		return sum
	}

	var healthTotal, anomalyTotal float64
	for _, m := range sum.Machines {
		healthTotal += m.HealthScore
		anomalyTotal += m.AnomalyRate
		sum.TotalUnacked += m.UnackedAlerts
		sum.TotalCritical += m.CriticalAlerts
		switch m.Status {
		case StatusCritical:
			sum.CriticalMachines++
		case StatusWarning:
			sum.WarningMachines++
		default:
			sum.HealthyMachines++
		}
	}

	sum.TotalMachines = len(sum.Machines)
	sum.FleetHealth = round1(healthTotal / float64(len(sum.Machines)))
	sum.AvgAnomalyRate = round1(anomalyTotal / float64(len(sum.Machines)))

	// Worst machines first so dashboards surface what needs attention.
	sort.Slice(sum.Machines, func(i, j int) bool {
		return sum.Machines[i].HealthScore < sum.Machines[j].HealthScore
	})
	return sum
}
