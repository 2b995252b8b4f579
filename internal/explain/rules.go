package explain

import (
	"fmt"

	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
)

// genericAnswer is returned for questions the rule engine cannot place in
// any category.
const genericAnswer = "I can answer questions about machine status, health scores, " +
	"alerts, failure predictions, maintenance recommendations and the fleet as a whole. " +
	"Try asking about a specific machine or the overall fleet."

// snapshotExplanation is the deterministic fallback narration for one
// machine snapshot, used when no language model is configured or reachable.
func snapshotExplanation(s health.Snapshot) string {
	switch s.Status {
	case health.StatusCritical:
		msg := fmt.Sprintf("%s is in a critical state with a health score of %.1f/100.", s.MachineID, s.HealthScore)
		if s.AnomalyRate > 30 {
			msg += fmt.Sprintf(" %.1f%% of recent readings show significant anomalies.", s.AnomalyRate)
		}
		if s.CriticalAlerts > 0 {
			msg += fmt.Sprintf(" There are %d unresolved critical alerts.", s.CriticalAlerts)
		}
		return msg + " Immediate inspection is advised."
	case health.StatusWarning:
		msg := fmt.Sprintf("%s shows early warning signs with a health score of %.1f/100.", s.MachineID, s.HealthScore)
		if s.HealthTrend < -2 {
			msg += fmt.Sprintf(" Health has declined %.1f points over recent readings.", -s.HealthTrend)
		} else if s.AnomalyRate > 15 {
			msg += fmt.Sprintf(" Anomalous readings account for %.1f%% of the recent window.", s.AnomalyRate)
		}
		return msg + " Schedule an inspection during the next maintenance window."
	default:
		msg := fmt.Sprintf("%s is operating normally with a health score of %.1f/100.", s.MachineID, s.HealthScore)
		if s.HealthTrend > 2 {
			msg += fmt.Sprintf(" Health is trending up by %.1f points.", s.HealthTrend)
		}
		return msg + " No action is needed."
	}
}

// trendInterpretation is the deterministic fallback narration of a trend
// window summary.
func trendInterpretation(machineID string, t health.TrendSummary) string {
	var direction string
	switch {
	case t.HealthChange > 5:
		direction = fmt.Sprintf("improved by %.1f points", t.HealthChange)
	case t.HealthChange < -5:
		direction = fmt.Sprintf("degraded by %.1f points", -t.HealthChange)
	default:
		direction = "remained stable"
	}

	msg := fmt.Sprintf("Over the last %d readings, %s's health has %s (%.1f to %.1f).",
		t.DataPoints, machineID, direction, t.HealthStart, t.HealthEnd)

	if t.AnomalySpikes > 0 {
		msg += fmt.Sprintf(" %d anomaly spikes were recorded, peaking at %.2f.", t.AnomalySpikes, t.MaxAnomaly)
	} else {
		msg += " No significant anomaly spikes were recorded."
	}

	if t.HealthChange < -10 {
		msg += " The rate of degradation warrants a maintenance check."
	}
	return msg
}

// ruleRecommendations produces exactly four maintenance actions from the
// inference result and the sensor excursions in the feature vector.
func ruleRecommendations(res predictor.Result, f predictor.Features) []string {
	recs := make([]string, 0, 4)

	switch res.Status {
	case predictor.StatusFailureLikely:
		recs = append(recs,
			fmt.Sprintf("Schedule emergency maintenance within %d hours.", res.TimeToFailureHours),
			"Reduce machine load to minimum viable output until serviced.")
	case predictor.StatusAtRisk:
		recs = append(recs,
			"Schedule preventive maintenance within the next maintenance window.",
			"Increase sensor polling frequency to catch rapid degradation.")
	default:
		recs = append(recs,
			"Continue normal operation under the standard maintenance schedule.",
			"No load reduction is required at current risk levels.")
	}

	if f.AirTemp > 302 || f.ProcessTemp > 312 {
		recs = append(recs, "Inspect the cooling system: operating temperatures exceed normal range.")
	} else if f.RPM > 1700 {
		recs = append(recs, "Review spindle speed settings: rotational speed is above the rated band.")
	} else if f.Torque > 55 {
		recs = append(recs, "Check for mechanical binding: torque draw is elevated.")
	} else if f.ToolWear > 200 {
		recs = append(recs, "Replace the cutting tool: wear exceeds the recommended service limit.")
	} else {
		recs = append(recs, "Verify sensor calibration at the next scheduled service.")
	}

	recs = append(recs, "Log this assessment in the maintenance record for trend tracking.")
	return recs
}

// answerMachine builds the rule-based chat answer for a single-machine
// question.
func answerMachine(cat Category, mc *MachineContext) string {
	s := mc.Snapshot
	switch cat {
	case CategoryStatus:
		return fmt.Sprintf("%s is currently %s with a health score of %.1f/100. The trend is %s.",
			s.MachineID, s.Status, s.HealthScore, mc.trendWord())
	case CategoryHealth:
		return fmt.Sprintf("%s has a health score of %.1f/100 (window average %.1f). "+
			"The anomaly rate over the recent window is %.1f%%.",
			s.MachineID, s.HealthScore, s.AvgHealth, s.AnomalyRate)
	case CategoryAlerts:
		if len(mc.Alerts) == 0 {
			return fmt.Sprintf("%s has no open alerts.", s.MachineID)
		}
		msg := fmt.Sprintf("%s has %d open alerts.", s.MachineID, len(mc.Alerts))
		for _, a := range mc.Alerts {
			msg += fmt.Sprintf(" [%s] %s.", a.Severity, a.Message)
		}
		return msg
	case CategoryRecommendation:
		switch s.Status {
		case health.StatusCritical:
			return fmt.Sprintf("%s needs immediate attention: arrange an inspection now and "+
				"reduce load until the root cause is found.", s.MachineID)
		case health.StatusWarning:
			return fmt.Sprintf("%s should be inspected during the next maintenance window. "+
				"Watch the anomaly rate (currently %.1f%%) in the meantime.", s.MachineID, s.AnomalyRate)
		default:
			return fmt.Sprintf("%s requires no action beyond the standard maintenance schedule.", s.MachineID)
		}
	case CategoryPrediction:
		if p := s.Prediction; p != nil {
			return fmt.Sprintf("The latest prediction for %s is %s with an estimated %d hours "+
				"to failure (confidence %d%%).", s.MachineID, p.Status, p.TimeToFailureHours, p.Confidence)
		}
		return fmt.Sprintf("No prediction is on record for %s yet. Run a prediction to get "+
			"a failure estimate.", s.MachineID)
	case CategoryCritical:
		if s.Status == health.StatusCritical {
			return fmt.Sprintf("Yes, %s is in a critical state (health %.1f/100, %d critical alerts).",
				s.MachineID, s.HealthScore, s.CriticalAlerts)
		}
		return fmt.Sprintf("%s is not critical: its current status is %s.", s.MachineID, s.Status)
	case CategoryFleet:
		return "Ask a fleet question without selecting a machine to get fleet-wide figures."
	default:
		return genericAnswer
	}
}

// answerFleet builds the rule-based chat answer for a fleet-wide question.
func answerFleet(cat Category, fc *FleetContext) string {
	s := fc.Summary
	switch cat {
	case CategoryStatus, CategoryFleet, CategoryHealth:
		return fmt.Sprintf("The fleet of %d machines averages %.1f/100 health: "+
			"%d healthy, %d in warning and %d critical.",
			s.TotalMachines, s.FleetHealth, s.HealthyMachines, s.WarningMachines, s.CriticalMachines)
	case CategoryAlerts:
		return fmt.Sprintf("There are %d unacknowledged alerts across the fleet, %d of them critical.",
			s.TotalUnacked, s.TotalCritical)
	case CategoryCritical:
		if s.CriticalMachines == 0 {
			return "No machines are currently in a critical state."
		}
		msg := fmt.Sprintf("%d machines are critical:", s.CriticalMachines)
		for _, m := range s.Machines {
			if m.Status == health.StatusCritical {
				msg += fmt.Sprintf(" %s (%.1f/100)", m.MachineID, m.HealthScore)
			}
		}
		return msg + "."
	case CategoryRecommendation:
		if s.CriticalMachines > 0 {
			return fmt.Sprintf("Prioritize the %d critical machines for inspection, then work "+
				"through the %d machines in warning.", s.CriticalMachines, s.WarningMachines)
		}
		if s.WarningMachines > 0 {
			return fmt.Sprintf("Schedule inspections for the %d machines in warning during the "+
				"next maintenance window.", s.WarningMachines)
		}
		return "The fleet is healthy. Keep to the standard maintenance schedule."
	case CategoryPrediction:
		return "Failure predictions are per machine. Select a machine and ask again, or run " +
			"a prediction for the machine you are interested in."
	default:
		return genericAnswer
	}
}
