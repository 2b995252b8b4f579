package report

import (
	"fmt"
	"strings"
)

// renderText flattens a report into plain text, both for the text/plain
// endpoint variant and as the context block handed to the summary model.
func renderText(rep Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "FLEET CONDITION REPORT  %s\n\n", rep.GeneratedAt)
	fmt.Fprintf(&b, "Fleet: %d machines, average health %.1f/100\n", rep.Fleet.TotalMachines, rep.Fleet.FleetHealth)
	fmt.Fprintf(&b, "  healthy %d / warning %d / critical %d\n",
		rep.Fleet.HealthyMachines, rep.Fleet.WarningMachines, rep.Fleet.CriticalMachines)
	fmt.Fprintf(&b, "Alerts: %d open (%d critical, %d warning)\n\n",
		rep.Alerts.TotalAlerts, rep.Alerts.UnacknowledgedCritical, rep.Alerts.UnacknowledgedWarning)

	for _, m := range rep.Machines {
		s := m.Snapshot
		fmt.Fprintf(&b, "%s  [%s]  health %.1f/100, anomaly rate %.1f%%\n",
			s.MachineID, s.Status, s.HealthScore, s.AnomalyRate)
		if m.Trend.DataPoints > 0 {
			fmt.Fprintf(&b, "  24h trend: %.1f -> %.1f (%+.1f), %d anomaly spikes\n",
				m.Trend.HealthStart, m.Trend.HealthEnd, m.Trend.HealthChange, m.Trend.AnomalySpikes)
		}
		if p := s.Prediction; p != nil {
			fmt.Fprintf(&b, "  prediction: %s, est. %dh to failure (confidence %d%%)\n",
				p.Status, p.TimeToFailureHours, p.Confidence)
		}
		fmt.Fprintf(&b, "  %s\n", m.Narrative)
	}

	b.WriteString("\nRecommended actions:\n")
	for i, a := range rep.Actions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, a)
	}
	return b.String()
}

// RenderText is the exported text rendering, including the executive summary
// once it has been attached.
func RenderText(rep Report) string {
	var b strings.Builder
	b.WriteString(renderText(rep))
	if rep.ExecutiveSummary != "" {
		fmt.Fprintf(&b, "\nSummary: %s\n", rep.ExecutiveSummary)
	}
	return b.String()
}
