package explain

import (
	"fmt"
	"strings"

	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// MachineContext is the retrieval bundle assembled for a single-machine
// question: the current snapshot, the freshest raw reading and any open
// alerts. It is rendered into the prompt sent to the language model and
// also drives the rule-based answers when no model is reachable.
type MachineContext struct {
	Snapshot health.Snapshot
	Latest   *store.Reading
	Alerts   []store.Alert
}

// FleetContext is the retrieval bundle for fleet-wide questions.
type FleetContext struct {
	Summary health.FleetSummary
}

func (mc *MachineContext) trendWord() string {
	switch {
	case mc.Snapshot.HealthTrend > 2:
		return "improving"
	case mc.Snapshot.HealthTrend < -2:
		return "declining"
	default:
		return "stable"
	}
}

// Format renders the machine context as the plain-text block embedded in
// the model prompt.
func (mc *MachineContext) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Machine: %s\n", mc.Snapshot.MachineID)
	fmt.Fprintf(&b, "Current health score: %.1f/100\n", mc.Snapshot.HealthScore)
	fmt.Fprintf(&b, "Status: %s\n", mc.Snapshot.Status)
	fmt.Fprintf(&b, "Health trend: %s (%+.1f over recent readings)\n", mc.trendWord(), mc.Snapshot.HealthTrend)
	fmt.Fprintf(&b, "Anomaly rate: %.1f%%\n", mc.Snapshot.AnomalyRate)
	fmt.Fprintf(&b, "Readings on record: %d\n", mc.Snapshot.DataPoints)
	if mc.Latest != nil {
		fmt.Fprintf(&b, "Latest reading: health=%.3f anomaly=%.3f at %s\n",
			mc.Latest.Health, mc.Latest.AnomalyScore, mc.Latest.Timestamp.Format("2006-01-02 15:04:05"))
	}
	if len(mc.Alerts) == 0 {
		b.WriteString("Open alerts: none\n")
	} else {
		fmt.Fprintf(&b, "Open alerts: %d\n", len(mc.Alerts))
		for _, a := range mc.Alerts {
			fmt.Fprintf(&b, "  - [%s] %s (confidence %.0f%%)\n", a.Severity, a.Message, a.Confidence*100)
		}
	}
	if p := mc.Snapshot.Prediction; p != nil {
		fmt.Fprintf(&b, "Latest prediction: %s, est. %dh to failure (confidence %d%%)\n",
			p.Status, p.TimeToFailureHours, p.Confidence)
	}
	return b.String()
}

// Format renders the fleet context as the plain-text block embedded in the
// model prompt.
func (fc *FleetContext) Format() string {
	s := fc.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Fleet of %d machines, average health %.1f/100\n", s.TotalMachines, s.FleetHealth)
	fmt.Fprintf(&b, "Breakdown: %d healthy, %d warning, %d critical\n",
		s.HealthyMachines, s.WarningMachines, s.CriticalMachines)
	fmt.Fprintf(&b, "Unacknowledged alerts: %d (%d critical)\n", s.TotalUnacked, s.TotalCritical)
	fmt.Fprintf(&b, "Average anomaly rate: %.1f%%\n", s.AvgAnomalyRate)
	for _, m := range s.Machines {
		fmt.Fprintf(&b, "  - %s: %.1f/100 (%s)\n", m.MachineID, m.HealthScore, m.Status)
	}
	return b.String()
}
