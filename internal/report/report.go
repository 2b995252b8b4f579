package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetsentry/fleetsentry/internal/explain"
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// trendWindow bounds how far back the per-machine trend sections look.
const trendWindow = 24 * time.Hour

const summarySystemPrompt = "You are writing the executive summary of an industrial " +
	"fleet condition report. Summarize the state of the fleet in one short paragraph, " +
	"leading with whatever needs attention first. Plain prose, no markdown."

// Report is one generated fleet condition report.
type Report struct {
	GeneratedAt      string             `json:"generated_at"`
	ExecutiveSummary string             `json:"executive_summary"`
	Model            string             `json:"model_used"`
	Fleet            health.FleetSummary `json:"fleet"`
	Alerts           store.AlertSummary `json:"alerts"`
	Machines         []MachineSection   `json:"machines"`
	Actions          []string           `json:"recommended_actions"`
}

// MachineSection is the per-machine detail block.
type MachineSection struct {
	Snapshot  health.Snapshot     `json:"snapshot"`
	Trend     health.TrendSummary `json:"trend_24h"`
	Narrative string              `json:"narrative"`
}

// Generator builds reports from live fleet state.
type Generator struct {
	source   explain.SnapshotSource
	narrator *explain.Service
	readings *store.ReadingLog
	alerts   *store.AlertStore

	now func() time.Time
}

// NewGenerator wires a Generator to its state sources.
func NewGenerator(source explain.SnapshotSource, narrator *explain.Service, readings *store.ReadingLog, alerts *store.AlertStore) *Generator {
	return &Generator{
		source:   source,
		narrator: narrator,
		readings: readings,
		alerts:   alerts,
		now:      time.Now,
	}
}

// Build assembles a report from current state. It never fails: an empty
// fleet yields a report that says so.
func (g *Generator) Build(ctx context.Context) Report {
	now := g.now().UTC()
	fleet := g.source.Fleet(ctx)

	machines := make([]MachineSection, 0, len(fleet.Machines))
	for _, snap := range fleet.Machines {
		series := g.readings.Series(snap.MachineID, now.Add(-trendWindow))
		trend := health.SummarizeTrend(series)
		machines = append(machines, MachineSection{
			Snapshot:  snap,
			Trend:     trend,
			Narrative: g.narrator.InterpretTrend(snap.MachineID, trend),
		})
	}

	rep := Report{
		GeneratedAt: now.Format(time.RFC3339),
		Fleet:       fleet,
		Alerts:      g.alerts.Summary(),
		Machines:    machines,
		Actions:     fleetActions(fleet),
	}
	rep.ExecutiveSummary, rep.Model = g.summarize(ctx, rep)
	return rep
}

// summarize produces the executive summary, via the provider chain when one
// is configured and the deterministic template otherwise.
func (g *Generator) summarize(ctx context.Context, rep Report) (summary, model string) {
	if answer, model, ok := g.narrator.Narrate(ctx, summarySystemPrompt, renderText(rep)); ok {
		return answer, model
	}
	slog.Debug("report: using template executive summary")
	return templateSummary(rep.Fleet, rep.Alerts), "rule-based"
}

// templateSummary is the deterministic executive summary.
func templateSummary(fleet health.FleetSummary, alerts store.AlertSummary) string {
	if fleet.TotalMachines == 0 {
		return "No machines have reported enough telemetry to be scored yet."
	}

	msg := fmt.Sprintf("The fleet of %d machines averages %.1f/100 health.", fleet.TotalMachines, fleet.FleetHealth)
	switch {
	case fleet.CriticalMachines > 0:
		msg += fmt.Sprintf(" %d machines are critical and need immediate attention; %d more are in warning.",
			fleet.CriticalMachines, fleet.WarningMachines)
	case fleet.WarningMachines > 0:
		msg += fmt.Sprintf(" %d machines show warning signs and should be inspected soon.", fleet.WarningMachines)
	default:
		msg += " All machines are operating normally."
	}
	if alerts.UnacknowledgedCritical > 0 {
		msg += fmt.Sprintf(" %d critical alerts are awaiting acknowledgement.", alerts.UnacknowledgedCritical)
	}
	return msg
}

// fleetActions derives the prioritized action list from the fleet summary.
func fleetActions(fleet health.FleetSummary) []string {
	var actions []string
	for _, m := range fleet.Machines {
		switch m.Status {
		case health.StatusCritical:
			actions = append(actions, fmt.Sprintf("Inspect %s immediately (health %.1f/100, %d critical alerts).",
				m.MachineID, m.HealthScore, m.CriticalAlerts))
		case health.StatusWarning:
			actions = append(actions, fmt.Sprintf("Schedule maintenance for %s (health %.1f/100, anomaly rate %.1f%%).",
				m.MachineID, m.HealthScore, m.AnomalyRate))
		}
	}
	if len(actions) == 0 {
		actions = append(actions, "No corrective actions required. Continue the standard maintenance schedule.")
	}
	return actions
}
