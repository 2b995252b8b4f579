package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fleetsentry/fleetsentry/internal/explain"
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	fleet health.FleetSummary
}

func (s *stubSource) Snapshot(ctx context.Context, machineID string) (health.Snapshot, error) {
	for _, m := range s.fleet.Machines {
		if m.MachineID == machineID {
			return m, nil
		}
	}
	return health.Snapshot{}, health.ErrInsufficientData
}

func (s *stubSource) Fleet(ctx context.Context) health.FleetSummary { return s.fleet }

func newGenerator(fleet health.FleetSummary) (*Generator, *store.ReadingLog, *store.AlertStore) {
	readings := store.NewReadingLog()
	alerts := store.NewAlertStore()
	narrator := explain.NewService(explain.NewChain(0), readings, alerts)
	src := &stubSource{fleet: fleet}
	narrator.SetSource(src)

	g := NewGenerator(src, narrator, readings, alerts)
	g.now = func() time.Time { return t0 }
	return g, readings, alerts
}

func TestBuild_EmptyFleet(t *testing.T) {
	g, _, _ := newGenerator(health.FleetSummary{Machines: []health.Snapshot{}})
	rep := g.Build(context.Background())

	if rep.GeneratedAt == "" {
		t.Error("GeneratedAt: missing")
	}
	if !strings.Contains(rep.ExecutiveSummary, "No machines") {
		t.Errorf("summary: %q", rep.ExecutiveSummary)
	}
	if len(rep.Actions) != 1 || !strings.Contains(rep.Actions[0], "No corrective actions") {
		t.Errorf("actions: %v", rep.Actions)
	}
	if rep.Model != "rule-based" {
		t.Errorf("model: got %s, want rule-based", rep.Model)
	}
}

func TestBuild_SectionsAndActions(t *testing.T) {
	fleet := health.FleetSummary{
		FleetHealth:      51.0,
		TotalMachines:    2,
		CriticalMachines: 1,
		HealthyMachines:  1,
		Machines: []health.Snapshot{
			{MachineID: "Machine_B", Status: health.StatusCritical, HealthScore: 22, AnomalyRate: 60, CriticalAlerts: 1},
			{MachineID: "Machine_A", Status: health.StatusHealthy, HealthScore: 80, AnomalyRate: 2},
		},
	}
	g, readings, alerts := newGenerator(fleet)
	alerts.Insert(&store.Alert{ID: "a1", MachineID: "Machine_B",
		Severity: store.SeverityCritical, CreatedAt: t0.Add(-time.Hour)})
	for i := 0; i < 5; i++ {
		readings.Append(store.Reading{
			MachineID: "Machine_B", Timestamp: t0.Add(-time.Duration(5-i) * time.Hour),
			Health: float64(40 - i*5), AnomalyScore: 0.8,
		})
	}

	rep := g.Build(context.Background())

	if len(rep.Machines) != 2 {
		t.Fatalf("machine sections: got %d, want 2", len(rep.Machines))
	}
	if rep.Machines[0].Trend.DataPoints != 5 {
		t.Errorf("Machine_B trend points: got %d, want 5", rep.Machines[0].Trend.DataPoints)
	}
	if rep.Machines[0].Narrative == "" {
		t.Error("narrative: missing")
	}
	if rep.Alerts.UnacknowledgedCritical != 1 {
		t.Errorf("alert summary: got %+v", rep.Alerts)
	}
	if !strings.Contains(rep.Actions[0], "Machine_B") || !strings.Contains(rep.Actions[0], "immediately") {
		t.Errorf("first action should target the critical machine: %q", rep.Actions[0])
	}
	if !strings.Contains(rep.ExecutiveSummary, "1 machines are critical") {
		t.Errorf("summary: %q", rep.ExecutiveSummary)
	}
}

func TestRenderText(t *testing.T) {
	g, _, _ := newGenerator(health.FleetSummary{
		FleetHealth:   70,
		TotalMachines: 1,
		Machines: []health.Snapshot{
			{MachineID: "Machine_A", Status: health.StatusHealthy, HealthScore: 70},
		},
	})
	rep := g.Build(context.Background())
	text := RenderText(rep)

	for _, want := range []string{"FLEET CONDITION REPORT", "Machine_A", "Recommended actions", "Summary:"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q", want)
		}
	}
}
