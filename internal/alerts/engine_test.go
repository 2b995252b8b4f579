package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine() (*Engine, *store.AlertStore) {
	st := store.NewAlertStore()
	e := New(st, config.Default().Alerting)
	e.now = func() time.Time { return t0 }
	return e, st
}

func prediction(hours int, confidence float64) predictor.WindowPrediction {
	return predictor.WindowPrediction{
		MachineID:      "Machine_A",
		HoursToFailure: hours,
		Confidence:     confidence,
		CurrentHealth:  40,
		AnomalyRate:    0.5,
	}
}

func TestCandidateSeverity(t *testing.T) {
	cfg := config.Default().Alerting
	cases := []struct {
		hours      int
		confidence float64
		want       string
	}{
		{6, 0.90, store.SeverityCritical},
		{12, 0.85, store.SeverityCritical},
		{12, 0.78, store.SeverityCritical}, // caught by the 24h critical rule
		{24, 0.78, store.SeverityCritical},
		{24, 0.72, store.SeverityWarning},
		{48, 0.72, store.SeverityWarning},
		{48, 0.68, store.SeverityWarning}, // 72h catch-all
		{72, 0.66, store.SeverityWarning},
		{96, 0.90, ""},
		{6, 0.50, ""}, // below the confidence floor
	}
	for _, tc := range cases {
		got := candidateSeverity(tc.hours, tc.confidence, cfg)
		assert.Equal(t, tc.want, got, "hours=%d conf=%.2f", tc.hours, tc.confidence)
	}
}

func TestCandidateSeverity_ConfiguredLadder(t *testing.T) {
	cfg := config.Default().Alerting
	cfg.ConfidenceFloor = 0.5
	cfg.SeverityLadder = []config.SeverityRule{
		{MaxHours: 36, MinConfidence: 0.60, Severity: store.SeverityCritical},
		{MaxHours: 100, MinConfidence: 0, Severity: store.SeverityWarning},
	}

	assert.Equal(t, store.SeverityCritical, candidateSeverity(30, 0.65, cfg))
	assert.Equal(t, store.SeverityWarning, candidateSeverity(30, 0.55, cfg), "misses the first rung's confidence")
	assert.Equal(t, store.SeverityWarning, candidateSeverity(90, 0.90, cfg))
	assert.Equal(t, "", candidateSeverity(120, 0.90, cfg), "beyond the last rung")

	e, st := newEngine()
	e.SetConfig(cfg)
	a, outcome := e.Evaluate(prediction(30, 0.65), "test", "")
	require.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, store.SeverityCritical, a.Severity)
	assert.Len(t, st.List(nil), 1)
}

func TestEvaluate_BelowFloorIsNone(t *testing.T) {
	e, st := newEngine()
	a, outcome := e.Evaluate(prediction(12, 0.50), "test", "")
	assert.Nil(t, a)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Empty(t, st.List(nil))
}

func TestEvaluate_CreatesAlertWithMetadata(t *testing.T) {
	e, st := newEngine()
	a, outcome := e.Evaluate(prediction(12, 0.85), "automated_cycle", "pred-1")
	require.Equal(t, OutcomeCreated, outcome)
	require.NotNil(t, a)

	assert.Equal(t, store.SeverityCritical, a.Severity)
	assert.Equal(t, "Failure predicted within 12 hours", a.Message)
	assert.Equal(t, 12, a.PredictedHours)
	assert.Equal(t, 0.85, a.Confidence)
	assert.Equal(t, "automated_cycle", a.Source)
	assert.Equal(t, "pred-1", a.PredictionID)
	assert.Equal(t, t0, a.CreatedAt)
	assert.Len(t, st.List(nil), 1)
}

func TestEvaluate_DedupWithinCooldown(t *testing.T) {
	e, st := newEngine()

	_, outcome := e.Evaluate(prediction(12, 0.85), "test", "")
	require.Equal(t, OutcomeCreated, outcome)

	// Same severity 30 minutes later: suppressed.
	e.now = func() time.Time { return t0.Add(30 * time.Minute) }
	_, outcome = e.Evaluate(prediction(12, 0.85), "test", "")
	assert.Equal(t, OutcomeSuppressed, outcome)
	assert.Len(t, st.List(nil), 1, "exactly one unacked alert per severity")

	// A different severity is not a duplicate.
	_, outcome = e.Evaluate(prediction(48, 0.72), "test", "")
	assert.Equal(t, OutcomeCreated, outcome)

	// Past the cooldown the same severity fires again.
	e.now = func() time.Time { return t0.Add(2 * time.Hour) }
	_, outcome = e.Evaluate(prediction(12, 0.85), "test", "")
	assert.Equal(t, OutcomeCreated, outcome)
}

func TestEvaluate_AckUnblocksNextFire(t *testing.T) {
	e, st := newEngine()

	a, _ := e.Evaluate(prediction(12, 0.85), "test", "")
	require.NotNil(t, a)

	// Still inside the cooldown, but acknowledged alerts never block.
	require.NoError(t, e.Acknowledge(a.ID))
	e.now = func() time.Time { return t0.Add(10 * time.Minute) }
	_, outcome := e.Evaluate(prediction(12, 0.85), "test", "")
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Len(t, st.List(nil), 2)

	assert.ErrorIs(t, e.Acknowledge("missing"), store.ErrNotFound)
}

func TestEvaluate_EscalatesAfterRepeatedWarnings(t *testing.T) {
	e, st := newEngine()

	// Five warnings inside the escalation window. Acknowledge each so the
	// cooldown never suppresses the next one; the escalation counter must
	// see them regardless.
	for i := 0; i < 5; i++ {
		e.now = func() time.Time { return t0.Add(time.Duration(i) * 30 * time.Minute) }
		a, outcome := e.Evaluate(prediction(48, 0.72), "test", "")
		require.Equal(t, OutcomeCreated, outcome, "warning %d", i)
		require.Equal(t, store.SeverityWarning, a.Severity)
		require.NoError(t, e.Acknowledge(a.ID))
	}

	// The sixth candidate warning is promoted to critical.
	e.now = func() time.Time { return t0.Add(3 * time.Hour) }
	a, outcome := e.Evaluate(prediction(48, 0.72), "test", "")
	require.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, store.SeverityCritical, a.Severity)

	sum := st.Summary()
	assert.Equal(t, 6, sum.TotalAlerts)
	assert.Equal(t, 1, sum.UnacknowledgedCritical)
}

func TestEvaluate_OldWarningsDoNotEscalate(t *testing.T) {
	e, _ := newEngine()

	// Five warnings, but spread outside the 6h window relative to the final
	// evaluation.
	for i := 0; i < 5; i++ {
		e.now = func() time.Time { return t0.Add(time.Duration(i) * 30 * time.Minute) }
		a, _ := e.Evaluate(prediction(48, 0.72), "test", "")
		require.NotNil(t, a)
		require.NoError(t, e.Acknowledge(a.ID))
	}

	e.now = func() time.Time { return t0.Add(9 * time.Hour) }
	a, outcome := e.Evaluate(prediction(48, 0.72), "test", "")
	require.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, store.SeverityWarning, a.Severity, "stale warnings are outside the window")
}
