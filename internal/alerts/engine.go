package alerts

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// Outcome classifies what one evaluation did, for cycle accounting and logs.
type Outcome string

const (
	OutcomeNone       Outcome = "none"       // prediction below alerting thresholds
	OutcomeSuppressed Outcome = "suppressed" // duplicate within cooldown
	OutcomeCreated    Outcome = "created"
)

// Engine evaluates predictions against the severity thresholds and manages
// the alert lifecycle. It assumes the caller serializes evaluation per
// machine (the scheduler holds a process-wide cycle lock); the internal
// mutex only protects the threshold config against hot-reload races.
type Engine struct {
	store *store.AlertStore

	mu  sync.RWMutex
	cfg config.AlertingConfig

	now func() time.Time // injectable for deterministic tests
}

// New creates an Engine writing to st.
func New(st *store.AlertStore, cfg config.AlertingConfig) *Engine {
	return &Engine{store: st, cfg: cfg, now: time.Now}
}

// SetConfig swaps the alerting thresholds.
func (e *Engine) SetConfig(cfg config.AlertingConfig) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Engine) config() config.AlertingConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Evaluate runs the alert state machine for one prediction. source tags the
// trigger ("automated_cycle" or "automated_prediction"); predictionID links
// the alert back to a stored prediction and may be empty.
//
// At most one alert is inserted. The returned alert is nil unless the
// outcome is OutcomeCreated.
func (e *Engine) Evaluate(p predictor.WindowPrediction, source, predictionID string) (*store.Alert, Outcome) {
	cfg := e.config()
	now := e.now()

	severity := candidateSeverity(p.HoursToFailure, p.Confidence, cfg)
	if severity == "" {
		return nil, OutcomeNone
	}

	// Escalation: repeated recent warnings mean sustained degradation that
	// individual warnings understate.
	if severity == store.SeverityWarning {
		recent := e.store.CountSeveritySince(p.MachineID, store.SeverityWarning, now.Add(-cfg.EscalationWindow))
		if recent >= cfg.EscalationCount {
			slog.Info("alerts: escalating to critical after repeated warnings",
				"machine", p.MachineID, "recent_warnings", recent)
			severity = store.SeverityCritical
		}
	}

	// De-duplication: an unacknowledged alert of the same severity within the
	// cooldown window blocks a new insert. Acknowledged alerts never block.
	if e.store.HasUnackedSince(p.MachineID, severity, now.Add(-cfg.Cooldown)) {
		slog.Debug("alerts: duplicate suppressed",
			"machine", p.MachineID, "severity", severity)
		return nil, OutcomeSuppressed
	}

	a := &store.Alert{
		ID:             uuid.NewString(),
		MachineID:      p.MachineID,
		Severity:       severity,
		Message:        fmt.Sprintf("Failure predicted within %d hours", p.HoursToFailure),
		PredictedHours: p.HoursToFailure,
		Confidence:     round3(p.Confidence),
		CreatedAt:      now,
		Source:         source,
		PredictionID:   predictionID,
	}
	e.store.Insert(a)

	slog.Warn("alert generated",
		"machine", p.MachineID,
		"severity", severity,
		"hours_to_failure", p.HoursToFailure,
		"confidence", a.Confidence,
	)
	return a, OutcomeCreated
}

// Acknowledge marks the alert acknowledged, immediately permitting a new
// alert of the same severity on the next evaluation. Unknown IDs return
// store.ErrNotFound with no mutation.
func (e *Engine) Acknowledge(id string) error {
	if err := e.store.Acknowledge(id); err != nil {
		return err
	}
	slog.Info("alert acknowledged", "alert_id", id)
	return nil
}

// candidateSeverity walks the configured severity ladder and returns the
// first matching rung's severity, or "" when no alert is warranted.
// Low-confidence predictions are suppressed entirely.
func candidateSeverity(hours int, confidence float64, cfg config.AlertingConfig) string {
	if confidence < cfg.ConfidenceFloor {
		return ""
	}
	for _, rule := range cfg.SeverityLadder {
		if hours <= rule.MaxHours && confidence > rule.MinConfidence {
			return rule.Severity
		}
	}
	return ""
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
