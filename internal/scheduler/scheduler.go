package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsentry/fleetsentry/internal/alerts"
	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// heuristicSource tags predictions and alerts produced by the cycle.
const heuristicSource = "scheduler"

// CycleResult summarizes one evaluation cycle.
type CycleResult struct {
	RanAt            string `json:"ran_at"`
	MachinesChecked  int    `json:"machines_checked"`
	MachinesSkipped  int    `json:"machines_skipped"`
	PredictionsMade  int    `json:"predictions_made"`
	AlertsGenerated  int    `json:"alerts_generated"`
	AlertsSuppressed int    `json:"alerts_suppressed"`
}

// Scheduler runs the evaluation cycle on a fixed interval and on demand.
type Scheduler struct {
	readings    *store.ReadingLog
	predictions *store.PredictionStore
	engine      *alerts.Engine

	runMu sync.Mutex // serializes cycles across timer and API triggers

	mu  sync.RWMutex
	cfg cycleConfig

	rng *rand.Rand
	now func() time.Time
}

type cycleConfig struct {
	interval      time.Duration
	windowSize    int
	anomalyCutoff float64
}

// New wires a Scheduler. The random source is seeded from the clock; tests
// inject their own for determinism.
func New(readings *store.ReadingLog, predictions *store.PredictionStore, engine *alerts.Engine, cfg config.Config) *Scheduler {
	return &Scheduler{
		readings:    readings,
		predictions: predictions,
		engine:      engine,
		cfg: cycleConfig{
			interval:      cfg.Scheduler.Interval,
			windowSize:    cfg.Scoring.WindowSize,
			anomalyCutoff: cfg.Scoring.AnomalyCutoff,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// SetConfig swaps the cycle parameters. The new interval takes effect on the
// next tick.
func (s *Scheduler) SetConfig(cfg config.Config) {
	s.mu.Lock()
	s.cfg = cycleConfig{
		interval:      cfg.Scheduler.Interval,
		windowSize:    cfg.Scoring.WindowSize,
		anomalyCutoff: cfg.Scoring.AnomalyCutoff,
	}
	s.mu.Unlock()
}

func (s *Scheduler) config() cycleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Run executes one cycle immediately, then one per interval until ctx is
// canceled. Intended to be started as a goroutine from main.
func (s *Scheduler) Run(ctx context.Context) {
	res := s.RunOnce(ctx)
	slog.Info("scheduler: startup cycle complete",
		"checked", res.MachinesChecked, "alerts", res.AlertsGenerated)

	ticker := time.NewTicker(s.config().interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return
		case <-ticker.C:
			res := s.RunOnce(ctx)
			slog.Info("scheduler: cycle complete",
				"checked", res.MachinesChecked,
				"skipped", res.MachinesSkipped,
				"predictions", res.PredictionsMade,
				"alerts", res.AlertsGenerated,
				"suppressed", res.AlertsSuppressed)
			ticker.Reset(s.config().interval)
		}
	}
}

// RunOnce evaluates every known machine once. Cycles are serialized: a
// manual trigger arriving mid-cycle waits for the running one to finish.
// Per-machine failures are logged and skipped, never abort the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) CycleResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	cfg := s.config()
	res := CycleResult{RanAt: s.now().UTC().Format(time.RFC3339)}

	for _, machineID := range s.readings.Machines() {
		if ctx.Err() != nil {
			break
		}
		res.MachinesChecked++

		window := s.readings.LastN(machineID, cfg.windowSize)
		pred, err := predictor.FromWindow(machineID, window, cfg.anomalyCutoff, s.rng)
		if err != nil {
			if !errors.Is(err, health.ErrInsufficientData) {
				slog.Warn("scheduler: machine evaluation failed", "machine", machineID, "err", err)
			}
			res.MachinesSkipped++
			continue
		}

		stored := s.record(machineID, pred)
		res.PredictionsMade++

		alert, outcome := s.engine.Evaluate(pred, heuristicSource, stored.ID)
		switch outcome {
		case alerts.OutcomeCreated:
			res.AlertsGenerated++
			if err := s.predictions.LinkAlert(stored.ID, alert.ID); err != nil {
				slog.Warn("scheduler: link alert", "prediction", stored.ID, "err", err)
			}
		case alerts.OutcomeSuppressed:
			res.AlertsSuppressed++
		}
	}
	return res
}

// record converts a window prediction into a stored prediction row.
func (s *Scheduler) record(machineID string, p predictor.WindowPrediction) *store.Prediction {
	status := predictor.StatusHealthy
	switch {
	case p.HoursToFailure <= 24:
		status = predictor.StatusFailureLikely
	case p.HoursToFailure <= 48:
		status = predictor.StatusAtRisk
	}

	row := &store.Prediction{
		ID:                 uuid.NewString(),
		MachineID:          machineID,
		FailureProbability: round3(1 - p.CurrentHealth/100),
		Confidence:         int(p.Confidence * 100),
		TimeToFailureHours: p.HoursToFailure,
		Status:             status,
		Source:             heuristicSource,
		CreatedAt:          s.now().UTC(),
	}
	s.predictions.Insert(row)
	return row
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
