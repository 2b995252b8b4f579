package health

import (
	"context"
	"sync"
	"time"

	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// Narrator turns a Snapshot into a short plain-language explanation. The
// implementation must always return something — internal/explain degrades to
// deterministic templates when no remote provider is reachable.
type Narrator interface {
	ExplainSnapshot(ctx context.Context, s Snapshot) string
}

// Aggregator computes machine snapshots and fleet summaries on demand from
// the reading log, the live alert counters and the latest predictions.
//
// All exported methods are safe for concurrent use; SetConfig may be called
// while queries are in flight (threshold hot-reload).
type Aggregator struct {
	readings    *store.ReadingLog
	alerts      *store.AlertStore
	predictions *store.PredictionStore
	narrator    Narrator

	mu  sync.RWMutex
	cfg config.ScoringConfig
}

// NewAggregator wires an Aggregator to its stores. Snapshots carry no
// explanation until a Narrator is attached with SetNarrator.
func NewAggregator(
	readings *store.ReadingLog,
	alerts *store.AlertStore,
	predictions *store.PredictionStore,
	cfg config.ScoringConfig,
) *Aggregator {
	return &Aggregator{
		readings:    readings,
		alerts:      alerts,
		predictions: predictions,
		cfg:         cfg,
	}
}

// SetNarrator attaches the explanation boundary. Called once during wiring,
// before the aggregator serves queries; the narrator is constructed after
// the aggregator because it reads snapshots for chat context.
func (a *Aggregator) SetNarrator(n Narrator) {
	a.mu.Lock()
	a.narrator = n
	a.mu.Unlock()
}

// SetConfig swaps the scoring thresholds.
func (a *Aggregator) SetConfig(cfg config.ScoringConfig) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

func (a *Aggregator) config() config.ScoringConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *Aggregator) currentNarrator() Narrator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.narrator
}

// Snapshot computes the machine's current health view. Returns
// ErrInsufficientData while the machine has fewer than the minimum readings.
func (a *Aggregator) Snapshot(ctx context.Context, machineID string) (Snapshot, error) {
	cfg := a.config()

	window := a.readings.LastN(machineID, cfg.WindowSize)
	unacked, critical := a.alerts.CountUnacked(machineID)

	snap, err := Compute(machineID, window, AlertCounts{
		Unacknowledged: unacked,
		Critical:       critical,
	}, cfg)
	if err != nil {
		return Snapshot{}, err
	}

	snap.LastUpdated = window[0].Timestamp.UTC().Format(time.RFC3339)
	if p, ok := a.predictions.Latest(machineID); ok {
		snap.Prediction = &p
	}
	if n := a.currentNarrator(); n != nil {
		snap.Explanation = n.ExplainSnapshot(ctx, snap)
	}
	return snap, nil
}
