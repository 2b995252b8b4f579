package store

import (
	"errors"
	"sync"
	"time"
)

// Alert severities. The aggregator's HEALTHY/WARNING/CRITICAL machine states
// live in internal/health; alerts only ever carry these two.
const (
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// ErrNotFound is returned for lookups of unknown alert or prediction IDs.
var ErrNotFound = errors.New("not found")

// Alert is one raised alert. Alerts are never deleted — the acknowledgement
// flag is the only mutable field, and it moves in one direction only.
type Alert struct {
	ID             string     `json:"id"`
	MachineID      string     `json:"machine_id"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	PredictedHours int        `json:"predicted_hours"`
	Confidence     float64    `json:"confidence"`
	CreatedAt      time.Time  `json:"created_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	Source         string     `json:"source,omitempty"`
	PredictionID   string     `json:"prediction_id,omitempty"`
}

// AlertSummary holds the fleet-wide alert counters exposed by the API.
type AlertSummary struct {
	TotalAlerts            int `json:"total_alerts"`
	UnacknowledgedCritical int `json:"unacknowledged_critical"`
	UnacknowledgedWarning  int `json:"unacknowledged_warning"`
}

// AlertStore is a thread-safe in-memory alert store. Inserted alerts are kept
// for the process lifetime as an audit trail.
type AlertStore struct {
	mu    sync.RWMutex
	list  []*Alert
	byID  map[string]*Alert
	now   func() time.Time // injectable for deterministic tests
}

// NewAlertStore returns an empty AlertStore.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		byID: make(map[string]*Alert),
		now:  time.Now,
	}
}

// Insert stores a. The caller assigns ID and CreatedAt.
func (s *AlertStore) Insert(a *Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.list = append(s.list, &cp)
	s.byID[cp.ID] = &cp
}

// Get returns a copy of the alert with the given ID, or ErrNotFound.
func (s *AlertStore) Get(id string) (Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return Alert{}, ErrNotFound
	}
	return *a, nil
}

// Acknowledge marks the alert acknowledged and timestamps it. Acknowledging
// an already-acknowledged alert is a no-op (idempotent); an unknown ID
// returns ErrNotFound with no mutation.
func (s *AlertStore) Acknowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if a.Acknowledged {
		return nil
	}
	ts := s.now()
	a.Acknowledged = true
	a.AcknowledgedAt = &ts
	return nil
}

// List returns copies of all alerts, newest first. A non-nil acknowledged
// filter restricts the result to that acknowledgement state.
func (s *AlertStore) List(acknowledged *bool) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.list))
	for i := len(s.list) - 1; i >= 0; i-- {
		a := s.list[i]
		if acknowledged != nil && a.Acknowledged != *acknowledged {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// ListForMachine returns copies of the machine's unacknowledged alerts,
// newest first.
func (s *AlertStore) ListForMachine(machineID string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0)
	for i := len(s.list) - 1; i >= 0; i-- {
		a := s.list[i]
		if a.MachineID == machineID && !a.Acknowledged {
			out = append(out, *a)
		}
	}
	return out
}

// CountUnacked returns the machine's unacknowledged alert count, and the
// unacknowledged CRITICAL count.
func (s *AlertStore) CountUnacked(machineID string) (total, critical int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.list {
		if a.MachineID != machineID || a.Acknowledged {
			continue
		}
		total++
		if a.Severity == SeverityCritical {
			critical++
		}
	}
	return total, critical
}

// HasUnackedSince reports whether an unacknowledged alert of the given
// severity exists for the machine created at or after cutoff. This is the
// de-duplication probe: acknowledged alerts never block a new fire.
func (s *AlertStore) HasUnackedSince(machineID, severity string, cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.list {
		if a.MachineID == machineID && a.Severity == severity &&
			!a.Acknowledged && !a.CreatedAt.Before(cutoff) {
			return true
		}
	}
	return false
}

// CountSeveritySince counts the machine's alerts of the given severity
// created at or after cutoff, regardless of acknowledgement. Feeds the
// warning-escalation rule — acknowledging warnings does not reset the
// sustained-degradation signal.
func (s *AlertStore) CountSeveritySince(machineID, severity string, cutoff time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.list {
		if a.MachineID == machineID && a.Severity == severity && !a.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n
}

// Summary returns fleet-wide alert counters.
func (s *AlertStore) Summary() AlertSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := AlertSummary{TotalAlerts: len(s.list)}
	for _, a := range s.list {
		if a.Acknowledged {
			continue
		}
		switch a.Severity {
		case SeverityCritical:
			sum.UnacknowledgedCritical++
		case SeverityWarning:
			sum.UnacknowledgedWarning++
		}
	}
	return sum
}
