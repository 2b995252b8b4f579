package store

import (
	"sync"
	"time"
)

// Prediction is one classifier or heuristic inference result. Immutable
// apart from the AlertID back-link set when the closed loop raises an alert.
type Prediction struct {
	ID                 string    `json:"id"`
	MachineID          string    `json:"machine_id"`
	FailureProbability float64   `json:"failure_probability"`
	Confidence         int       `json:"confidence"`
	TimeToFailureHours int       `json:"time_to_failure_hours"`
	Status             string    `json:"status"`
	Source             string    `json:"source"`
	Recommendations    []string  `json:"recommendations,omitempty"`
	AlertID            string    `json:"alert_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// PredictionStore is a thread-safe in-memory prediction history.
type PredictionStore struct {
	mu   sync.RWMutex
	list []*Prediction
	byID map[string]*Prediction
}

// NewPredictionStore returns an empty PredictionStore.
func NewPredictionStore() *PredictionStore {
	return &PredictionStore{byID: make(map[string]*Prediction)}
}

// Insert stores p.
func (s *PredictionStore) Insert(p *Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.Recommendations = append([]string(nil), p.Recommendations...)
	s.list = append(s.list, &cp)
	s.byID[cp.ID] = &cp
}

// LinkAlert records the alert raised from the prediction.
func (s *PredictionStore) LinkAlert(predictionID, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[predictionID]
	if !ok {
		return ErrNotFound
	}
	p.AlertID = alertID
	return nil
}

// Latest returns a copy of the machine's most recent prediction.
func (s *PredictionStore) Latest(machineID string) (Prediction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.list) - 1; i >= 0; i-- {
		if s.list[i].MachineID == machineID {
			return *s.list[i], true
		}
	}
	return Prediction{}, false
}

// History returns up to limit predictions newest first. An empty machineID
// selects all machines.
func (s *PredictionStore) History(machineID string, limit int) []Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Prediction, 0, limit)
	for i := len(s.list) - 1; i >= 0; i-- {
		p := s.list[i]
		if machineID != "" && p.MachineID != machineID {
			continue
		}
		out = append(out, *p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
