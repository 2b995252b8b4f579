package store

import (
	"sort"
	"sync"
	"time"
)

// Reading is one telemetry sample for a machine. Readings are immutable once
// appended and ordered by Timestamp per machine.
type Reading struct {
	MachineID    string    `json:"machine_id"`
	Timestamp    time.Time `json:"timestamp"`
	Health       float64   `json:"health"`
	AnomalyScore float64   `json:"anomaly_score"`
	Status       string    `json:"status"`
}

// ReadingLog is an append-only, thread-safe log of readings keyed by machine.
// A global insertion-ordered slice serves fleet-wide queries; per-machine
// slices serve the aggregation window lookups.
type ReadingLog struct {
	mu        sync.RWMutex
	all       []Reading
	byMachine map[string][]Reading
}

// NewReadingLog returns an empty ReadingLog.
func NewReadingLog() *ReadingLog {
	return &ReadingLog{byMachine: make(map[string][]Reading)}
}

// Append stores r. Callers are expected to append in timestamp order; the
// simulator, MQTT consumer and HTTP ingest all stamp readings at arrival.
func (l *ReadingLog) Append(r Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, r)
	l.byMachine[r.MachineID] = append(l.byMachine[r.MachineID], r)
}

// LastN returns up to n readings for the machine, newest first.
func (l *ReadingLog) LastN(machineID string, n int) []Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rs := l.byMachine[machineID]
	if n > len(rs) {
		n = len(rs)
	}
	out := make([]Reading, n)
	for i := 0; i < n; i++ {
		out[i] = rs[len(rs)-1-i]
	}
	return out
}

// History returns up to limit readings across all machines in chronological
// order. The newest readings win when the log is longer than limit — the
// query takes the tail, matching a newest-first fetch reversed to oldest →
// newest.
func (l *ReadingLog) History(limit int) []Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if limit > 0 && len(l.all) > limit {
		start = len(l.all) - limit
	}
	out := make([]Reading, len(l.all)-start)
	copy(out, l.all[start:])
	return out
}

// Series returns readings at or after since in chronological order.
// An empty machineID selects the whole fleet. An unknown machine yields an
// empty (non-nil) slice, not an error.
func (l *ReadingLog) Series(machineID string, since time.Time) []Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.all
	if machineID != "" {
		src = l.byMachine[machineID]
	}
	out := make([]Reading, 0)
	for _, r := range src {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out
}

// Machines returns the sorted set of machine IDs with at least one reading.
func (l *ReadingLog) Machines() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.byMachine))
	for id := range l.byMachine {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of readings stored for the machine.
func (l *ReadingLog) Count(machineID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byMachine[machineID])
}
