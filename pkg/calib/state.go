package calib

import "sync"

// State is the in-memory calibration shared by the measurement path and the
// command path. Reads return a consistent snapshot; writes replace it whole.
type State struct {
	mu  sync.RWMutex
	rec Record
}

// NewState creates a State holding rec.
func NewState(rec Record) *State {
	return &State{rec: rec.normalized()}
}

// Snapshot returns the current record.
func (s *State) Snapshot() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

// Set marks offset as the valid calibration.
func (s *State) Set(offset float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = NewRecord(offset)
}

// Reset discards the calibration.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = Record{}
}
