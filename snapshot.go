package hyped

import (
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"sync"
)

type readingKey struct {
	board comms.Board
	id    comms.MeasurementID
}

// Snapshot is the latest known value of every measurement on the pod.
type Snapshot struct {
	mu       sync.RWMutex
	readings map[readingKey]comms.Data
	state    statemachine.State
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		readings: map[readingKey]comms.Data{},
	}
}

// Update records r and reports whether it changed the stored value.
func (s *Snapshot) Update(r comms.MeasurementReading) (changed bool) {
	key := readingKey{board: r.Board, id: r.Measurement}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.readings[key]; ok && prev == r.Reading {
		return false
	}
	s.readings[key] = r.Reading
	return true
}

func (s *Snapshot) SetState(state statemachine.State) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.state != state
	s.state = state
	return
}

func (s *Snapshot) Reading(board comms.Board, id comms.MeasurementID) (comms.Data, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.readings[readingKey{board: board, id: id}]
	return d, ok
}

func (s *Snapshot) State() statemachine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
