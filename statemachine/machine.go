package statemachine

import (
	log "github.com/sirupsen/logrus"
)

// Machine is the authoritative pod state machine. It starts in Idle and only
// moves along edges of its table.
type Machine struct {
	table   *Table
	current State
}

func New(table *Table) *Machine {
	if table == nil {
		table = NewTable(EmergencyFromAnyState)
	}
	return &Machine{
		table:   table,
		current: Idle,
	}
}

func (m *Machine) Current() State {
	return m.current
}

// HandleTransition moves to requested if the table allows it and returns the
// new state. An invalid request leaves the machine untouched and returns false.
func (m *Machine) HandleTransition(requested State) (State, bool) {
	if !m.table.Allowed(m.current, requested) {
		log.WithField("from", m.current).
			WithField("to", requested).
			Warn("invalid transition requested")
		return m.current, false
	}
	log.WithField("from", m.current).
		WithField("to", requested).
		Info("transitioning")
	m.current = requested
	return requested, true
}

// Reset puts the machine back in Idle, as after a reboot.
func (m *Machine) Reset() {
	m.current = Idle
}
