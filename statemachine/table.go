package statemachine

import (
	"github.com/pkg/errors"
)

// Policy decides where EmergencyBrake may be entered from.
type Policy int

const (
	// EmergencyFromAnyState allows EmergencyBrake from every state short of
	// Safe and Shutdown, including EmergencyBrake itself so that repeated
	// escalations are accepted without changing anything.
	EmergencyFromAnyState Policy = iota
	// EmergencyFromListedStates only allows the edges listed in the base table.
	EmergencyFromListedStates
)

func (p Policy) String() string {
	if p == EmergencyFromListedStates {
		return "listed_states"
	}
	return "any_state"
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "any_state", "":
		*p = EmergencyFromAnyState
	case "listed_states":
		*p = EmergencyFromListedStates
	default:
		return errors.Errorf("unknown emergency policy %q", text)
	}
	return nil
}

type edge struct {
	from, to State
}

var baseEdges = []edge{
	{Idle, Calibrate},
	{Calibrate, Precharge},
	{Precharge, ReadyForLevitation},
	{ReadyForLevitation, BeginLevitation},
	{BeginLevitation, Levitating},
	{Levitating, Ready},
	{Ready, Accelerate},
	{Accelerate, LimBrake},
	{Accelerate, EmergencyBrake},
	{LimBrake, FrictionBrake},
	{EmergencyBrake, FrictionBrake},
	{EmergencyBrake, Safe},
	{FrictionBrake, StopLevitation},
	{StopLevitation, Stopped},
	{Stopped, Safe},
	{Safe, Shutdown},
}

// Table is a fixed adjacency table. It is built once and never mutated.
type Table struct {
	policy Policy
	edges  map[edge]struct{}
}

func NewTable(policy Policy) *Table {
	t := &Table{
		policy: policy,
		edges:  make(map[edge]struct{}, len(baseEdges)+len(stateNames)),
	}
	for _, e := range baseEdges {
		t.edges[e] = struct{}{}
	}
	if policy == EmergencyFromAnyState {
		for _, s := range States() {
			if s == Safe || s == Shutdown {
				continue
			}
			t.edges[edge{s, EmergencyBrake}] = struct{}{}
		}
	}
	return t
}

func (t *Table) Policy() Policy {
	return t.policy
}

// Allowed reports whether from -> to is in the table.
func (t *Table) Allowed(from, to State) bool {
	_, ok := t.edges[edge{from, to}]
	return ok
}

// Next lists the states reachable from s, in lifecycle order.
func (t *Table) Next(s State) []State {
	var next []State
	for _, to := range States() {
		if t.Allowed(s, to) {
			next = append(next, to)
		}
	}
	return next
}
