package statemachine

import (
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestStateNames(t *testing.T) {
	for _, s := range States() {
		parsed, err := ParseState(s.String())
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)

		code, err := FromCode(uint8(s))
		assert.NoError(t, err)
		assert.Equal(t, s, code)
	}
	assert.Equal(t, "ready_for_levitation", ReadyForLevitation.String())
	assert.Equal(t, uint8(14), uint8(Shutdown))

	_, err := FromCode(15)
	assert.True(t, errors.Is(err, ErrUnknownState))
	_, err = ParseState("warp")
	assert.True(t, errors.Is(err, ErrUnknownState))
}

func TestStateText(t *testing.T) {
	var s State
	assert.NoError(t, s.UnmarshalText([]byte("emergency_brake")))
	assert.Equal(t, EmergencyBrake, s)
	text, err := Levitating.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "levitating", string(text))
}

func TestCellWatch(t *testing.T) {
	c := NewCell()
	assert.Equal(t, Idle, c.Load())

	w := c.Watch(1)
	c.Store(Calibrate)
	c.Store(Precharge)
	assert.Equal(t, Precharge, c.Load())
	// the slow watcher only keeps the newest value
	assert.Equal(t, Precharge, <-w)
	select {
	case s := <-w:
		t.Fatalf("unexpected pending state %s", s)
	default:
	}
}

func TestPolicyText(t *testing.T) {
	var p Policy
	assert.NoError(t, p.UnmarshalText([]byte("listed_states")))
	assert.Equal(t, EmergencyFromListedStates, p)
	assert.NoError(t, p.UnmarshalText([]byte("any_state")))
	assert.Equal(t, EmergencyFromAnyState, p)
	assert.Error(t, p.UnmarshalText([]byte("nowhere")))

	text, err := EmergencyFromListedStates.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "listed_states", string(text))
}
