package hyped

import (
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestSnapshot(t *testing.T) {
	s := NewSnapshot()
	r := comms.MeasurementReading{Reading: comms.F32Data(1.5), Board: comms.BoardNavigation, Measurement: 4}

	assert.True(t, s.Update(r))
	assert.False(t, s.Update(r))
	r.Reading = comms.F32Data(2)
	assert.True(t, s.Update(r))

	d, ok := s.Reading(comms.BoardNavigation, 4)
	assert.True(t, ok)
	assert.Equal(t, comms.F32Data(2), d)

	// readings are kept per board
	_, ok = s.Reading(comms.BoardTelemetry, 4)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	assert.False(t, s.SetState(statemachine.Idle))
	assert.True(t, s.SetState(statemachine.Calibrate))
	assert.Equal(t, statemachine.Calibrate, s.State())
}
