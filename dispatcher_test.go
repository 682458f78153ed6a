package hyped

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/canbus"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

type receiverStub struct {
	frames chan comms.Frame
	errs   chan error
}

func newReceiverStub() *receiverStub {
	return &receiverStub{
		frames: make(chan comms.Frame, 16),
		errs:   make(chan error, 16),
	}
}

func (r *receiverStub) Receive(ctx context.Context) (comms.Frame, error) {
	select {
	case f := <-r.frames:
		return f, nil
	case err := <-r.errs:
		return comms.Frame{}, err
	case <-ctx.Done():
		return comms.Frame{}, ctx.Err()
	}
}

func TestDispatchByKind(t *testing.T) {
	_, codec := testPod(t)
	d := NewDispatcher(codec, newReceiverStub(), 4)
	commands := d.Commands()
	requests := d.Requests()
	heartbeats := d.Heartbeats()
	readings := d.Readings()

	msgs := []comms.Message{
		comms.StateTransitionCommand{FromBoard: comms.BoardTest, ToState: statemachine.EmergencyBrake},
		comms.StateTransitionRequest{RequestingBoard: comms.BoardNavigation, ToState: statemachine.Calibrate},
		comms.Heartbeat{To: comms.BoardKeyenceTester, From: comms.BoardTest},
		comms.MeasurementReading{Reading: comms.F32Data(0), Board: comms.BoardTelemetry, Measurement: 3},
	}
	for _, m := range msgs {
		f, err := codec.Encode(m)
		require.NoError(t, err)
		d.Dispatch(context.Background(), f)
	}

	assert.Equal(t, msgs[0], <-commands)
	assert.Equal(t, msgs[1], <-requests)
	assert.Equal(t, msgs[2], <-heartbeats)
	assert.Equal(t, msgs[3], <-readings)
}

func TestDispatchFanOut(t *testing.T) {
	_, codec := testPod(t)
	d := NewDispatcher(codec, newReceiverStub(), 4)
	a := d.Heartbeats()
	b := d.Heartbeats()

	hb := comms.Heartbeat{To: comms.BoardTelemetry, From: comms.BoardNavigation}
	d.Deliver(hb)
	assert.Equal(t, hb, <-a)
	assert.Equal(t, hb, <-b)
}

func TestSlowConsumerLosesOldest(t *testing.T) {
	_, codec := testPod(t)
	d := NewDispatcher(codec, newReceiverStub(), 2)
	readings := d.Readings()

	for i := uint32(1); i <= 5; i++ {
		d.Deliver(comms.MeasurementReading{Reading: comms.U32Data(i), Board: comms.BoardTest, Measurement: 1})
	}
	assert.Equal(t, comms.U32Data(4), (<-readings).Reading)
	assert.Equal(t, comms.U32Data(5), (<-readings).Reading)
}

func TestDispatchLegacyEmergency(t *testing.T) {
	_, codec := testPod(t)
	d := NewDispatcher(codec, newReceiverStub(), 2)
	got := make(chan *comms.LegacyEmergency, 1)
	d.OnLegacyEmergency(func(_ context.Context, e *comms.LegacyEmergency) {
		got <- e
	})

	id, err := comms.CanID{
		Priority:   true,
		Board:      comms.BoardPneumatics,
		DataType:   comms.DataEmergency,
		Identifier: comms.EmergencyIdentifier,
	}.Pack()
	require.NoError(t, err)
	d.Dispatch(context.Background(), comms.Frame{ID: id, Data: comms.EmergencyData(7).Bytes()})

	select {
	case e := <-got:
		assert.Equal(t, &comms.LegacyEmergency{Board: comms.BoardPneumatics, Reason: 7}, e)
	default:
		t.Fatal("legacy emergency handler not called")
	}
}

func TestDispatcherRun(t *testing.T) {
	_, codec := testPod(t)
	rx := newReceiverStub()
	d := NewDispatcher(codec, rx, 4)
	heartbeats := d.Heartbeats()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	hb := comms.Heartbeat{To: comms.BoardTelemetry, From: comms.BoardTest}
	f, err := codec.Encode(hb)
	require.NoError(t, err)

	rx.errs <- errors.New("bus-off")
	rx.frames <- comms.Frame{ID: 0xEE}
	rx.frames <- f

	select {
	case got := <-heartbeats:
		assert.Equal(t, hb, got)
	case <-time.After(time.Second):
		t.Fatal("heartbeat not dispatched")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestDispatcherRunBusClosed(t *testing.T) {
	_, codec := testPod(t)
	rx := newReceiverStub()
	rx.errs <- errors.Wrap(canbus.ErrBusClosed, "port")
	d := NewDispatcher(codec, rx, 4)
	assert.ErrorIs(t, d.Run(context.Background()), canbus.ErrBusClosed)
}
