package comms

import (
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func roundTrip(t *testing.T, codec *Codec, m Message) {
	t.Helper()
	frame, err := codec.Encode(m)
	require.NoError(t, err, "encoding %v", m)
	got, err := codec.Decode(frame)
	require.NoError(t, err, "decoding %v", frame)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageRoundTripFixtures(t *testing.T) {
	codec := NewCodec(testNamespace())
	acceleration, ok := codec.Measurements().ID("acceleration")
	require.True(t, ok)

	roundTrip(t, codec, MeasurementReading{
		Reading:     F32Data(0.0),
		Board:       BoardTelemetry,
		Measurement: acceleration,
	})
	roundTrip(t, codec, Heartbeat{To: BoardKeyenceTester, From: BoardTest})
	roundTrip(t, codec, StateTransitionCommand{FromBoard: BoardTest, ToState: statemachine.EmergencyBrake})
}

func TestMessageRoundTripAll(t *testing.T) {
	codec := NewCodec(testNamespace())
	readings := []Data{
		BoolData(true),
		TwoU16Data(10, 20),
		F32Data(9.81),
		U32Data(42),
		StateData(3),
	}
	for _, board := range Boards() {
		for _, s := range statemachine.States() {
			roundTrip(t, codec, StateTransitionCommand{FromBoard: board, ToState: s})
			roundTrip(t, codec, StateTransitionRequest{RequestingBoard: board, ToState: s})
		}
		for _, to := range Boards() {
			roundTrip(t, codec, Heartbeat{To: to, From: board})
		}
		for i, r := range readings {
			roundTrip(t, codec, MeasurementReading{
				Reading:     r,
				Board:       board,
				Measurement: MeasurementID(i),
			})
		}
	}
}

func TestEncodePriority(t *testing.T) {
	codec := NewCodec(testNamespace())

	frame, err := codec.Encode(StateTransitionCommand{FromBoard: BoardTest, ToState: statemachine.EmergencyBrake})
	require.NoError(t, err)
	assert.True(t, frame.Priority())

	frame, err = codec.Encode(Heartbeat{To: BoardTelemetry, From: BoardNavigation})
	require.NoError(t, err)
	assert.True(t, frame.Priority())

	frame, err = codec.Encode(MeasurementReading{Reading: F32Data(1), Board: BoardNavigation})
	require.NoError(t, err)
	assert.False(t, frame.Priority())
}

func TestEncodeMisuse(t *testing.T) {
	codec := NewCodec(testNamespace())

	_, err := codec.Encode(MeasurementReading{Reading: F32Data(1), Board: BoardTest, Measurement: 0x2000})
	assert.True(t, errors.Is(err, ErrIdentifierOverflow))

	_, err = codec.Encode(MeasurementReading{Reading: F32Data(1), Board: BoardTest, Measurement: 100})
	assert.True(t, errors.Is(err, ErrInvalidMessage))

	_, err = codec.Encode(StateTransitionRequest{RequestingBoard: BoardTest, ToState: statemachine.State(99)})
	assert.True(t, errors.Is(err, ErrInvalidMessage))

	_, err = codec.Encode(Heartbeat{To: Board(77), From: BoardTest})
	assert.True(t, errors.Is(err, ErrInvalidMessage))

	// readings must decode back to themselves
	for _, bad := range []Data{
		HeartbeatData(Board(200)),
		{Type: DataF32, F32: 1, Bool: true},
		{Type: DataU32, U32: 1, F32: 2},
		{Type: DataType(42)},
	} {
		_, err = codec.Encode(MeasurementReading{Reading: bad, Board: BoardTest, Measurement: 0})
		assert.True(t, errors.Is(err, ErrInvalidMessage), "reading %+v", bad)
	}
}

func TestDecodeStateTransitionWithWrongPayload(t *testing.T) {
	codec := NewCodec(testNamespace())
	raw, err := CanID{
		Priority:   true,
		Board:      BoardTest,
		DataType:   DataF32,
		Identifier: StateTransitionRequestIdentifier,
	}.Pack()
	require.NoError(t, err)

	_, err = codec.Decode(Frame{ID: raw, Data: F32Data(1).Bytes()})
	assert.True(t, errors.Is(err, ErrUnexpectedPayload))
	assert.True(t, IsDecodeError(err))
}

func TestDecodeUnknownStateCode(t *testing.T) {
	codec := NewCodec(testNamespace())
	raw, err := CanID{
		Priority:   true,
		Board:      BoardTest,
		DataType:   DataState,
		Identifier: StateTransitionCommandIdentifier,
	}.Pack()
	require.NoError(t, err)

	_, err = codec.Decode(Frame{ID: raw, Data: StateData(200).Bytes()})
	assert.True(t, errors.Is(err, ErrUnknownState))
}

func TestDecodeTagMismatch(t *testing.T) {
	codec := NewCodec(testNamespace())
	raw, err := CanID{
		Board:      BoardTest,
		DataType:   DataU32,
		Identifier: MeasurementIdentifier(0),
	}.Pack()
	require.NoError(t, err)

	_, err = codec.Decode(Frame{ID: raw, Data: F32Data(1).Bytes()})
	assert.True(t, errors.Is(err, ErrUnexpectedPayload))
}

func TestDecodeLegacyEmergency(t *testing.T) {
	codec := NewCodec(testNamespace())
	raw, err := CanID{
		Priority:   true,
		Board:      BoardPneumatics,
		DataType:   DataEmergency,
		Identifier: EmergencyIdentifier,
	}.Pack()
	require.NoError(t, err)

	msg, err := codec.Decode(Frame{ID: raw, Data: EmergencyData(3).Bytes()})
	assert.Nil(t, msg)
	assert.True(t, IsDecodeError(err))

	var legacy *LegacyEmergency
	require.True(t, errors.As(err, &legacy))
	assert.Equal(t, BoardPneumatics, legacy.Board)
	assert.Equal(t, uint8(3), legacy.Reason)
}

func TestDecodeForeignBoard(t *testing.T) {
	codec := NewCodec(testNamespace())
	frame, err := codec.Encode(Heartbeat{To: BoardTelemetry, From: BoardTest})
	require.NoError(t, err)
	frame.ID = frame.ID&^0xFF | 0xEE

	_, err = codec.Decode(frame)
	assert.True(t, errors.Is(err, ErrUnknownBoard))
}
