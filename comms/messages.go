package comms

import (
	"fmt"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/pkg/errors"
)

// Message is a high level pod message. The set of implementations is closed.
type Message interface {
	Kind() MessageKind
	isMessage()
}

type MeasurementReading struct {
	Reading     Data
	Board       Board
	Measurement MeasurementID
}

type StateTransitionCommand struct {
	FromBoard Board
	ToState   statemachine.State
}

type StateTransitionRequest struct {
	RequestingBoard Board
	ToState         statemachine.State
}

type Heartbeat struct {
	To   Board
	From Board
}

func (MeasurementReading) Kind() MessageKind     { return KindMeasurement }
func (StateTransitionCommand) Kind() MessageKind { return KindStateTransitionCommand }
func (StateTransitionRequest) Kind() MessageKind { return KindStateTransitionRequest }
func (Heartbeat) Kind() MessageKind              { return KindHeartbeat }

func (MeasurementReading) isMessage()     {}
func (StateTransitionCommand) isMessage() {}
func (StateTransitionRequest) isMessage() {}
func (Heartbeat) isMessage()              {}

func (m MeasurementReading) String() string {
	return fmt.Sprintf("measurement %d from %s: %s", uint16(m.Measurement), m.Board, m.Reading)
}

func (c StateTransitionCommand) String() string {
	return fmt.Sprintf("command %s from %s", c.ToState, c.FromBoard)
}

func (r StateTransitionRequest) String() string {
	return fmt.Sprintf("request %s from %s", r.ToState, r.RequestingBoard)
}

func (h Heartbeat) String() string {
	return fmt.Sprintf("heartbeat %s -> %s", h.From, h.To)
}

// Codec converts messages to and from frames. It carries the deployment's
// measurement namespace; everything else about the layout is fixed.
type Codec struct {
	measurements *Namespace
}

func NewCodec(measurements *Namespace) *Codec {
	if measurements == nil {
		measurements = MustNamespace()
	}
	return &Codec{measurements: measurements}
}

func (c *Codec) Measurements() *Namespace {
	return c.measurements
}

// Encode builds the frame for m. Errors are encode misuse: unknown boards or
// states, or a measurement outside the namespace.
func (c *Codec) Encode(m Message) (Frame, error) {
	var (
		id   CanID
		data Data
	)
	switch msg := m.(type) {
	case MeasurementReading:
		if !c.measurements.Contains(msg.Measurement) {
			if msg.Measurement > MaxMeasurementID {
				return Frame{}, errors.Wrapf(ErrIdentifierOverflow, "measurement id 0x%x", uint16(msg.Measurement))
			}
			return Frame{}, errors.Wrapf(ErrInvalidMessage, "measurement %d not registered", uint16(msg.Measurement))
		}
		if err := msg.Reading.Validate(); err != nil {
			return Frame{}, errors.Wrap(err, "reading")
		}
		id = CanID{
			Board:      msg.Board,
			DataType:   msg.Reading.Type,
			Identifier: MeasurementIdentifier(msg.Measurement),
		}
		data = msg.Reading
	case StateTransitionCommand:
		if !msg.ToState.Valid() {
			return Frame{}, errors.Wrapf(ErrInvalidMessage, "state %d", uint8(msg.ToState))
		}
		id = CanID{
			Priority:   true,
			Board:      msg.FromBoard,
			DataType:   DataState,
			Identifier: StateTransitionCommandIdentifier,
		}
		data = StateData(uint8(msg.ToState))
	case StateTransitionRequest:
		if !msg.ToState.Valid() {
			return Frame{}, errors.Wrapf(ErrInvalidMessage, "state %d", uint8(msg.ToState))
		}
		id = CanID{
			Priority:   true,
			Board:      msg.RequestingBoard,
			DataType:   DataState,
			Identifier: StateTransitionRequestIdentifier,
		}
		data = StateData(uint8(msg.ToState))
	case Heartbeat:
		if !msg.To.Valid() {
			return Frame{}, errors.Wrapf(ErrInvalidMessage, "heartbeat target %d", uint8(msg.To))
		}
		id = CanID{
			Priority:   true,
			Board:      msg.From,
			DataType:   DataHeartbeat,
			Identifier: HeartbeatIdentifier,
		}
		data = HeartbeatData(msg.To)
	default:
		return Frame{}, errors.Wrapf(ErrInvalidMessage, "message type %T", m)
	}

	raw, err := id.Pack()
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: raw, Data: data.Bytes()}, nil
}

// Decode interprets a frame received from the bus. Any error is a decode
// error (see IsDecodeError) and the frame should be dropped.
func (c *Codec) Decode(f Frame) (Message, error) {
	id, err := UnpackCanID(f.ID, c.measurements)
	if err != nil {
		return nil, err
	}
	data, err := DecodeData(f.Data)
	if err != nil {
		return nil, err
	}
	if data.Type != id.DataType {
		return nil, errors.Wrapf(ErrUnexpectedPayload,
			"identifier says %s, payload tag says %s", id.DataType, data.Type)
	}

	switch id.Identifier.Kind {
	case KindMeasurement:
		return MeasurementReading{
			Reading:     data,
			Board:       id.Board,
			Measurement: id.Identifier.Measurement,
		}, nil
	case KindStateTransitionCommand:
		to, err := stateFromData(data)
		if err != nil {
			return nil, err
		}
		return StateTransitionCommand{FromBoard: id.Board, ToState: to}, nil
	case KindStateTransitionRequest:
		to, err := stateFromData(data)
		if err != nil {
			return nil, err
		}
		return StateTransitionRequest{RequestingBoard: id.Board, ToState: to}, nil
	case KindHeartbeat:
		if data.Type != DataHeartbeat {
			return nil, errors.Wrapf(ErrUnexpectedPayload, "heartbeat carrying %s", data.Type)
		}
		return Heartbeat{To: data.Target, From: id.Board}, nil
	default:
		if data.Type != DataEmergency {
			return nil, errors.Wrapf(ErrUnexpectedPayload, "emergency carrying %s", data.Type)
		}
		return nil, &LegacyEmergency{Board: id.Board, Reason: data.Reason}
	}
}

func stateFromData(data Data) (statemachine.State, error) {
	if data.Type != DataState {
		return 0, errors.Wrapf(ErrUnexpectedPayload, "state transition carrying %s", data.Type)
	}
	s, err := statemachine.FromCode(data.State)
	if err != nil {
		return 0, errors.Wrapf(ErrUnknownState, "code %d", data.State)
	}
	return s, nil
}
