package comms

import (
	"fmt"
	"github.com/pkg/errors"
)

// MeasurementID is a per-deployment measurement number, assigned from the
// pod configuration.
type MeasurementID uint16

// MessageKind discriminates a MessageIdentifier.
type MessageKind uint8

const (
	KindMeasurement MessageKind = iota
	KindStateTransitionCommand
	KindStateTransitionRequest
	KindHeartbeat
	KindEmergency
)

func (k MessageKind) String() string {
	switch k {
	case KindMeasurement:
		return "measurement"
	case KindStateTransitionCommand:
		return "state_transition_command"
	case KindStateTransitionRequest:
		return "state_transition_request"
	case KindHeartbeat:
		return "heartbeat"
	case KindEmergency:
		return "emergency"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// The message identifier field is 12 bits wide. The top of the range is
// reserved for protocol messages, measurements get everything below.
const (
	MaxMessageIdentifier uint16 = 0xFFF

	stateTransitionCommandID = MaxMessageIdentifier - 1
	stateTransitionRequestID = MaxMessageIdentifier - 2
	heartbeatID              = MaxMessageIdentifier - 3
	emergencyID              = MaxMessageIdentifier - 4

	MaxMeasurementID = MeasurementID(emergencyID - 1)
)

// MessageIdentifier is either a measurement or one of the reserved protocol kinds.
type MessageIdentifier struct {
	Kind        MessageKind
	Measurement MeasurementID
}

var (
	StateTransitionCommandIdentifier = MessageIdentifier{Kind: KindStateTransitionCommand}
	StateTransitionRequestIdentifier = MessageIdentifier{Kind: KindStateTransitionRequest}
	HeartbeatIdentifier              = MessageIdentifier{Kind: KindHeartbeat}
	EmergencyIdentifier              = MessageIdentifier{Kind: KindEmergency}
)

func MeasurementIdentifier(id MeasurementID) MessageIdentifier {
	return MessageIdentifier{Kind: KindMeasurement, Measurement: id}
}

// Raw returns the 12 bit field value.
func (m MessageIdentifier) Raw() (uint16, error) {
	switch m.Kind {
	case KindMeasurement:
		if m.Measurement > MaxMeasurementID {
			return 0, errors.Wrapf(ErrIdentifierOverflow,
				"measurement id 0x%x above 0x%x", uint16(m.Measurement), uint16(MaxMeasurementID))
		}
		return uint16(m.Measurement), nil
	case KindStateTransitionCommand:
		return stateTransitionCommandID, nil
	case KindStateTransitionRequest:
		return stateTransitionRequestID, nil
	case KindHeartbeat:
		return heartbeatID, nil
	case KindEmergency:
		return emergencyID, nil
	}
	return 0, errors.Wrapf(ErrInvalidMessage, "message kind %d", uint8(m.Kind))
}

// ParseMessageIdentifier resolves a raw field value. Measurement values must
// be registered in ns.
func ParseMessageIdentifier(raw uint16, ns *Namespace) (MessageIdentifier, error) {
	switch raw {
	case stateTransitionCommandID:
		return StateTransitionCommandIdentifier, nil
	case stateTransitionRequestID:
		return StateTransitionRequestIdentifier, nil
	case heartbeatID:
		return HeartbeatIdentifier, nil
	case emergencyID:
		return EmergencyIdentifier, nil
	}
	id := MeasurementID(raw)
	if raw > MaxMessageIdentifier || !ns.Contains(id) {
		return MessageIdentifier{}, errors.Wrapf(ErrUnknownIdentifier, "identifier 0x%03x", raw)
	}
	return MeasurementIdentifier(id), nil
}

func (m MessageIdentifier) String() string {
	if m.Kind == KindMeasurement {
		return fmt.Sprintf("measurement(%d)", uint16(m.Measurement))
	}
	return m.Kind.String()
}

// Namespace is the deployment's measurement registry. IDs are handed out in
// registration order starting from zero.
type Namespace struct {
	names []string
	ids   map[string]MeasurementID
}

func NewNamespace(names ...string) (*Namespace, error) {
	ns := &Namespace{
		ids: make(map[string]MeasurementID, len(names)),
	}
	for _, name := range names {
		if _, err := ns.add(name); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

// MustNamespace is NewNamespace for static tables.
func MustNamespace(names ...string) *Namespace {
	ns, err := NewNamespace(names...)
	if err != nil {
		panic(err)
	}
	return ns
}

func (ns *Namespace) add(name string) (MeasurementID, error) {
	if name == "" {
		return 0, errors.Wrap(ErrInvalidMessage, "empty measurement name")
	}
	if _, ok := ns.ids[name]; ok {
		return 0, errors.Wrapf(ErrInvalidMessage, "duplicate measurement %q", name)
	}
	if len(ns.names) > int(MaxMeasurementID) {
		return 0, errors.Wrapf(ErrIdentifierOverflow, "measurement %q", name)
	}
	id := MeasurementID(len(ns.names))
	ns.names = append(ns.names, name)
	ns.ids[name] = id
	return id, nil
}

func (ns *Namespace) ID(name string) (MeasurementID, bool) {
	if ns == nil {
		return 0, false
	}
	id, ok := ns.ids[name]
	return id, ok
}

func (ns *Namespace) Name(id MeasurementID) (string, bool) {
	if !ns.Contains(id) {
		return "", false
	}
	return ns.names[id], true
}

func (ns *Namespace) Contains(id MeasurementID) bool {
	return ns != nil && int(id) < len(ns.names)
}

func (ns *Namespace) Len() int {
	if ns == nil {
		return 0
	}
	return len(ns.names)
}

func (ns *Namespace) Names() []string {
	if ns == nil {
		return nil
	}
	return append([]string(nil), ns.names...)
}
