package comms

import (
	"encoding/binary"
	"fmt"
	"github.com/pkg/errors"
	"math"
)

// DataType is the one byte tag that leads every payload.
type DataType uint8

const (
	DataBool DataType = iota
	DataTwoU16
	DataF32
	DataState
	DataU32
	DataHeartbeat
	DataEmergency
)

var dataTypeNames = [...]string{
	DataBool:      "bool",
	DataTwoU16:    "two_u16",
	DataF32:       "f32",
	DataState:     "state",
	DataU32:       "u32",
	DataHeartbeat: "heartbeat",
	DataEmergency: "emergency",
}

func (t DataType) Valid() bool {
	return int(t) < len(dataTypeNames)
}

func (t DataType) String() string {
	if t.Valid() {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("data_type(%d)", uint8(t))
}

// ParseDataType maps a payload type byte from the identifier or payload tag.
func ParseDataType(v uint8) (DataType, error) {
	t := DataType(v)
	if !t.Valid() {
		return 0, errors.Wrapf(ErrUnknownDataType, "type byte 0x%02x", v)
	}
	return t, nil
}

// Data is a tagged payload value. Build it with the constructors below: only
// the field matching Type is meaningful and the rest must stay zero so that
// decoded values compare equal to constructed ones. Validate reports values
// that break this.
type Data struct {
	Type   DataType
	Bool   bool
	TwoU16 [2]uint16
	F32    float32
	State  uint8
	U32    uint32
	Target Board
	Reason uint8
}

func BoolData(v bool) Data {
	return Data{Type: DataBool, Bool: v}
}

func TwoU16Data(a, b uint16) Data {
	return Data{Type: DataTwoU16, TwoU16: [2]uint16{a, b}}
}

func F32Data(v float32) Data {
	return Data{Type: DataF32, F32: v}
}

func StateData(code uint8) Data {
	return Data{Type: DataState, State: code}
}

func U32Data(v uint32) Data {
	return Data{Type: DataU32, U32: v}
}

// HeartbeatData carries the board the heartbeat is addressed to.
func HeartbeatData(to Board) Data {
	return Data{Type: DataHeartbeat, Target: to}
}

func EmergencyData(reason uint8) Data {
	return Data{Type: DataEmergency, Reason: reason}
}

// canonical keeps only the field that Type selects.
func (d Data) canonical() Data {
	switch d.Type {
	case DataBool:
		return BoolData(d.Bool)
	case DataTwoU16:
		return TwoU16Data(d.TwoU16[0], d.TwoU16[1])
	case DataF32:
		return F32Data(d.F32)
	case DataState:
		return StateData(d.State)
	case DataU32:
		return U32Data(d.U32)
	case DataHeartbeat:
		return HeartbeatData(d.Target)
	case DataEmergency:
		return EmergencyData(d.Reason)
	}
	return d
}

// Validate reports values that would not survive Bytes and DecodeData
// unchanged: unknown tags, fields outside the tag and unknown heartbeat
// targets.
func (d Data) Validate() error {
	if !d.Type.Valid() {
		return errors.Wrapf(ErrInvalidMessage, "payload type %d", uint8(d.Type))
	}
	a, b := d, d.canonical()
	// NaN never compares equal
	a.F32, b.F32 = 0, 0
	if d.Type != DataF32 && d.F32 != 0 {
		a.F32 = d.F32
	}
	if a != b {
		return errors.Wrapf(ErrInvalidMessage, "%s payload has fields set outside its type", d.Type)
	}
	if d.Type == DataHeartbeat && !d.Target.Valid() {
		return errors.Wrapf(ErrInvalidMessage, "heartbeat target %d", uint8(d.Target))
	}
	return nil
}

// Bytes lays the value out as [tag, little-endian payload..., zero padding].
func (d Data) Bytes() [8]byte {
	var buf [8]byte
	buf[0] = uint8(d.Type)
	switch d.Type {
	case DataBool:
		if d.Bool {
			buf[1] = 1
		}
	case DataTwoU16:
		binary.LittleEndian.PutUint16(buf[1:3], d.TwoU16[0])
		binary.LittleEndian.PutUint16(buf[3:5], d.TwoU16[1])
	case DataF32:
		binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(d.F32))
	case DataState:
		buf[1] = d.State
	case DataU32:
		binary.LittleEndian.PutUint32(buf[1:5], d.U32)
	case DataHeartbeat:
		buf[1] = uint8(d.Target)
	case DataEmergency:
		buf[1] = d.Reason
	}
	return buf
}

// DecodeData reads a payload produced by Bytes.
func DecodeData(buf [8]byte) (Data, error) {
	t, err := ParseDataType(buf[0])
	if err != nil {
		return Data{}, err
	}
	switch t {
	case DataBool:
		return BoolData(buf[1] != 0), nil
	case DataTwoU16:
		return TwoU16Data(
			binary.LittleEndian.Uint16(buf[1:3]),
			binary.LittleEndian.Uint16(buf[3:5]),
		), nil
	case DataF32:
		return F32Data(math.Float32frombits(binary.LittleEndian.Uint32(buf[1:5]))), nil
	case DataState:
		return StateData(buf[1]), nil
	case DataU32:
		return U32Data(binary.LittleEndian.Uint32(buf[1:5])), nil
	case DataHeartbeat:
		to, err := ParseBoard(buf[1])
		if err != nil {
			return Data{}, errors.Wrap(err, "heartbeat target")
		}
		return HeartbeatData(to), nil
	default:
		return EmergencyData(buf[1]), nil
	}
}

// Float64 gives a numeric view of the reading for bounds checks and
// telemetry. TwoU16 and non-numeric payloads report ok=false.
func (d Data) Float64() (v float64, ok bool) {
	switch d.Type {
	case DataF32:
		return float64(d.F32), true
	case DataU32:
		return float64(d.U32), true
	case DataBool:
		if d.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (d Data) String() string {
	switch d.Type {
	case DataBool:
		return fmt.Sprintf("%t", d.Bool)
	case DataTwoU16:
		return fmt.Sprintf("[%d, %d]", d.TwoU16[0], d.TwoU16[1])
	case DataF32:
		return fmt.Sprintf("%g", d.F32)
	case DataState:
		return fmt.Sprintf("%d", d.State)
	case DataU32:
		return fmt.Sprintf("%d", d.U32)
	case DataHeartbeat:
		return d.Target.String()
	case DataEmergency:
		return fmt.Sprintf("reason(%d)", d.Reason)
	}
	return d.Type.String()
}
