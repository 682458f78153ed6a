package forwarder

import (
	"bytes"
	"encoding/binary"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/pkg/errors"
	"unsafe"
)

type Header struct {
	Type uint8
}

const (
	TypeReading = 1
	TypeState   = 2
)

// ReadingPacket carries one measurement reading. Payload is the 8 byte bus
// payload, tag included.
type ReadingPacket struct {
	Board       uint8
	Measurement uint16
	Payload     [8]byte
}

type StatePacket struct {
	State uint8
}

var maxPacketSize = int(unsafe.Sizeof(Header{}) + unsafe.Sizeof(ReadingPacket{}))

func newReadingPacket(r comms.MeasurementReading) ReadingPacket {
	return ReadingPacket{
		Board:       uint8(r.Board),
		Measurement: uint16(r.Measurement),
		Payload:     r.Reading.Bytes(),
	}
}

func newStatePacket(s statemachine.State) StatePacket {
	return StatePacket{State: uint8(s)}
}

func encodePacket(typ uint8, body interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, maxPacketSize))
	hdr := Header{
		Type: typ,
	}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "unable to write udp packet header")
	}
	if err := binary.Write(buf, binary.LittleEndian, body); err != nil {
		return nil, errors.Wrap(err, "unable to write udp packet body")
	}
	return buf.Bytes(), nil
}
