package comms

import (
	"fmt"
	"github.com/pkg/errors"
)

// Identifier layout, most significant first:
//
//	bit 28      priority (0 = priority, so it wins arbitration)
//	bits 27..20 payload type
//	bits 19..8  message identifier
//	bits 7..0   board
const (
	boardShift      = 0
	boardMask       = 0xFF
	identifierShift = 8
	identifierMask  = uint32(MaxMessageIdentifier)
	dataTypeShift   = 20
	dataTypeMask    = 0xFF
	priorityBit     = uint32(1) << 28

	// MaxFrameID is the largest 29-bit extended identifier.
	MaxFrameID uint32 = 0x1FFFFFFF
)

// CanID is the structured form of a 29-bit bus identifier.
type CanID struct {
	Priority   bool
	Board      Board
	DataType   DataType
	Identifier MessageIdentifier
}

// Pack validates every field and packs the identifier. A field that does not
// fit is reported rather than truncated.
func (c CanID) Pack() (uint32, error) {
	if !c.Board.Valid() {
		return 0, errors.Wrapf(ErrInvalidMessage, "board %d not in roster", uint8(c.Board))
	}
	if !c.DataType.Valid() {
		return 0, errors.Wrapf(ErrInvalidMessage, "payload type %d", uint8(c.DataType))
	}
	raw, err := c.Identifier.Raw()
	if err != nil {
		return 0, err
	}
	if uint32(raw) > identifierMask {
		return 0, errors.Wrapf(ErrIdentifierOverflow, "identifier 0x%x", raw)
	}
	id := uint32(c.Board)<<boardShift |
		uint32(raw)<<identifierShift |
		uint32(c.DataType)<<dataTypeShift
	if !c.Priority {
		id |= priorityBit
	}
	return id, nil
}

// UnpackCanID reverses Pack. Measurement identifiers are resolved against ns.
func UnpackCanID(id uint32, ns *Namespace) (CanID, error) {
	if id > MaxFrameID {
		return CanID{}, errors.Wrapf(ErrInvalidFrameID, "id 0x%08x", id)
	}
	board, err := ParseBoard(uint8(id >> boardShift & boardMask))
	if err != nil {
		return CanID{}, err
	}
	dataType, err := ParseDataType(uint8(id >> dataTypeShift & dataTypeMask))
	if err != nil {
		return CanID{}, err
	}
	identifier, err := ParseMessageIdentifier(uint16(id>>identifierShift&identifierMask), ns)
	if err != nil {
		return CanID{}, err
	}
	return CanID{
		Priority:   id&priorityBit == 0,
		Board:      board,
		DataType:   dataType,
		Identifier: identifier,
	}, nil
}

func (c CanID) String() string {
	return fmt.Sprintf("%s/%s/%s priority=%t", c.Board, c.Identifier, c.DataType, c.Priority)
}
