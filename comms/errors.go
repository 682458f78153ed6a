package comms

import (
	"github.com/pkg/errors"
)

// Decode errors. A frame failing with any of these is dropped by the receiver;
// the bus may carry traffic that is not meant for this protocol.
var (
	ErrInvalidFrameID    = errors.New("comms: identifier exceeds 29 bits")
	ErrUnknownBoard      = errors.New("comms: unknown board")
	ErrUnknownDataType   = errors.New("comms: unknown payload type")
	ErrUnknownIdentifier = errors.New("comms: unknown message identifier")
	ErrUnknownState      = errors.New("comms: unknown state code")
	ErrUnexpectedPayload = errors.New("comms: unexpected payload for message kind")
	ErrLegacyEmergency   = errors.New("comms: legacy emergency frame")
)

// Encode errors. These are programming or configuration defects and are
// reported when a message is built, never silently packed.
var (
	ErrIdentifierOverflow = errors.New("comms: message identifier does not fit its field")
	ErrInvalidMessage     = errors.New("comms: invalid message")
)

var decodeErrors = []error{
	ErrInvalidFrameID,
	ErrUnknownBoard,
	ErrUnknownDataType,
	ErrUnknownIdentifier,
	ErrUnknownState,
	ErrUnexpectedPayload,
	ErrLegacyEmergency,
}

// IsDecodeError reports whether err means "this frame is not ours to interpret".
func IsDecodeError(err error) bool {
	for _, target := range decodeErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// LegacyEmergency is returned when a frame uses the dedicated emergency
// identifier instead of an EmergencyBrake state transition command.
type LegacyEmergency struct {
	Board  Board
	Reason uint8
}

func (e *LegacyEmergency) Error() string {
	return errors.Wrapf(ErrLegacyEmergency, "board %s reason %d", e.Board, e.Reason).Error()
}

func (e *LegacyEmergency) Unwrap() error {
	return ErrLegacyEmergency
}
