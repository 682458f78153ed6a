package comms

import (
	"fmt"
)

// Frame is the literal bus unit: a 29-bit identifier and a fixed 8 byte payload.
type Frame struct {
	ID   uint32
	Data [8]byte
}

// Priority reports whether the frame carries the priority marking. Priority
// frames have the numerically smaller identifier and win bus arbitration.
func (f Frame) Priority() bool {
	return f.ID&priorityBit == 0
}

func (f Frame) String() string {
	return fmt.Sprintf("%08X#% X", f.ID, f.Data[:])
}
