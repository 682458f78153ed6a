// Package canbus moves frames between the coordination layer and a CAN bus,
// either a SocketCAN interface or an in-process virtual bus.
package canbus

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/pkg/errors"
)

var (
	ErrQueueClosed  = errors.New("canbus: send queue closed")
	ErrBusClosed    = errors.New("canbus: bus closed")
	ErrNotConnected = errors.New("canbus: not connected")
)

type Transmitter interface {
	Transmit(comms.Frame) error
}

// Receiver blocks until a frame arrives. Errors other than ErrBusClosed and
// context errors are transient and mean no frame was read.
type Receiver interface {
	Receive(ctx context.Context) (comms.Frame, error)
}

type Bus interface {
	Transmitter
	Receiver
	Close() error
}
