package canbus

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/brutella/can"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SocketCAN flag bits carried in the upper bits of can_id.
const (
	effFlag uint32 = 0x80000000
	rtrFlag uint32 = 0x40000000
	errFlag uint32 = 0x20000000
	effMask uint32 = 0x1FFFFFFF
)

type CANBus interface {
	SubscribeFunc(can.HandlerFunc)
	ConnectAndPublish() error
	Disconnect() error
	Publish(can.Frame) error
}

var newBus = func(iface string) (CANBus, error) {
	return can.NewBusForInterfaceWithName(iface)
}

// Connection is a single SocketCAN socket. Received extended frames are
// queued for Receive; anything else on the wire is ignored.
type Connection struct {
	bus    CANBus
	frames chan comms.Frame
}

func Connect(iface string, bufferSize int) (*Connection, error) {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return connect(iface, make(chan comms.Frame, bufferSize))
}

func connect(iface string, frames chan comms.Frame) (*Connection, error) {
	bus, err := newBus(iface)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", iface)
	}
	return &Connection{
		bus:    bus,
		frames: frames,
	}, nil
}

// Start reads from the socket until ctx is done or the socket fails.
func (c *Connection) Start(ctx context.Context) error {
	c.bus.SubscribeFunc(c.handleFrame)
	log.Info("CAN bus opened and subscribed")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			log.Infof("stopping can bus: %v", ctx.Err())
			if err := c.bus.Disconnect(); err != nil {
				log.WithField("err", err).Warn("unable to disconnect canbus after context")
			}
		case <-stop:
		}
	}()

	return c.bus.ConnectAndPublish()
}

func (c *Connection) Close() error {
	if c.bus == nil {
		return ErrNotConnected
	}
	return c.bus.Disconnect()
}

func (c *Connection) Transmit(f comms.Frame) error {
	if c.bus == nil {
		return ErrNotConnected
	}
	if f.ID > comms.MaxFrameID {
		return errors.Wrapf(comms.ErrInvalidFrameID, "0x%x", f.ID)
	}
	log.WithField("canID", f.ID).Debug("sending canbus frame")
	return c.bus.Publish(can.Frame{
		ID:     f.ID | effFlag,
		Length: 8,
		Data:   f.Data,
	})
}

func (c *Connection) Receive(ctx context.Context) (comms.Frame, error) {
	select {
	case <-ctx.Done():
		return comms.Frame{}, ctx.Err()
	case f := <-c.frames:
		return f, nil
	}
}

func (c *Connection) handleFrame(frame can.Frame) {
	log.WithField("canID", frame.ID).
		WithField("length", frame.Length).
		Debug("received canbus frame")

	f, ok := fromCAN(frame)
	if !ok {
		log.WithField("canID", frame.ID).Debug("ignoring non-extended frame")
		return
	}
	offer(c.frames, f)
}

func fromCAN(frame can.Frame) (comms.Frame, bool) {
	if frame.ID&effFlag == 0 || frame.ID&(rtrFlag|errFlag) != 0 {
		return comms.Frame{}, false
	}
	f := comms.Frame{ID: frame.ID & effMask}
	n := int(frame.Length)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	copy(f.Data[:n], frame.Data[:n])
	return f, true
}

// offer queues f, discarding the oldest queued frame if the buffer is full.
func offer(ch chan comms.Frame, f comms.Frame) bool {
	for {
		select {
		case ch <- f:
			return true
		default:
		}
		select {
		case <-ch:
			log.WithField("canID", f.ID).Warn("receive buffer full, dropping oldest frame")
		default:
		}
	}
}
