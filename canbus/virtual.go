package canbus

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/pkg/errors"
	"sync"
)

// FrameFilter decides per delivery whether a frame is lost or duplicated.
type FrameFilter func(to int, f comms.Frame) bool

// VirtualBus is an in-process broadcast medium. Every frame transmitted on a
// port reaches every other attached port in transmission order, unless the
// loss hook drops it.
type VirtualBus struct {
	mu        sync.Mutex
	ports     []*Port
	loss      FrameFilter
	duplicate FrameFilter
}

func NewVirtualBus() *VirtualBus {
	return &VirtualBus{}
}

// SetLoss installs a hook that drops a delivery when it returns true.
func (b *VirtualBus) SetLoss(fn FrameFilter) {
	b.mu.Lock()
	b.loss = fn
	b.mu.Unlock()
}

// SetDuplicate installs a hook that delivers a frame twice when it returns true.
func (b *VirtualBus) SetDuplicate(fn FrameFilter) {
	b.mu.Lock()
	b.duplicate = fn
	b.mu.Unlock()
}

func (b *VirtualBus) Attach(bufferSize int) *Port {
	if bufferSize < 1 {
		bufferSize = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &Port{
		bus:    b,
		index:  len(b.ports),
		rx:     make(chan comms.Frame, bufferSize),
		closed: make(chan struct{}),
	}
	b.ports = append(b.ports, p)
	return p
}

// Inject puts a frame on the bus as if it came from a device outside the
// simulation.
func (b *VirtualBus) Inject(f comms.Frame) {
	b.broadcast(nil, f)
}

func (b *VirtualBus) broadcast(from *Port, f comms.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.ports {
		if p == from || p.isClosed() {
			continue
		}
		if b.loss != nil && b.loss(p.index, f) {
			continue
		}
		offer(p.rx, f)
		if b.duplicate != nil && b.duplicate(p.index, f) {
			offer(p.rx, f)
		}
	}
}

// Port is one node's attachment to a VirtualBus.
type Port struct {
	bus       *VirtualBus
	index     int
	rx        chan comms.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func (p *Port) Index() int {
	return p.index
}

func (p *Port) Transmit(f comms.Frame) error {
	if p.isClosed() {
		return ErrBusClosed
	}
	if f.ID > comms.MaxFrameID {
		return errors.Wrapf(comms.ErrInvalidFrameID, "0x%x", f.ID)
	}
	p.bus.broadcast(p, f)
	return nil
}

func (p *Port) Receive(ctx context.Context) (comms.Frame, error) {
	// buffered frames win over a concurrent close
	select {
	case f := <-p.rx:
		return f, nil
	default:
	}
	select {
	case <-ctx.Done():
		return comms.Frame{}, ctx.Err()
	case <-p.closed:
		return comms.Frame{}, ErrBusClosed
	case f := <-p.rx:
		return f, nil
	}
}

func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}

func (p *Port) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}
