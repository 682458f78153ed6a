package canbus

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"sync"
)

// Link is a SocketCAN interface that survives socket failures. Frames are
// buffered across reconnects so Receive callers never see the swap.
type Link struct {
	iface  string
	frames chan comms.Frame

	mu   sync.RWMutex
	conn *Connection
}

func NewLink(iface string, bufferSize int) *Link {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Link{
		iface:  iface,
		frames: make(chan comms.Frame, bufferSize),
	}
}

func (l *Link) Open() error {
	conn, err := connect(l.iface, l.frames)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (l *Link) Start(ctx context.Context) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Start(ctx)
}

func (l *Link) Name() string {
	return "canbus " + l.iface
}

// Run keeps the interface connected until ctx is done.
func (l *Link) Run(ctx context.Context) error {
	err := Retry(ctx, l)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (l *Link) Transmit(f comms.Frame) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Transmit(f)
}

func (l *Link) Receive(ctx context.Context) (comms.Frame, error) {
	select {
	case <-ctx.Done():
		return comms.Frame{}, ctx.Err()
	case f := <-l.frames:
		return f, nil
	}
}
