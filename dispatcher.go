package hyped

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/canbus"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"sync"
	"time"
)

// Dispatcher decodes received frames and fans each message out to the
// consumers subscribed to its kind. Every consumer has its own bounded
// channel; a slow consumer loses its oldest messages and never stalls the
// receive loop.
type Dispatcher struct {
	codec *comms.Codec
	rx    canbus.Receiver
	size  int

	mu         sync.RWMutex
	commands   []chan comms.StateTransitionCommand
	requests   []chan comms.StateTransitionRequest
	heartbeats []chan comms.Heartbeat
	readings   []chan comms.MeasurementReading
	emergency  func(context.Context, *comms.LegacyEmergency)

	foreign rate.Sometimes
}

func NewDispatcher(codec *comms.Codec, rx canbus.Receiver, size int) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		codec:   codec,
		rx:      rx,
		size:    size,
		foreign: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

func subscribe[T any](d *Dispatcher, list *[]chan T) <-chan T {
	ch := make(chan T, d.size)
	d.mu.Lock()
	*list = append(*list, ch)
	d.mu.Unlock()
	return ch
}

func (d *Dispatcher) Commands() <-chan comms.StateTransitionCommand {
	return subscribe(d, &d.commands)
}

func (d *Dispatcher) Requests() <-chan comms.StateTransitionRequest {
	return subscribe(d, &d.requests)
}

func (d *Dispatcher) Heartbeats() <-chan comms.Heartbeat {
	return subscribe(d, &d.heartbeats)
}

func (d *Dispatcher) Readings() <-chan comms.MeasurementReading {
	return subscribe(d, &d.readings)
}

// OnLegacyEmergency registers the handler for frames on the dedicated
// emergency identifier.
func (d *Dispatcher) OnLegacyEmergency(fn func(context.Context, *comms.LegacyEmergency)) {
	d.mu.Lock()
	d.emergency = fn
	d.mu.Unlock()
}

// Run receives until ctx is done or the bus is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		f, err := d.rx.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, canbus.ErrBusClosed) {
				return err
			}
			log.WithError(err).Debug("receive failed")
			continue
		}
		d.Dispatch(ctx, f)
	}
}

// Dispatch handles one frame. Frames that do not decode are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, f comms.Frame) {
	m, err := d.codec.Decode(f)
	if err != nil {
		d.reject(ctx, f, err)
		return
	}
	log.WithField("message", m).Debug("received")
	metrics.IncFrameReceived(m.Kind().String())
	d.Deliver(m)
}

// Deliver hands m to the subscribers of its kind. The node also uses it for
// messages it produced itself, since a board does not hear its own frames.
func (d *Dispatcher) Deliver(m comms.Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch msg := m.(type) {
	case comms.MeasurementReading:
		fanOut(d.readings, msg)
	case comms.StateTransitionCommand:
		fanOut(d.commands, msg)
	case comms.StateTransitionRequest:
		fanOut(d.requests, msg)
	case comms.Heartbeat:
		fanOut(d.heartbeats, msg)
	}
}

func (d *Dispatcher) reject(ctx context.Context, f comms.Frame, err error) {
	var legacy *comms.LegacyEmergency
	if errors.As(err, &legacy) {
		metrics.IncFrameReceived("legacy_emergency")
		d.mu.RLock()
		fn := d.emergency
		d.mu.RUnlock()
		if fn != nil {
			fn(ctx, legacy)
		}
		return
	}

	metrics.IncFrameDropped("decode")
	logger := log.WithField("frame", f).WithError(err)
	logger.Debug("dropping frame")
	d.foreign.Do(func() {
		logger.Warn("dropping frames that do not decode")
	})
}

func fanOut[T any](chs []chan T, v T) {
	for _, ch := range chs {
		offer(ch, v)
	}
}

func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
			metrics.IncFrameDropped("consumer_full")
		default:
		}
	}
}
