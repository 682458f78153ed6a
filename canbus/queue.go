package canbus

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync"
	"time"
)

type Lane int

const (
	LanePriority Lane = iota
	LaneRoutine
)

func (l Lane) String() string {
	if l == LanePriority {
		return "priority"
	}
	return "routine"
}

func laneOf(f comms.Frame) Lane {
	if f.Priority() {
		return LanePriority
	}
	return LaneRoutine
}

const DefaultPriorityRetries = 3

var retryDelay = time.Millisecond

// SendQueue is the outbound path shared by every producer on a board.
// Priority frames (commands, requests, heartbeats) apply backpressure to
// their producer; routine frames (measurements) displace the oldest queued
// routine frame when the lane is full. The transmitter always empties the
// priority lane before touching the routine lane.
type SendQueue struct {
	priority chan comms.Frame
	routine  chan comms.Frame
	retries  int

	closed    chan struct{}
	closeOnce sync.Once
}

func NewSendQueue(prioritySize, routineSize, retries int) *SendQueue {
	if prioritySize < 1 {
		prioritySize = 1
	}
	if routineSize < 1 {
		routineSize = 1
	}
	if retries < 0 {
		retries = 0
	}
	return &SendQueue{
		priority: make(chan comms.Frame, prioritySize),
		routine:  make(chan comms.Frame, routineSize),
		retries:  retries,
		closed:   make(chan struct{}),
	}
}

func (q *SendQueue) Enqueue(ctx context.Context, f comms.Frame) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	if laneOf(f) == LaneRoutine {
		q.offerRoutine(f)
		return nil
	}
	select {
	case q.priority <- f:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "priority frame not queued")
	}
}

func (q *SendQueue) offerRoutine(f comms.Frame) {
	for {
		select {
		case q.routine <- f:
			return
		default:
		}
		select {
		case old := <-q.routine:
			metrics.IncQueueDrop(LaneRoutine.String(), "full")
			log.WithField("canID", old.ID).Debug("routine lane full, dropping oldest frame")
		default:
		}
	}
}

// Close stops accepting frames. Run returns once the priority lane is drained.
func (q *SendQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// Len reports the number of queued frames per lane.
func (q *SendQueue) Len() (priority, routine int) {
	return len(q.priority), len(q.routine)
}

// Run transmits queued frames until ctx is done or the queue is closed.
func (q *SendQueue) Run(ctx context.Context, tx Transmitter) error {
	for {
		select {
		case f := <-q.priority:
			q.transmit(tx, f, LanePriority)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-q.closed:
			q.drainPriority(tx)
			return nil
		case f := <-q.priority:
			q.transmit(tx, f, LanePriority)
		case f := <-q.routine:
			q.transmit(tx, f, LaneRoutine)
		}
	}
}

func (q *SendQueue) drainPriority(tx Transmitter) {
	for {
		select {
		case f := <-q.priority:
			q.transmit(tx, f, LanePriority)
		default:
			return
		}
	}
}

func (q *SendQueue) transmit(tx Transmitter, f comms.Frame, lane Lane) {
	attempts := 1
	if lane == LanePriority {
		attempts += q.retries
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(retryDelay)
		}
		if err = tx.Transmit(f); err == nil {
			metrics.IncFrameSent(lane.String())
			return
		}
	}
	metrics.IncQueueDrop(lane.String(), "transmit")
	log.WithFields(log.Fields{
		"canID":    f.ID,
		"lane":     lane,
		"attempts": attempts,
	}).WithError(err).Warn("unable to transmit frame, dropping")
}

// Sender returns a comms.Sender that encodes messages with codec and queues
// them here.
func (q *SendQueue) Sender(codec *comms.Codec) comms.Sender {
	return comms.SenderFunc(func(ctx context.Context, m comms.Message) error {
		f, err := codec.Encode(m)
		if err != nil {
			return err
		}
		return q.Enqueue(ctx, f)
	})
}
