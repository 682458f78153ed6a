package hyped

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/bounds"
	"github.com/Hyp-ed/hyped-2025-sub000/canbus"
	"github.com/Hyp-ed/hyped-2025-sub000/clock"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/emergency"
	"github.com/Hyp-ed/hyped-2025-sub000/forwarder"
	"github.com/Hyp-ed/hyped-2025-sub000/heartbeat"
	"github.com/Hyp-ed/hyped-2025-sub000/metrics"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"sync"
)

const localQueueSize = 8

var ErrAlreadyRunning = errors.New("node is already running")

// Bus is what a node needs from the medium.
type Bus interface {
	canbus.Transmitter
	canbus.Receiver
}

type Options struct {
	Board     comms.Board
	Authority bool
	Policy    statemachine.Policy
	Codec     *comms.Codec
	Bus       Bus
	Peers     []heartbeat.Config
	Queue     config.QueueConfig
	Responder config.ResponderConfig
	// Pod enables limit checking of every reading seen by this node.
	Pod   *config.Pod
	Clock clock.Clock
}

// Node runs the coordination layer for one board: the outbound queue, the
// receive dispatcher, the state task (authority or shadow), heartbeat
// supervision and the optional limit checker and forwarders.
type Node struct {
	board     comms.Board
	authority bool
	bus       Bus
	clock     clock.Clock

	queue      *canbus.SendQueue
	sender     comms.Sender
	dispatcher *Dispatcher
	table      *statemachine.Table
	machine    *statemachine.Machine
	cell       *statemachine.Cell
	escalate   emergency.Escalator

	commands      <-chan comms.StateTransitionCommand
	requests      <-chan comms.StateTransitionRequest
	localCommands chan comms.StateTransitionCommand
	localRequests chan comms.StateTransitionRequest

	responder    *heartbeat.Responder
	responderIn  <-chan comms.Heartbeat
	supervisions []*heartbeat.Supervision
	checker      *bounds.Checker
	checkerIn    <-chan comms.MeasurementReading

	snapshot   *Snapshot
	forwarders []forwarder.Forwarder

	mu      sync.Mutex
	running bool
	stopped chan struct{}
}

func NewNode(opts Options) (*Node, error) {
	if !opts.Board.Valid() {
		return nil, errors.Wrapf(comms.ErrUnknownBoard, "node board %d", uint8(opts.Board))
	}
	if opts.Bus == nil {
		return nil, errors.New("node needs a bus")
	}
	if opts.Codec == nil {
		opts.Codec = comms.NewCodec(nil)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	defaults := config.DefaultNode().Queue
	if opts.Queue.Priority < 1 {
		opts.Queue.Priority = defaults.Priority
	}
	if opts.Queue.Routine < 1 {
		opts.Queue.Routine = defaults.Routine
	}
	if opts.Queue.Inbox < 1 {
		opts.Queue.Inbox = defaults.Inbox
	}

	table := statemachine.NewTable(opts.Policy)
	n := &Node{
		board:         opts.Board,
		authority:     opts.Authority,
		bus:           opts.Bus,
		clock:         opts.Clock,
		queue:         canbus.NewSendQueue(opts.Queue.Priority, opts.Queue.Routine, opts.Queue.Retries),
		dispatcher:    NewDispatcher(opts.Codec, opts.Bus, opts.Queue.Inbox),
		table:         table,
		machine:       statemachine.New(table),
		cell:          statemachine.NewCell(),
		localCommands: make(chan comms.StateTransitionCommand, localQueueSize),
		localRequests: make(chan comms.StateTransitionRequest, localQueueSize),
		snapshot:      NewSnapshot(),
		stopped:       make(chan struct{}),
	}
	n.sender = n.queue.Sender(opts.Codec)
	n.escalate = n.escalateLocal

	n.commands = n.dispatcher.Commands()
	if n.authority {
		n.requests = n.dispatcher.Requests()
	}
	n.dispatcher.OnLegacyEmergency(func(ctx context.Context, e *comms.LegacyEmergency) {
		log.WithFields(log.Fields{
			"board":  e.Board,
			"reason": emergency.Reason(e.Reason),
		}).Warn("legacy emergency frame received")
		n.escalate(ctx, emergency.Reason(e.Reason))
	})

	if !opts.Responder.Disabled {
		n.responder = heartbeat.NewResponder(n.board, n.sender, n.clock, opts.Responder.Rate)
		n.responderIn = n.dispatcher.Heartbeats()
	}
	for _, cfg := range opts.Peers {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		sup := heartbeat.NewSupervision(n.board, cfg, n.dispatcher.Heartbeats(), n.sender, n.escalate, n.clock)
		n.supervisions = append(n.supervisions, sup)
	}
	if opts.Pod != nil {
		n.checker = bounds.NewChecker(opts.Pod, opts.Codec.Measurements(), n.escalate)
		n.checkerIn = n.dispatcher.Readings()
	}
	return n, nil
}

func (n *Node) Board() comms.Board {
	return n.board
}

func (n *Node) IsAuthority() bool {
	return n.authority
}

// State is this board's view of the pod state.
func (n *Node) State() statemachine.State {
	return n.cell.Load()
}

// WatchState returns a channel of state changes seen by this board.
func (n *Node) WatchState(size int) <-chan statemachine.State {
	return n.cell.Watch(size)
}

func (n *Node) Snapshot() *Snapshot {
	return n.snapshot
}

// Sender queues messages on this node's bus.
func (n *Node) Sender() comms.Sender {
	return n.sender
}

// AddForwarder must be called before Run.
func (n *Node) AddForwarder(f forwarder.Forwarder) {
	n.forwarders = append(n.forwarders, f)
}

// Readings subscribes to every measurement reading seen by this node,
// including its own. Subscribe before Run.
func (n *Node) Readings() <-chan comms.MeasurementReading {
	return n.dispatcher.Readings()
}

// Publish broadcasts a reading from this board.
func (n *Node) Publish(ctx context.Context, id comms.MeasurementID, data comms.Data) error {
	r := comms.MeasurementReading{
		Reading:     data,
		Board:       n.board,
		Measurement: id,
	}
	if err := n.sender.Send(ctx, r); err != nil {
		return err
	}
	n.dispatcher.Deliver(r)
	return nil
}

// PublishNamed is Publish with the measurement looked up by name.
func (n *Node) PublishNamed(ctx context.Context, name string, data comms.Data) error {
	id, ok := n.dispatcher.codec.Measurements().ID(name)
	if !ok {
		return errors.Wrapf(comms.ErrInvalidMessage, "measurement %q not registered", name)
	}
	return n.Publish(ctx, id, data)
}

// Request asks the authority for a transition. The authority board handles
// its own requests directly.
func (n *Node) Request(ctx context.Context, to statemachine.State) error {
	return n.submit(ctx, comms.StateTransitionRequest{RequestingBoard: n.board, ToState: to})
}

// RequestSender carries requests made on behalf of other boards, such as the
// MQTT bridge. Other messages are queued on the bus as usual.
func (n *Node) RequestSender() comms.Sender {
	return comms.SenderFunc(func(ctx context.Context, m comms.Message) error {
		if req, ok := m.(comms.StateTransitionRequest); ok {
			return n.submit(ctx, req)
		}
		return n.sender.Send(ctx, m)
	})
}

func (n *Node) submit(ctx context.Context, req comms.StateTransitionRequest) error {
	if !n.authority {
		return n.sender.Send(ctx, req)
	}
	select {
	case n.localRequests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Escalate raises an EmergencyBrake on behalf of this board.
func (n *Node) Escalate(ctx context.Context, reason emergency.Reason) {
	n.escalate(ctx, reason)
}

// escalateLocal feeds an EmergencyBrake command to this board's state task,
// which will not hear its own frame. The authority broadcasts only once its
// table accepts the command. Other boards always broadcast, since their view
// may be stale, but only apply the command locally when the table allows it
// from the state they hold.
func (n *Node) escalateLocal(ctx context.Context, reason emergency.Reason) {
	if n.authority {
		emergency.Record(n.board, reason)
	} else {
		if err := emergency.Escalate(ctx, n.sender, n.board, reason); err != nil {
			log.WithError(err).Error("emergency broadcast failed")
		}
		if current := n.cell.Load(); !n.table.Allowed(current, statemachine.EmergencyBrake) {
			log.WithField("state", current).Warn("not applying emergency brake locally")
			return
		}
	}
	select {
	case n.localCommands <- emergency.Command(n.board):
	case <-ctx.Done():
	case <-n.stopped:
	}
}

// Run starts every task and blocks until ctx is done or a task fails.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrAlreadyRunning
	}
	n.running = true
	n.mu.Unlock()
	defer close(n.stopped)
	defer n.queue.Close()

	var (
		fwdReadings <-chan comms.MeasurementReading
		fwdStates   <-chan statemachine.State
	)
	if len(n.forwarders) > 0 {
		fwdReadings = n.dispatcher.Readings()
		fwdStates = n.cell.Watch(localQueueSize)
	}

	log.WithFields(log.Fields{
		"board":     n.board,
		"authority": n.authority,
		"peers":     len(n.supervisions),
	}).Info("node starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.queue.Run(gctx, n.bus)
	})
	g.Go(func() error {
		return n.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		if n.authority {
			return n.runAuthority(gctx)
		}
		return n.runShadow(gctx)
	})
	if n.responder != nil {
		g.Go(func() error {
			return n.responder.Run(gctx, n.responderIn)
		})
	}
	for _, sup := range n.supervisions {
		sup := sup
		g.Go(func() error {
			if err := sup.Run(gctx); err != nil {
				log.WithField("peer", sup.Peer()).WithError(err).Error("heartbeat supervision ended")
			}
			return nil
		})
	}
	if n.checker != nil {
		g.Go(func() error {
			return n.checker.Run(gctx, n.checkerIn)
		})
	}
	if len(n.forwarders) > 0 {
		g.Go(func() error {
			return n.runForwarders(gctx, fwdReadings, fwdStates)
		})
		for _, f := range n.forwarders {
			f := f
			g.Go(func() error {
				if err := f.Start(gctx); err != nil && gctx.Err() == nil {
					log.WithError(err).Error("forwarder stopped")
				}
				return nil
			})
		}
	}

	err := g.Wait()
	for _, f := range n.forwarders {
		if cerr := f.Close(); cerr != nil {
			log.WithError(cerr).Warn("unable to close forwarder")
		}
	}
	log.WithField("board", n.board).Info("node stopped")
	return err
}

func (n *Node) runForwarders(ctx context.Context, readings <-chan comms.MeasurementReading, states <-chan statemachine.State) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-readings:
			n.snapshot.Update(r)
			for _, f := range n.forwarders {
				f.ForwardReading(r)
			}
		case s := <-states:
			if !n.snapshot.SetState(s) {
				continue
			}
			for _, f := range n.forwarders {
				f.ForwardState(s)
			}
		}
	}
}

// runAuthority owns the state machine. Requests are validated against the
// transition table and every accepted transition is broadcast as a command.
// Commands from other boards are only honoured for EmergencyBrake.
func (n *Node) runAuthority(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-n.requests:
			n.authorise(ctx, req)
		case req := <-n.localRequests:
			n.authorise(ctx, req)
		case cmd := <-n.commands:
			n.emergencyCommand(ctx, cmd)
		case cmd := <-n.localCommands:
			n.emergencyCommand(ctx, cmd)
		}
	}
}

func (n *Node) authorise(ctx context.Context, req comms.StateTransitionRequest) {
	next, ok := n.machine.HandleTransition(req.ToState)
	metrics.RecordTransition(req.ToState.String(), uint8(req.ToState), ok)
	if !ok {
		log.WithFields(log.Fields{
			"board": req.RequestingBoard,
			"to":    req.ToState,
			"state": next,
		}).Warn("transition request rejected")
		return
	}
	n.cell.Store(next)
	n.broadcast(ctx, comms.StateTransitionCommand{FromBoard: req.RequestingBoard, ToState: next})
}

func (n *Node) emergencyCommand(ctx context.Context, cmd comms.StateTransitionCommand) {
	if cmd.ToState != statemachine.EmergencyBrake {
		log.WithField("command", cmd).Warn("ignoring command sent to the authority")
		return
	}
	prev := n.machine.Current()
	next, ok := n.machine.HandleTransition(cmd.ToState)
	metrics.RecordTransition(cmd.ToState.String(), uint8(cmd.ToState), ok)
	if !ok {
		// Boards that applied the emergency must come back to our state.
		n.broadcast(ctx, comms.StateTransitionCommand{FromBoard: n.board, ToState: next})
		return
	}
	n.cell.Store(next)
	if next != prev || cmd.FromBoard == n.board {
		n.broadcast(ctx, comms.StateTransitionCommand{FromBoard: cmd.FromBoard, ToState: next})
	}
}

func (n *Node) broadcast(ctx context.Context, cmd comms.StateTransitionCommand) {
	if err := n.sender.Send(ctx, cmd); err != nil && ctx.Err() == nil {
		log.WithField("command", cmd).WithError(err).Error("unable to broadcast state")
	}
}

// runShadow mirrors the authority's commands into the local cell.
func (n *Node) runShadow(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-n.commands:
			n.apply(cmd)
		case cmd := <-n.localCommands:
			n.apply(cmd)
		}
	}
}

func (n *Node) apply(cmd comms.StateTransitionCommand) {
	if prev := n.cell.Load(); prev != cmd.ToState {
		log.WithFields(log.Fields{
			"from": prev,
			"to":   cmd.ToState,
			"by":   cmd.FromBoard,
		}).Info("state updated")
	}
	metrics.RecordTransition(cmd.ToState.String(), uint8(cmd.ToState), true)
	n.cell.Store(cmd.ToState)
}
