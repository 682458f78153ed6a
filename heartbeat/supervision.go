package heartbeat

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/clock"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/emergency"
	"golang.org/x/sync/errgroup"
)

// Supervision pairs the sender and listener for one (self, peer) link.
type Supervision struct {
	*Listener
	sender *Sender
}

func NewSupervision(self comms.Board, cfg Config, in <-chan comms.Heartbeat, out comms.Sender, escalate emergency.Escalator, clk clock.Clock) *Supervision {
	return &Supervision{
		Listener: NewListener(self, cfg, in, escalate, clk),
		sender:   NewSender(self, cfg, out, clk),
	}
}

func (s *Supervision) Peer() comms.Board {
	return s.cfg.Peer
}

// Run sends and listens until ctx is done. A peer that never announced
// itself ends listening with ErrNoInitialHeartbeat but heartbeats keep going
// out so the peer can still see this board.
func (s *Supervision) Run(ctx context.Context) error {
	var listenErr error
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.sender.Run(ctx)
	})
	g.Go(func() error {
		listenErr = s.Listener.Run(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return listenErr
}
