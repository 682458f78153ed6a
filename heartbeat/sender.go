package heartbeat

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/clock"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	log "github.com/sirupsen/logrus"
	"time"
)

// Sender periodically tells a peer that this board is alive.
type Sender struct {
	self   comms.Board
	peer   comms.Board
	period time.Duration
	out    comms.Sender
	clock  clock.Clock
}

func NewSender(self comms.Board, cfg Config, out comms.Sender, clk clock.Clock) *Sender {
	return &Sender{
		self:   self,
		peer:   cfg.Peer,
		period: cfg.Period(),
		out:    out,
		clock:  clk,
	}
}

func (s *Sender) Run(ctx context.Context) error {
	hb := comms.Heartbeat{To: s.peer, From: s.self}
	for {
		if err := s.out.Send(ctx, hb); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithField("peer", s.peer).WithError(err).Warn("unable to send heartbeat")
		} else {
			log.WithField("peer", s.peer).Debug("sent heartbeat")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.period):
		}
	}
}
