package heartbeat

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/clock"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultReplyRate bounds replies per peer. Two boards that both answer
// every heartbeat would otherwise echo each other as fast as the bus allows.
const DefaultReplyRate = 2 * DefaultFrequency

// Responder answers heartbeats addressed to this board.
type Responder struct {
	self     comms.Board
	out      comms.Sender
	clock    clock.Clock
	limit    rate.Limit
	limiters map[comms.Board]*rate.Limiter
}

func NewResponder(self comms.Board, out comms.Sender, clk clock.Clock, perPeer float64) *Responder {
	if perPeer <= 0 {
		perPeer = DefaultReplyRate
	}
	return &Responder{
		self:     self,
		out:      out,
		clock:    clk,
		limit:    rate.Limit(perPeer),
		limiters: map[comms.Board]*rate.Limiter{},
	}
}

// Handle replies to hb when it is addressed to this board and the sender's
// reply budget allows it. It reports whether a reply was queued. Handle is
// not safe for concurrent use.
func (r *Responder) Handle(ctx context.Context, hb comms.Heartbeat) bool {
	if hb.To != r.self || hb.From == r.self {
		return false
	}
	l, ok := r.limiters[hb.From]
	if !ok {
		l = rate.NewLimiter(r.limit, 1)
		r.limiters[hb.From] = l
	}
	if !l.AllowN(r.clock.Now(), 1) {
		return false
	}
	log.WithField("peer", hb.From).Debug("responding to heartbeat")
	if err := r.out.Send(ctx, comms.Heartbeat{To: hb.From, From: r.self}); err != nil {
		log.WithField("peer", hb.From).WithError(err).Warn("unable to respond to heartbeat")
		return false
	}
	return true
}

func (r *Responder) Run(ctx context.Context, in <-chan comms.Heartbeat) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case hb, ok := <-in:
			if !ok {
				return nil
			}
			r.Handle(ctx, hb)
		}
	}
}
