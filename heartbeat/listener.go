package heartbeat

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/clock"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/emergency"
	"github.com/Hyp-ed/hyped-2025-sub000/metrics"
	log "github.com/sirupsen/logrus"
	"sync/atomic"
	"time"
)

// Listener watches for heartbeats from one peer.
type Listener struct {
	self     comms.Board
	cfg      Config
	in       <-chan comms.Heartbeat
	escalate emergency.Escalator
	clock    clock.Clock
	lastSeen atomic.Int64
}

func NewListener(self comms.Board, cfg Config, in <-chan comms.Heartbeat, escalate emergency.Escalator, clk clock.Clock) *Listener {
	return &Listener{
		self:     self,
		cfg:      cfg,
		in:       in,
		escalate: escalate,
		clock:    clk,
	}
}

// LastSeen is the time of the most recent heartbeat from the peer, or the
// zero time if none has arrived.
func (l *Listener) LastSeen() time.Time {
	ns := l.lastSeen.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run gives the peer StartupTimeout to announce itself, then escalates once
// for every MaxLatency window that passes without a heartbeat. Monitoring
// continues after an escalation.
func (l *Listener) Run(ctx context.Context) error {
	logger := log.WithField("peer", l.cfg.Peer)

	if !l.await(ctx, l.cfg.StartupTimeout) {
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("no initial heartbeat")
		l.escalate(ctx, emergency.NoInitialHeartbeat)
		return ErrNoInitialHeartbeat
	}
	logger.Info("peer is alive")

	for {
		if l.await(ctx, l.cfg.MaxLatency) {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		logger.WithField("window", l.cfg.MaxLatency).Error("missing heartbeat")
		metrics.IncHeartbeatTimeout(l.cfg.Peer.String())
		l.escalate(ctx, emergency.MissingHeartbeat)
	}
}

func (l *Listener) await(ctx context.Context, d time.Duration) bool {
	timeout := l.clock.After(d)
	in := l.in
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timeout:
			return false
		case hb, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if hb.To == l.self && hb.From == l.cfg.Peer {
				l.lastSeen.Store(l.clock.Now().UnixNano())
				return true
			}
		}
	}
}
