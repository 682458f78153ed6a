// Package heartbeat keeps boards aware of each other's liveness. A board
// sends heartbeats to the peers it supervises, answers heartbeats addressed
// to it and escalates when a supervised peer goes quiet.
package heartbeat

import (
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/pkg/errors"
	"time"
)

const (
	DefaultFrequency      = 5.0
	DefaultMaxLatency     = 500 * time.Millisecond
	DefaultStartupTimeout = 30 * time.Second
)

var ErrNoInitialHeartbeat = errors.New("heartbeat: no initial heartbeat")

// Config parameterises supervision of a single peer.
type Config struct {
	Peer           comms.Board
	Frequency      float64
	MaxLatency     time.Duration
	StartupTimeout time.Duration
}

func DefaultConfig(peer comms.Board) Config {
	return Config{
		Peer:           peer,
		Frequency:      DefaultFrequency,
		MaxLatency:     DefaultMaxLatency,
		StartupTimeout: DefaultStartupTimeout,
	}
}

// Period is the interval between heartbeats sent to the peer.
func (c Config) Period() time.Duration {
	f := c.Frequency
	if f <= 0 {
		f = DefaultFrequency
	}
	return time.Duration(float64(time.Second) / f)
}

func (c Config) Validate() error {
	if !c.Peer.Valid() {
		return errors.Wrapf(comms.ErrUnknownBoard, "heartbeat peer %d", uint8(c.Peer))
	}
	if c.Frequency <= 0 {
		return errors.Errorf("heartbeat frequency for %s must be positive", c.Peer)
	}
	if c.MaxLatency <= 0 || c.StartupTimeout <= 0 {
		return errors.Errorf("heartbeat timeouts for %s must be positive", c.Peer)
	}
	if c.MaxLatency < c.Period() {
		return errors.Errorf("heartbeat max latency %s for %s is shorter than the send period %s",
			c.MaxLatency, c.Peer, c.Period())
	}
	return nil
}
