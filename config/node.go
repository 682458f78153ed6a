// Package config loads the per-board node configuration (TOML) and the
// pod-wide measurement configuration (YAML).
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/heartbeat"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"io"
	"os"
	"time"
)

type Peer struct {
	Board          comms.Board   `toml:"board"`
	Frequency      float64       `toml:"frequency"`
	MaxLatency     time.Duration `toml:"max_latency"`
	StartupTimeout time.Duration `toml:"startup_timeout"`
}

// Heartbeat fills unset timings with the defaults.
func (p Peer) Heartbeat() heartbeat.Config {
	cfg := heartbeat.DefaultConfig(p.Board)
	if p.Frequency > 0 {
		cfg.Frequency = p.Frequency
	}
	if p.MaxLatency > 0 {
		cfg.MaxLatency = p.MaxLatency
	}
	if p.StartupTimeout > 0 {
		cfg.StartupTimeout = p.StartupTimeout
	}
	return cfg
}

type QueueConfig struct {
	Priority int `toml:"priority"`
	Routine  int `toml:"routine"`
	Retries  int `toml:"retries"`
	Inbox    int `toml:"inbox"`
}

type ResponderConfig struct {
	Disabled bool    `toml:"disabled"`
	Rate     float64 `toml:"rate"`
}

type UDPConfig struct {
	Server string `toml:"server"`
	Port   int    `toml:"port"`
}

func (c *UDPConfig) Enabled() bool {
	return c != nil && c.Server != ""
}

type MQTTConfig struct {
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func (c *MQTTConfig) Enabled() bool {
	return c != nil && c.Broker != ""
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

type Node struct {
	Board     comms.Board         `toml:"board"`
	Authority bool                `toml:"authority"`
	Pod       string              `toml:"pod"`
	Interface string              `toml:"interface"`
	LogLevel  string              `toml:"log_level"`
	Policy    statemachine.Policy `toml:"emergency_policy"`

	Queue     QueueConfig     `toml:"queue"`
	Responder ResponderConfig `toml:"responder"`
	Peers     []Peer          `toml:"peers"`

	UDP     *UDPConfig     `toml:"udp"`
	MQTT    *MQTTConfig    `toml:"mqtt"`
	Metrics *MetricsConfig `toml:"metrics"`
}

func DefaultNode() Node {
	return Node{
		Board:     comms.BoardTelemetry,
		Interface: "can0",
		LogLevel:  "info",
		Queue: QueueConfig{
			Priority: 32,
			Routine:  256,
			Retries:  3,
			Inbox:    16,
		},
	}
}

func LoadNode(path string) (Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return Node{}, errors.Wrapf(err, "unable to open file %s", path)
	}
	defer f.Close()
	return ParseNode(f)
}

// ParseNode decodes a node config over the defaults and validates it.
func ParseNode(r io.Reader) (Node, error) {
	cfg := DefaultNode()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Node{}, errors.Wrap(err, "unable to load node configuration")
	}
	for _, key := range md.Undecoded() {
		log.WithField("key", key.String()).Warn("ignoring unknown node configuration key")
	}
	if err := cfg.Validate(); err != nil {
		return Node{}, err
	}
	return cfg, nil
}

func (n Node) Validate() error {
	if !n.Board.Valid() {
		return errors.Wrapf(comms.ErrUnknownBoard, "node board %d", uint8(n.Board))
	}
	if _, err := log.ParseLevel(n.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if n.Queue.Priority < 1 || n.Queue.Routine < 1 || n.Queue.Inbox < 1 {
		return errors.New("queue sizes must be positive")
	}
	if n.Queue.Retries < 0 {
		return errors.New("queue retries must not be negative")
	}
	seen := map[comms.Board]bool{}
	for _, p := range n.Peers {
		if p.Board == n.Board {
			return errors.Errorf("board %s cannot supervise itself", p.Board)
		}
		if seen[p.Board] {
			return errors.Errorf("peer %s listed twice", p.Board)
		}
		seen[p.Board] = true
		if err := p.Heartbeat().Validate(); err != nil {
			return err
		}
	}
	if n.UDP.Enabled() && (n.UDP.Port <= 0 || n.UDP.Port > 65535) {
		return errors.Errorf("udp port %d out of range", n.UDP.Port)
	}
	return nil
}

// Heartbeats returns the supervision config for every peer.
func (n Node) Heartbeats() []heartbeat.Config {
	out := make([]heartbeat.Config, 0, len(n.Peers))
	for _, p := range n.Peers {
		out = append(out, p.Heartbeat())
	}
	return out
}
