// Package emergency raises the pod-wide EmergencyBrake transition.
package emergency

import (
	"context"
	"fmt"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/metrics"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Reason uint8

const (
	Unknown Reason = iota + 1
	Test
	CriticalTemperatureLimit
	NoInitialHeartbeat
	MissingHeartbeat
	TemperatureUpperLimitFailure
	TemperatureLowerLimitFailure
	CriticalReading
	Operator
)

var reasonNames = map[Reason]string{
	Unknown:                      "unknown",
	Test:                         "test",
	CriticalTemperatureLimit:     "critical_temperature_limit",
	NoInitialHeartbeat:           "no_initial_heartbeat",
	MissingHeartbeat:             "missing_heartbeat",
	TemperatureUpperLimitFailure: "temperature_upper_limit_failure",
	TemperatureLowerLimitFailure: "temperature_lower_limit_failure",
	CriticalReading:              "critical_reading",
	Operator:                     "operator",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// ParseReason accepts a reason name; unrecognised names map to Unknown.
func ParseReason(name string) Reason {
	for r, n := range reasonNames {
		if n == name {
			return r
		}
	}
	return Unknown
}

// Command is the message every escalation broadcasts.
func Command(board comms.Board) comms.StateTransitionCommand {
	return comms.StateTransitionCommand{
		FromBoard: board,
		ToState:   statemachine.EmergencyBrake,
	}
}

// Escalate broadcasts an EmergencyBrake command on behalf of board. There is
// no acknowledgement; the caller learns only whether the command was queued.
func Escalate(ctx context.Context, sender comms.Sender, board comms.Board, reason Reason) error {
	Record(board, reason)
	if err := sender.Send(ctx, Command(board)); err != nil {
		return errors.Wrapf(err, "unable to send emergency command (%s)", reason)
	}
	return nil
}

// Record logs and counts an escalation without sending anything. The
// authority uses it before deciding whether to broadcast.
func Record(board comms.Board, reason Reason) {
	log.WithFields(log.Fields{
		"board":  board,
		"reason": reason,
	}).Error("escalating to emergency brake")
	metrics.IncEscalation(reason.String())
}

// Escalator binds a sender and board identity so triggers only supply a reason.
type Escalator func(ctx context.Context, reason Reason)

func NewEscalator(sender comms.Sender, board comms.Board) Escalator {
	return func(ctx context.Context, reason Reason) {
		if err := Escalate(ctx, sender, board, reason); err != nil {
			log.WithError(err).Error("emergency escalation failed")
		}
	}
}
