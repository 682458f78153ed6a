package comms

import (
	"fmt"
	"github.com/pkg/errors"
)

// Board is the identity of one controller on the pod bus.
type Board uint8

const (
	BoardTelemetry Board = iota
	BoardNavigation
	BoardPneumatics
	BoardTest
	BoardTemperatureTester
	BoardKeyenceTester
	BoardStateMachineTester
	BoardMqtt
	BoardBatteryMonitor
)

var boardNames = map[Board]string{
	BoardTelemetry:          "telemetry",
	BoardNavigation:         "navigation",
	BoardPneumatics:         "pneumatics",
	BoardTest:               "test",
	BoardTemperatureTester:  "temperature_tester",
	BoardKeyenceTester:      "keyence_tester",
	BoardStateMachineTester: "state_machine_tester",
	BoardMqtt:               "mqtt",
	BoardBatteryMonitor:     "battery_monitor",
}

// Boards returns the full roster in encoding order.
func Boards() []Board {
	boards := make([]Board, 0, len(boardNames))
	for b := BoardTelemetry; b <= BoardBatteryMonitor; b++ {
		boards = append(boards, b)
	}
	return boards
}

func (b Board) Valid() bool {
	_, ok := boardNames[b]
	return ok
}

func (b Board) String() string {
	if name, ok := boardNames[b]; ok {
		return name
	}
	return fmt.Sprintf("board(%d)", uint8(b))
}

// ParseBoard maps a board byte from the wire.
func ParseBoard(v uint8) (Board, error) {
	b := Board(v)
	if !b.Valid() {
		return 0, errors.Wrapf(ErrUnknownBoard, "board byte 0x%02x", v)
	}
	return b, nil
}

// BoardFromName maps a snake_case board name, as used in config files.
func BoardFromName(name string) (Board, error) {
	for b, n := range boardNames {
		if n == name {
			return b, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownBoard, "board name %q", name)
}

func (b Board) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, errors.Wrapf(ErrUnknownBoard, "board %d", uint8(b))
	}
	return []byte(b.String()), nil
}

func (b *Board) UnmarshalText(text []byte) error {
	v, err := BoardFromName(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
