// Package forwarder relays bus traffic to the ground station.
package forwarder

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
)

// Forwarder receives readings and state changes from the node. Forward calls
// must not block; a forwarder that falls behind skips updates.
type Forwarder interface {
	ForwardReading(comms.MeasurementReading)
	ForwardState(statemachine.State)
	Start(ctx context.Context) error
	Close() error
}
