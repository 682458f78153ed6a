package comms

import (
	"context"
)

// Sender queues a message for transmission on the bus.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, m Message) error

func (f SenderFunc) Send(ctx context.Context, m Message) error {
	return f(ctx, m)
}
