package canbus

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func receiveNothing(t *testing.T, p *Port) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	f, err := p.Receive(ctx)
	assert.Equal(t, context.DeadlineExceeded, err, "unexpected frame %s", f)
}

func TestVirtualBusBroadcast(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Attach(4)
	b := bus.Attach(4)
	c := bus.Attach(4)
	ctx := context.Background()

	for i := uint32(1); i <= 3; i++ {
		require.NoError(t, a.Transmit(comms.Frame{ID: i}))
	}

	for _, p := range []*Port{b, c} {
		for i := uint32(1); i <= 3; i++ {
			f, err := p.Receive(ctx)
			require.NoError(t, err)
			assert.Equal(t, i, f.ID)
		}
	}
	// the transmitter does not hear itself
	receiveNothing(t, a)
}

func TestVirtualBusLossAndDuplication(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Attach(4)
	b := bus.Attach(4)
	c := bus.Attach(4)
	ctx := context.Background()

	bus.SetLoss(func(to int, f comms.Frame) bool {
		return to == c.Index()
	})
	bus.SetDuplicate(func(to int, f comms.Frame) bool {
		return to == b.Index()
	})

	require.NoError(t, a.Transmit(comms.Frame{ID: 9}))
	for i := 0; i < 2; i++ {
		f, err := b.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(9), f.ID)
	}
	receiveNothing(t, b)
	receiveNothing(t, c)
}

func TestVirtualBusInject(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Attach(1)
	b := bus.Attach(1)

	bus.Inject(comms.Frame{ID: 0x1FFFFFFF})
	for _, p := range []*Port{a, b} {
		f, err := p.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1FFFFFFF), f.ID)
	}
}

func TestVirtualBusClose(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Attach(1)
	b := bus.Attach(1)

	assert.Error(t, a.Transmit(comms.Frame{ID: 0x20000000}))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.NoError(t, a.Transmit(comms.Frame{ID: 1}))
	_, err := b.Receive(context.Background())
	assert.Equal(t, ErrBusClosed, err)
	assert.Equal(t, ErrBusClosed, b.Transmit(comms.Frame{ID: 1}))
}
