package bounds

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/emergency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func defaultChecker(t *testing.T) (*Checker, *comms.Namespace, *[]emergency.Reason) {
	cfg, err := config.DefaultPods()
	require.NoError(t, err)
	pod, err := cfg.Pod("poddington")
	require.NoError(t, err)
	ns, err := pod.Namespace()
	require.NoError(t, err)

	var reasons []emergency.Reason
	c := NewChecker(pod, ns, func(_ context.Context, r emergency.Reason) {
		reasons = append(reasons, r)
	})
	return c, ns, &reasons
}

func reading(t *testing.T, ns *comms.Namespace, name string, v float32) comms.MeasurementReading {
	id, ok := ns.ID(name)
	require.True(t, ok, name)
	return comms.MeasurementReading{
		Reading:     comms.F32Data(v),
		Board:       comms.BoardTemperatureTester,
		Measurement: id,
	}
}

func TestClassify(t *testing.T) {
	m := &config.Measurement{
		Limits: config.Limits{
			Warning:  &config.Range{Min: 0, Max: 50},
			Critical: &config.Range{Min: -20, Max: 80},
		},
	}
	assert.Equal(t, Safe, Classify(m, 20))
	assert.Equal(t, Safe, Classify(m, 50))
	assert.Equal(t, Warning, Classify(m, 51))
	assert.Equal(t, Warning, Classify(m, -1))
	assert.Equal(t, Critical, Classify(m, 81))
	assert.Equal(t, Critical, Classify(m, -21))

	m.Limits.Warning = nil
	assert.Equal(t, Safe, Classify(m, 79))
}

func TestCheckerEscalatesOnEnteringCritical(t *testing.T) {
	c, ns, reasons := defaultChecker(t)
	ctx := context.Background()

	assert.Equal(t, Safe, c.Check(ctx, reading(t, ns, "temperature", 20)))
	assert.Equal(t, Warning, c.Check(ctx, reading(t, ns, "temperature", 70)))
	assert.Empty(t, *reasons)

	assert.Equal(t, Critical, c.Check(ctx, reading(t, ns, "temperature", 90)))
	assert.Equal(t, Critical, c.Check(ctx, reading(t, ns, "temperature", 95)))
	assert.Equal(t, []emergency.Reason{emergency.CriticalTemperatureLimit}, *reasons)

	assert.Equal(t, Safe, c.Check(ctx, reading(t, ns, "temperature", 20)))
	assert.Equal(t, Critical, c.Check(ctx, reading(t, ns, "acceleration", 200)))
	assert.Equal(t, []emergency.Reason{
		emergency.CriticalTemperatureLimit,
		emergency.CriticalReading,
	}, *reasons)
}

func TestCheckerTracksBoardsSeparately(t *testing.T) {
	c, ns, reasons := defaultChecker(t)
	ctx := context.Background()

	r := reading(t, ns, "thermistor_1", 100)
	c.Check(ctx, r)
	r.Board = comms.BoardNavigation
	c.Check(ctx, r)
	assert.Len(t, *reasons, 2)
	assert.Equal(t, emergency.CriticalTemperatureLimit, (*reasons)[1])
}

func TestCheckerIgnoresUnclassifiable(t *testing.T) {
	c, _, reasons := defaultChecker(t)
	ctx := context.Background()

	assert.Equal(t, Safe, c.Check(ctx, comms.MeasurementReading{
		Reading:     comms.StateData(3),
		Board:       comms.BoardTest,
		Measurement: 0,
	}))
	assert.Equal(t, Safe, c.Check(ctx, comms.MeasurementReading{
		Reading:     comms.F32Data(1e9),
		Board:       comms.BoardTest,
		Measurement: 4000,
	}))
	assert.Empty(t, *reasons)
}

func TestCheckerRun(t *testing.T) {
	c, ns, reasons := defaultChecker(t)
	in := make(chan comms.MeasurementReading, 2)
	in <- reading(t, ns, "velocity", 120)
	in <- reading(t, ns, "velocity", 10)
	close(in)

	assert.NoError(t, c.Run(context.Background(), in))
	assert.Equal(t, []emergency.Reason{emergency.CriticalReading}, *reasons)
}
