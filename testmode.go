package hyped

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/clock"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"math"
	"time"
)

const (
	DefaultTestModeInterval = 250 * time.Millisecond
	testModeSteps           = 20
)

// sweep walks a measurement up and down its safe band.
type sweep struct {
	key    string
	format config.Format
	value  float64
	step   float64
	min    float64
	max    float64
	down   bool
}

func newSweep(key string, m *config.Measurement) *sweep {
	band := m.Limits.Critical
	if m.Limits.Warning != nil {
		band = m.Limits.Warning
	}
	lo, hi := 0.0, 100.0
	if band != nil {
		lo, hi = band.Min, band.Max
	}
	if m.Format == config.FormatInteger {
		lo = math.Max(0, math.Ceil(lo))
		hi = math.Min(math.MaxUint32, math.Floor(hi))
	}
	step := (hi - lo) / testModeSteps
	if m.Format == config.FormatInteger {
		step = math.Max(1, math.Floor(step))
	}
	return &sweep{
		key:    key,
		format: m.Format,
		value:  lo,
		step:   step,
		min:    lo,
		max:    hi,
	}
}

func (s *sweep) data() comms.Data {
	if s.format == config.FormatInteger {
		return comms.U32Data(uint32(s.value))
	}
	return comms.F32Data(float32(s.value))
}

func (s *sweep) next() {
	if s.down {
		s.value -= s.step
	} else {
		s.value += s.step
	}
	if s.value >= s.max {
		s.value = s.max
		s.down = true
	} else if s.value <= s.min {
		s.value = s.min
		s.down = false
	}
}

// TestMode publishes synthetic readings for every measurement of a pod,
// each sweeping inside its safe band.
type TestMode struct {
	node     *Node
	interval time.Duration
	clock    clock.Clock
	sweeps   []*sweep
}

func NewTestMode(node *Node, pod *config.Pod, interval time.Duration, clk clock.Clock) (*TestMode, error) {
	if interval <= 0 {
		interval = DefaultTestModeInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	tm := &TestMode{
		node:     node,
		interval: interval,
		clock:    clk,
	}
	for _, key := range pod.MeasurementKeys() {
		m, ok := pod.Measurement(key)
		if !ok {
			return nil, errors.Errorf("measurement %q missing from pod %s", key, pod.Key)
		}
		tm.sweeps = append(tm.sweeps, newSweep(key, m))
	}
	return tm, nil
}

// Step publishes one reading per measurement and advances every sweep.
func (tm *TestMode) Step(ctx context.Context) error {
	for _, s := range tm.sweeps {
		if err := tm.node.PublishNamed(ctx, s.key, s.data()); err != nil {
			return errors.Wrapf(err, "test mode %s", s.key)
		}
		s.next()
	}
	return nil
}

func (tm *TestMode) Run(ctx context.Context) error {
	log.WithField("board", tm.node.Board()).Info("running in test mode")
	for {
		if err := tm.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tm.clock.After(tm.interval):
		}
	}
}
