// Package bounds classifies measurement readings against the pod's
// configured limits and escalates on critical readings.
package bounds

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/emergency"
	"github.com/Hyp-ed/hyped-2025-sub000/metrics"
	log "github.com/sirupsen/logrus"
	"strings"
)

type Severity int

const (
	Safe Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	}
	return "safe"
}

// Classify places v within m's limits. Readings outside the critical range
// are critical; readings outside the warning range, when one is set, are
// warnings.
func Classify(m *config.Measurement, v float64) Severity {
	if c := m.Limits.Critical; c != nil && !c.Contains(v) {
		return Critical
	}
	if w := m.Limits.Warning; w != nil && !w.Contains(v) {
		return Warning
	}
	return Safe
}

type source struct {
	board comms.Board
	id    comms.MeasurementID
}

// Checker watches the readings of every board. It escalates once each time
// a (board, measurement) pair enters the critical range.
type Checker struct {
	pod      *config.Pod
	ns       *comms.Namespace
	escalate emergency.Escalator
	last     map[source]Severity
}

func NewChecker(pod *config.Pod, ns *comms.Namespace, escalate emergency.Escalator) *Checker {
	return &Checker{
		pod:      pod,
		ns:       ns,
		escalate: escalate,
		last:     map[source]Severity{},
	}
}

// Check is not safe for concurrent use.
func (c *Checker) Check(ctx context.Context, r comms.MeasurementReading) Severity {
	v, ok := r.Reading.Float64()
	if !ok {
		return Safe
	}
	key, ok := c.ns.Name(r.Measurement)
	if !ok {
		return Safe
	}
	m, ok := c.pod.Measurement(key)
	if !ok {
		return Safe
	}

	sev := Classify(m, v)
	src := source{board: r.Board, id: r.Measurement}
	prev := c.last[src]
	c.last[src] = sev
	if sev == prev {
		return sev
	}

	logger := log.WithFields(log.Fields{
		"board":       r.Board,
		"measurement": key,
		"value":       v,
	})
	switch sev {
	case Safe:
		logger.Info("reading back within limits")
	case Warning:
		metrics.IncLimitViolation(key, sev.String())
		logger.Warn("reading outside warning limits")
	case Critical:
		metrics.IncLimitViolation(key, sev.String())
		logger.Error("reading outside critical limits")
		c.escalate(ctx, reasonFor(key))
	}
	return sev
}

func reasonFor(key string) emergency.Reason {
	if strings.Contains(key, "temperature") || strings.HasPrefix(key, "thermistor") {
		return emergency.CriticalTemperatureLimit
	}
	return emergency.CriticalReading
}

func (c *Checker) Run(ctx context.Context, in <-chan comms.MeasurementReading) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-in:
			if !ok {
				return nil
			}
			c.Check(ctx, r)
		}
	}
}
